package engine

import (
	"sync"

	moqerrors "github.com/suhasHere/moqbridge/errors"
)

// Ledger tracks allocations whose ownership crosses the boundary.
//
// Each allocation is acquired once and released once. Releasing an unknown
// id is a boundary violation and panics.
type Ledger struct {
	mu   sync.Mutex
	live map[ledgerKey]struct{}
}

type ledgerKey struct {
	kind string
	id   uint64
}

func NewLedger() *Ledger {
	return &Ledger{live: make(map[ledgerKey]struct{})}
}

// Acquire records a new allocation of the given kind.
func (l *Ledger) Acquire(kind string, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := ledgerKey{kind, id}
	if _, ok := l.live[k]; ok {
		panic(moqerrors.BoundaryViolation("%s allocation %#x acquired twice", kind, id))
	}
	l.live[k] = struct{}{}
}

// Release forgets an allocation.
func (l *Ledger) Release(kind string, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := ledgerKey{kind, id}
	if _, ok := l.live[k]; !ok {
		panic(moqerrors.BoundaryViolation("%s allocation %#x freed twice or never acquired", kind, id))
	}
	delete(l.live, k)
}

// Outstanding returns the number of allocations not released yet.
func (l *Ledger) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}
