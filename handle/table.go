package handle

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalid = errors.New("handle: invalid token")
	ErrStale   = errors.New("handle: stale token")
)

// Token identifies one live entry of a Table.
type Token uint64

func makeToken(slot uint32, gen uint32) Token {
	return Token(uint64(gen)<<32 | uint64(slot+1))
}

func (t Token) slot() (uint32, bool) {
	s := uint32(t)
	if s == 0 {
		return 0, false
	}
	return s - 1, true
}

// Generation returns the generation part of t.
func (t Token) Generation() uint32 {
	return uint32(t >> 32)
}

func (t Token) String() string {
	s, ok := t.slot()
	if !ok {
		return "token(nil)"
	}
	return fmt.Sprintf("token(%d@%d)", s, t.Generation())
}

// Table maps tokens to values of type T.
type Table[T any] struct {
	entries  []entry[T]
	freeList []uint32
	live     int
	mu       sync.RWMutex
}

type entry[T any] struct {
	value T
	gen   uint32
	valid bool
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]uint32, 0, 4),
	}
}

// Insert stores value and returns its token.
func (t *Table[T]) Insert(value T) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.live++

	if n := len(t.freeList); n > 0 {
		slot := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		e := &t.entries[slot]
		e.value = value
		e.valid = true
		return makeToken(slot, e.gen)
	}

	t.entries = append(t.entries, entry[T]{value: value, gen: 1, valid: true})
	return makeToken(uint32(len(t.entries)-1), 1)
}

// Resolve returns the value stored under tok.
func (t *Table[T]) Resolve(tok Token) (T, error) {
	var zero T
	slot, ok := tok.slot()
	if !ok {
		return zero, ErrInvalid
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(slot) >= len(t.entries) {
		return zero, ErrInvalid
	}
	e := t.entries[slot]
	if !e.valid || e.gen != tok.Generation() {
		return zero, ErrStale
	}
	return e.value, nil
}

// Remove releases the entry stored under tok and returns its value.
func (t *Table[T]) Remove(tok Token) (T, error) {
	var zero T
	slot, ok := tok.slot()
	if !ok {
		return zero, ErrInvalid
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if int(slot) >= len(t.entries) {
		return zero, ErrInvalid
	}
	e := &t.entries[slot]
	if !e.valid || e.gen != tok.Generation() {
		return zero, ErrStale
	}

	value := e.value
	e.value = zero
	e.valid = false
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	t.freeList = append(t.freeList, slot)
	t.live--
	return value, nil
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Each calls fn for every live entry until fn returns false.
// fn must not call back into the table.
func (t *Table[T]) Each(fn func(Token, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(makeToken(uint32(i), e.gen), e.value) {
				break
			}
		}
	}
}
