package status

import (
	"context"
	"sync"
	"sync/atomic"
)

// Model holds the current Status of one client.
//
// Apply is meant for a single writer, the consumer of the status channel.
// Reads are atomic and may happen from any goroutine.
type Model struct {
	current atomic.Uint32
	mu      sync.Mutex
	changed chan struct{}
}

// NewModel returns a model whose current value is Unknown.
func NewModel() *Model {
	return &Model{changed: make(chan struct{})}
}

// Current returns the last applied status.
func (m *Model) Current() Status {
	return Status(m.current.Load())
}

// Apply overwrites the current status and wakes all waiters.
func (m *Model) Apply(s Status) {
	m.current.Store(uint32(s))

	m.mu.Lock()
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
}

// IsReady reports whether the current status allows traffic.
func (m *Model) IsReady() bool {
	return m.Current().IsReady()
}

// IsTerminal reports whether the current status is Disconnected or Shutdown.
func (m *Model) IsTerminal() bool {
	return m.Current().IsTerminal()
}

// Wait blocks until the current status satisfies pred or ctx ends.
// It returns the status that satisfied pred.
func (m *Model) Wait(ctx context.Context, pred func(Status) bool) (Status, error) {
	for {
		m.mu.Lock()
		ch := m.changed
		m.mu.Unlock()

		if s := m.Current(); pred(s) {
			return s, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return m.Current(), ctx.Err()
		}
	}
}
