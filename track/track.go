package track

import (
	"fmt"
	"sync/atomic"
)

// Direction tells whether a track is published or subscribed by this client.
type Direction uint8

const (
	Publish Direction = iota
	Subscribe
)

func (d Direction) String() string {
	if d == Subscribe {
		return "subscribe"
	}
	return "publish"
}

// Track is a shared handle to one published or subscribed track.
//
// The registry and any caller holding the pointer share it. The registered
// flag and the engine token are atomics so that flipping them never needs
// the registry lock.
type Track struct {
	id         uint64
	namespace  Namespace
	direction  Direction
	source     any
	registered atomic.Bool
	token      atomic.Uint64
}

// New creates an unregistered track.
// source is kept for engines that pull payload from it and may be nil.
func New(id uint64, ns Namespace, dir Direction, source any) *Track {
	return &Track{
		id:        id,
		namespace: ns,
		direction: dir,
		source:    source,
	}
}

func (t *Track) ID() uint64           { return t.id }
func (t *Track) Namespace() Namespace { return t.namespace }
func (t *Track) Direction() Direction { return t.direction }
func (t *Track) Source() any          { return t.source }

// Registered reports whether the engine currently knows this track.
func (t *Track) Registered() bool {
	return t.registered.Load()
}

// Bind records the engine's token for this track and marks it registered.
func (t *Track) Bind(token uint64) {
	t.token.Store(token)
	t.registered.Store(true)
}

// EngineToken returns the token bound by the engine, 0 if none.
func (t *Track) EngineToken() uint64 {
	return t.token.Load()
}

// Retire clears the registered flag. Only the caller that observed the
// flag set gets true, so the engine token is released exactly once.
func (t *Track) Retire() bool {
	return t.registered.CompareAndSwap(true, false)
}

func (t *Track) String() string {
	return fmt.Sprintf("track(%d %s %s)", t.id, t.direction, t.namespace)
}

// Predicate selects tracks in Snapshot and RemoveWhere.
type Predicate func(*Track) bool

// All matches every track.
func All(*Track) bool { return true }

// Is matches exactly t.
func Is(t *Track) Predicate {
	return func(x *Track) bool { return x == t }
}

// InNamespace matches tracks whose namespace equals ns.
func InNamespace(ns Namespace) Predicate {
	return func(x *Track) bool { return x.namespace.Equal(ns) }
}

// UnderPrefix matches tracks whose namespace starts with prefix.
func UnderPrefix(prefix Namespace) Predicate {
	return func(x *Track) bool { return x.namespace.HasPrefix(prefix) }
}
