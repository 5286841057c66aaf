package engine

import (
	"context"
	"sync"

	moqerrors "github.com/suhasHere/moqbridge/errors"
	"github.com/suhasHere/moqbridge/handle"
	"github.com/suhasHere/moqbridge/track"
)

// Ref owns one raw engine reference.
//
// Every call holds a read lock for its duration and Release takes the write
// lock, so the engine is destroyed only after in-flight calls returned and
// no call reaches the engine afterwards.
type Ref struct {
	eng      Engine
	raw      uintptr
	mu       sync.RWMutex
	released bool
}

// Adopt takes ownership of raw, a non-zero reference created by eng.
//
// Ref may be shared by any number of goroutines, which requires eng to
// synchronize concurrent calls on the same reference itself. Adopt is the
// only place that assumes it.
func Adopt(eng Engine, raw uintptr) *Ref {
	if raw == 0 {
		panic(moqerrors.BoundaryViolation("adopting a null %s reference", eng.Name()))
	}
	return &Ref{eng: eng, raw: raw}
}

// Engine returns the engine that owns the reference.
func (r *Ref) Engine() Engine { return r.eng }

func (r *Ref) do(phase moqerrors.Phase, entry string, fn func() error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.released {
		return moqerrors.Closed(phase, r.eng.Name()+" reference")
	}
	if err := fn(); err != nil {
		return moqerrors.EngineCall(phase, entry, err)
	}
	return nil
}

func (r *Ref) RegisterCallbacks(ctx context.Context, token handle.Token, entry Entrypoints) error {
	return r.do(moqerrors.PhaseRegister, "register_callbacks", func() error {
		return r.eng.RegisterCallbacks(ctx, r.raw, token, entry)
	})
}

func (r *Ref) UnregisterCallbacks(ctx context.Context) error {
	return r.do(moqerrors.PhaseShutdown, "unregister_callbacks", func() error {
		return r.eng.UnregisterCallbacks(ctx, r.raw)
	})
}

// Publish announces t and returns the engine's token for it.
func (r *Ref) Publish(ctx context.Context, t *track.Track) (uint64, error) {
	var tok uint64
	err := r.do(moqerrors.PhasePublish, "publish", func() error {
		var err error
		tok, err = r.eng.Publish(ctx, r.raw, t)
		return err
	})
	return tok, err
}

func (r *Ref) Unpublish(ctx context.Context, trackToken uint64) error {
	return r.do(moqerrors.PhaseUnpublish, "unpublish", func() error {
		return r.eng.Unpublish(ctx, r.raw, trackToken)
	})
}

func (r *Ref) Disconnect(ctx context.Context) error {
	return r.do(moqerrors.PhaseShutdown, "disconnect", func() error {
		return r.eng.Disconnect(ctx, r.raw)
	})
}

// Released reports whether Release ran.
func (r *Ref) Released() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.released
}

// Release destroys the engine reference. It is the single free path;
// calling it twice panics.
func (r *Ref) Release(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		panic(moqerrors.BoundaryViolation("%s reference destroyed twice", r.eng.Name()))
	}
	r.released = true
	if err := r.eng.Destroy(ctx, r.raw); err != nil {
		return moqerrors.EngineCall(moqerrors.PhaseShutdown, "destroy", err)
	}
	return nil
}
