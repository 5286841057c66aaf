package engine

import (
	"context"

	"github.com/suhasHere/moqbridge/config"
	"github.com/suhasHere/moqbridge/handle"
	"github.com/suhasHere/moqbridge/track"
)

// Entrypoints are the fixed functions an engine calls back into.
//
// An engine may call them from any thread, concurrently. The token is the
// value handed to RegisterCallbacks; implementations resolve it and never
// trust it. payload is only valid for the duration of the call.
type Entrypoints interface {
	OnStatus(token handle.Token, code uint32)
	OnSetup(token handle.Token, payload []byte)
}

// Engine is the opaque transport engine behind a client.
//
// A raw reference returned by Create stays valid until Destroy. Once
// UnregisterCallbacks returns, the engine must not call the entry points
// for that reference again.
type Engine interface {
	Name() string
	Create(ctx context.Context, rec *config.Record) (uintptr, error)
	RegisterCallbacks(ctx context.Context, ref uintptr, token handle.Token, entry Entrypoints) error
	UnregisterCallbacks(ctx context.Context, ref uintptr) error
	Publish(ctx context.Context, ref uintptr, t *track.Track) (uint64, error)
	Unpublish(ctx context.Context, ref uintptr, trackToken uint64) error
	Disconnect(ctx context.Context, ref uintptr) error
	Destroy(ctx context.Context, ref uintptr) error
}
