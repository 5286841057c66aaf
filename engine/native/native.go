//go:build cgo && moqnative

package native

/*
#cgo LDFLAGS: -lmoq_engine
#include <stdlib.h>
#include "moq_engine.h"

extern void moqGoOnStatus(uint64_t token, uint32_t code);
extern void moqGoOnSetup(uint64_t token, uint8_t* payload, size_t len);
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/suhasHere/moqbridge/config"
	"github.com/suhasHere/moqbridge/engine"
	"github.com/suhasHere/moqbridge/handle"
	"github.com/suhasHere/moqbridge/track"
)

// routes maps registered tokens to their entry points. Exported callbacks
// are plain C functions, so this is process-wide.
var (
	routes sync.Map // handle.Token -> engine.Entrypoints
	late   atomic.Uint64
)

// Engine drives moq_engine.h. Raw references are moq_engine pointers.
type Engine struct {
	ledger *engine.Ledger

	mu     sync.Mutex
	tokens map[uintptr]handle.Token
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		ledger: engine.NewLedger(),
		tokens: make(map[uintptr]handle.Token),
	}
}

func (e *Engine) Name() string { return "native" }

// Ledger exposes the ledger of C allocations made for the engine.
func (e *Engine) Ledger() *engine.Ledger { return e.ledger }

// LateCallbacks counts callbacks that arrived for an unregistered token.
func LateCallbacks() uint64 { return late.Load() }

func ptr(ref uintptr) *C.moq_engine {
	return (*C.moq_engine)(unsafe.Pointer(ref))
}

func check(entry string, rc C.int) error {
	if rc != 0 {
		return fmt.Errorf("%s returned %d", entry, int(rc))
	}
	return nil
}

func (e *Engine) Create(_ context.Context, rec *config.Record) (uintptr, error) {
	x, free := parseToC(rec, e.ledger)
	defer free()
	p := C.moq_engine_create(&x)
	return uintptr(unsafe.Pointer(p)), nil
}

func (e *Engine) RegisterCallbacks(_ context.Context, ref uintptr, token handle.Token, entry engine.Entrypoints) error {
	if _, loaded := routes.LoadOrStore(token, entry); loaded {
		return fmt.Errorf("token %s already registered", token)
	}
	e.mu.Lock()
	e.tokens[ref] = token
	e.mu.Unlock()

	cbs := C.moq_callbacks{
		on_status: (C.moq_status_cb)(unsafe.Pointer(C.moqGoOnStatus)),
		on_setup:  (C.moq_setup_cb)(unsafe.Pointer(C.moqGoOnSetup)),
	}
	if err := check("moq_engine_register_callbacks", C.moq_engine_register_callbacks(ptr(ref), C.uint64_t(token), cbs)); err != nil {
		e.forget(ref)
		return err
	}
	return nil
}

func (e *Engine) UnregisterCallbacks(_ context.Context, ref uintptr) error {
	err := check("moq_engine_unregister_callbacks", C.moq_engine_unregister_callbacks(ptr(ref)))
	e.forget(ref)
	return err
}

func (e *Engine) Publish(_ context.Context, ref uintptr, t *track.Track) (uint64, error) {
	buf := t.Namespace().Encode()
	p := C.CBytes(buf)
	e.ledger.Acquire(cAlloc, uint64(uintptr(p)))
	defer func() {
		e.ledger.Release(cAlloc, uint64(uintptr(p)))
		C.free(p)
	}()

	tok := uint64(C.moq_engine_publish(ptr(ref), (*C.uint8_t)(p), C.size_t(len(buf))))
	if tok == 0 {
		return 0, fmt.Errorf("moq_engine_publish refused %s", t)
	}
	return tok, nil
}

func (e *Engine) Unpublish(_ context.Context, ref uintptr, trackToken uint64) error {
	return check("moq_engine_unpublish", C.moq_engine_unpublish(ptr(ref), C.uint64_t(trackToken)))
}

func (e *Engine) Disconnect(_ context.Context, ref uintptr) error {
	return check("moq_engine_disconnect", C.moq_engine_disconnect(ptr(ref)))
}

func (e *Engine) Destroy(_ context.Context, ref uintptr) error {
	e.mu.Lock()
	_, registered := e.tokens[ref]
	e.mu.Unlock()
	if registered {
		engine.Logger().Warn("native engine destroyed with callbacks registered")
		e.forget(ref)
	}
	C.moq_engine_destroy(ptr(ref))
	return nil
}

func (e *Engine) forget(ref uintptr) {
	e.mu.Lock()
	tok, ok := e.tokens[ref]
	delete(e.tokens, ref)
	e.mu.Unlock()
	if ok {
		routes.Delete(tok)
	}
}

func route(token C.uint64_t) (engine.Entrypoints, bool) {
	v, ok := routes.Load(handle.Token(token))
	if !ok {
		late.Add(1)
		engine.Logger().Warn("native callback for unregistered token", zap.Stringer("token", handle.Token(token)))
		return nil, false
	}
	return v.(engine.Entrypoints), true
}

//export moqGoOnStatus
func moqGoOnStatus(token C.uint64_t, code C.uint32_t) {
	if entry, ok := route(token); ok {
		entry.OnStatus(handle.Token(token), uint32(code))
	}
}

//export moqGoOnSetup
func moqGoOnSetup(token C.uint64_t, payload *C.uint8_t, n C.size_t) {
	if entry, ok := route(token); ok {
		entry.OnSetup(handle.Token(token), unsafe.Slice((*byte)(unsafe.Pointer(payload)), int(n)))
	}
}
