// Package enginetest provides a scriptable in-process engine.Engine.
//
// Callbacks are delivered from a worker goroutine per reference, in the
// order the engine produced them, like a native engine calling back from
// its own threads. Boundary misuse by the caller is recorded rather than
// crashing, so tests can assert on it with Misuse.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/suhasHere/moqbridge/config"
	"github.com/suhasHere/moqbridge/engine"
	"github.com/suhasHere/moqbridge/handle"
	"github.com/suhasHere/moqbridge/status"
	"github.com/suhasHere/moqbridge/track"
)

// DefaultSetup is the setup payload reported when Options.Setup is nil.
var DefaultSetup = []byte("enginetest/1")

var ErrRefused = errors.New("enginetest: refused")

// Options script the engine.
type Options struct {
	// CreateErr makes Create fail; NullCreate makes it return a zero
	// reference without an error.
	CreateErr  error
	NullCreate bool

	RegisterErr error

	// PublishErr is consulted for every publish; a non-nil result fails it.
	PublishErr func(ns track.Namespace) error

	// HoldReady keeps the engine Connecting after registration until a test
	// calls Emit.
	HoldReady bool

	// SilentDisconnect swallows Disconnect without reporting any status.
	SilentDisconnect bool

	// NoSetup never reports a setup payload.
	NoSetup bool

	Setup []byte
}

// Engine is a fake engine. The zero value is not usable; call New.
type Engine struct {
	opts Options

	mu       sync.Mutex
	refs     map[uintptr]*instance
	next     uintptr
	records  []*config.Record
	misuse   []string
	released map[uint64]int
}

type instance struct {
	entry       engine.Entrypoints
	queue       chan func()
	done        chan struct{}
	tracks      map[uint64]track.Namespace
	token       handle.Token
	nextTrack   uint64
	disconnects int
	destroyed   bool
}

var _ engine.Engine = (*Engine)(nil)

func New(opts Options) *Engine {
	return &Engine{
		opts:     opts,
		refs:     make(map[uintptr]*instance),
		released: make(map[uint64]int),
	}
}

func (e *Engine) Name() string { return "enginetest" }

func (e *Engine) Create(_ context.Context, rec *config.Record) (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, rec)
	if e.opts.CreateErr != nil {
		return 0, e.opts.CreateErr
	}
	if e.opts.NullCreate {
		return 0, nil
	}
	e.next++
	e.refs[e.next] = &instance{tracks: make(map[uint64]track.Namespace)}
	return e.next, nil
}

func (e *Engine) RegisterCallbacks(_ context.Context, ref uintptr, token handle.Token, entry engine.Entrypoints) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, err := e.live(ref, "register_callbacks")
	if err != nil {
		return err
	}
	if inst.queue != nil {
		e.misuseLocked("register_callbacks twice on %d", ref)
		return fmt.Errorf("callbacks already registered on %d", ref)
	}
	if e.opts.RegisterErr != nil {
		return e.opts.RegisterErr
	}

	inst.entry, inst.token = entry, token
	inst.queue = make(chan func(), 64)
	inst.done = make(chan struct{})
	go run(inst.queue, inst.done)

	setup := e.opts.Setup
	if setup == nil {
		setup = DefaultSetup
	}
	inst.status(status.Connecting)
	if !e.opts.NoSetup {
		inst.setup(setup)
	}
	if !e.opts.HoldReady {
		inst.status(status.Ready)
	}
	return nil
}

// UnregisterCallbacks waits until every queued callback was delivered.
func (e *Engine) UnregisterCallbacks(_ context.Context, ref uintptr) error {
	e.mu.Lock()
	inst, err := e.live(ref, "unregister_callbacks")
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if inst.queue == nil {
		e.misuseLocked("unregister_callbacks without registration on %d", ref)
		e.mu.Unlock()
		return nil
	}
	done := inst.stop()
	e.mu.Unlock()
	<-done
	return nil
}

func (e *Engine) Publish(_ context.Context, ref uintptr, t *track.Track) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, err := e.live(ref, "publish")
	if err != nil {
		return 0, err
	}
	if e.opts.PublishErr != nil {
		if err := e.opts.PublishErr(t.Namespace()); err != nil {
			return 0, err
		}
	}
	inst.nextTrack++
	tok := uint64(ref)<<32 | inst.nextTrack
	inst.tracks[tok] = t.Namespace()
	return tok, nil
}

func (e *Engine) Unpublish(_ context.Context, ref uintptr, trackToken uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, err := e.live(ref, "unpublish")
	if err != nil {
		return err
	}
	e.released[trackToken]++
	if _, ok := inst.tracks[trackToken]; !ok {
		e.misuseLocked("unpublish of unknown track token %#x", trackToken)
		return nil
	}
	delete(inst.tracks, trackToken)
	return nil
}

func (e *Engine) Disconnect(_ context.Context, ref uintptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, err := e.live(ref, "disconnect")
	if err != nil {
		return err
	}
	inst.disconnects++
	if e.opts.SilentDisconnect || inst.queue == nil {
		return nil
	}
	inst.status(status.Disconnecting)
	inst.status(status.Disconnected)
	return nil
}

func (e *Engine) Destroy(_ context.Context, ref uintptr) error {
	e.mu.Lock()
	inst, err := e.live(ref, "destroy")
	if err != nil {
		e.mu.Unlock()
		return err
	}
	inst.destroyed = true
	var done <-chan struct{}
	if inst.queue != nil {
		e.misuseLocked("destroy of %d with callbacks registered", ref)
		done = inst.stop()
	}
	e.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// Emit reports s on ref as if the engine changed status on its own.
func (e *Engine) Emit(ref uintptr, s status.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.refs[ref]
	if !ok || inst.queue == nil {
		e.misuseLocked("emit %s on %d without registration", s, ref)
		return
	}
	inst.status(s)
}

// EmitSetup reports a setup payload on ref.
func (e *Engine) EmitSetup(ref uintptr, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.refs[ref]
	if !ok || inst.queue == nil {
		e.misuseLocked("emit setup on %d without registration", ref)
		return
	}
	inst.setup(payload)
}

// Last returns the most recently created reference.
func (e *Engine) Last() uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next
}

// Token returns the token registered on ref.
func (e *Engine) Token(ref uintptr) handle.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	if inst, ok := e.refs[ref]; ok {
		return inst.token
	}
	return 0
}

// Live returns the number of references not destroyed.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, inst := range e.refs {
		if !inst.destroyed {
			n++
		}
	}
	return n
}

// Tracks returns the namespaces the engine currently publishes on ref.
func (e *Engine) Tracks(ref uintptr) []track.Namespace {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.refs[ref]
	if !ok {
		return nil
	}
	out := make([]track.Namespace, 0, len(inst.tracks))
	for _, ns := range inst.tracks {
		out = append(out, ns)
	}
	return out
}

// Disconnects returns how many times ref was told to disconnect.
func (e *Engine) Disconnects(ref uintptr) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if inst, ok := e.refs[ref]; ok {
		return inst.disconnects
	}
	return 0
}

// Unpublished returns how many times trackToken was unpublished.
func (e *Engine) Unpublished(trackToken uint64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released[trackToken]
}

// Records returns every record passed to Create.
func (e *Engine) Records() []*config.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*config.Record(nil), e.records...)
}

// Misuse returns the boundary violations observed so far.
func (e *Engine) Misuse() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.misuse...)
}

func (e *Engine) live(ref uintptr, entry string) (*instance, error) {
	inst, ok := e.refs[ref]
	if !ok {
		e.misuseLocked("%s on unknown reference %d", entry, ref)
		return nil, fmt.Errorf("%s: unknown reference %d", entry, ref)
	}
	if inst.destroyed {
		e.misuseLocked("%s on destroyed reference %d", entry, ref)
		return nil, fmt.Errorf("%s: reference %d destroyed", entry, ref)
	}
	return inst, nil
}

func (e *Engine) misuseLocked(format string, args ...any) {
	e.misuse = append(e.misuse, fmt.Sprintf(format, args...))
}

func (inst *instance) status(s status.Status) {
	entry, tok, code := inst.entry, inst.token, s.Code()
	inst.queue <- func() { entry.OnStatus(tok, code) }
}

func (inst *instance) setup(payload []byte) {
	entry, tok := inst.entry, inst.token
	buf := append([]byte(nil), payload...)
	inst.queue <- func() {
		entry.OnSetup(tok, buf)
		// The payload belongs to the engine again once the call returned.
		clear(buf)
	}
}

// stop closes the queue; the returned channel closes once the worker
// delivered what was queued.
func (inst *instance) stop() <-chan struct{} {
	close(inst.queue)
	done := inst.done
	inst.queue = nil
	return done
}

func run(queue <-chan func(), done chan<- struct{}) {
	defer close(done)
	for fn := range queue {
		fn()
	}
}
