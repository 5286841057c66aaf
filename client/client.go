package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/suhasHere/moqbridge/config"
	"github.com/suhasHere/moqbridge/engine"
	moqerrors "github.com/suhasHere/moqbridge/errors"
	"github.com/suhasHere/moqbridge/events"
	"github.com/suhasHere/moqbridge/status"
	"github.com/suhasHere/moqbridge/track"
)

// Options configure Connect. Engine is required.
type Options struct {
	Engine engine.Engine

	// Logger defaults to the package Logger.
	Logger *zap.Logger

	Metrics *Metrics

	// Dispatcher defaults to DefaultDispatcher.
	Dispatcher *Dispatcher

	// ShutdownTimeout overrides the configured shutdownTimeout when positive.
	ShutdownTimeout time.Duration

	// OnStatus and OnSetup run on the client's pump goroutines, in event
	// order, after the status model was updated. They must not call
	// Shutdown or Close, which wait for the pumps.
	OnStatus func(status.Status)
	OnSetup  func(ServerSetup)
}

// Client is a connection to a relay through one engine reference.
//
// Every method is safe for concurrent use. Close must be called, directly
// or through Shutdown, to release the engine.
type Client struct {
	id           uuid.UUID
	opts         Options
	log          *zap.Logger
	ref          *engine.Ref
	cc           *CallbackContext
	model        *status.Model
	registry     *track.Registry
	statusRx     *events.Channel[status.Status]
	setupRx      *events.Channel[ServerSetup]
	pumps        errgroup.Group
	shutdownWait time.Duration

	setupMu    sync.Mutex
	setup      *ServerSetup
	setupReady chan struct{}

	// lifecycle is held shared by Publish and Unpublish and exclusively by
	// teardown, so the engine never sees a track call after Destroy.
	lifecycle  sync.RWMutex
	torn       bool
	registered bool

	nextTrack atomic.Uint64
	stopping  atomic.Bool
	done      chan struct{}
}

// Connect creates an engine reference for cfg, registers callbacks on it and
// returns a client in status Connecting. Use WaitReady to wait for the
// relay.
func Connect(ctx context.Context, cfg *config.Config, opts Options) (*Client, error) {
	if opts.Engine == nil {
		return nil, moqerrors.Configuration("engine", "no engine given")
	}
	if cfg == nil {
		return nil, moqerrors.Configuration("config", "no configuration given")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rec, err := cfg.Marshal()
	if err != nil {
		return nil, err
	}

	raw, err := opts.Engine.Create(ctx, rec)
	if err != nil || raw == 0 {
		return nil, moqerrors.EngineCreation(opts.Engine.Name(), err)
	}

	id := uuid.New()
	base := opts.Logger
	if base == nil {
		base = Logger()
	}
	d := opts.Dispatcher
	if d == nil {
		d = DefaultDispatcher()
	}
	wait := cfg.ShutdownWait()
	if opts.ShutdownTimeout > 0 {
		wait = opts.ShutdownTimeout
	}

	c := &Client{
		id:           id,
		opts:         opts,
		log:          base.With(zap.Stringer("client_id", id), zap.String("engine", opts.Engine.Name())),
		ref:          engine.Adopt(opts.Engine, raw),
		model:        status.NewModel(),
		registry:     track.NewRegistry(),
		statusRx:     events.New[status.Status](),
		setupRx:      events.New[ServerSetup](),
		shutdownWait: wait,
		setupReady:   make(chan struct{}),
		done:         make(chan struct{}),
	}
	c.cc = newCallbackContext(d, c.statusRx.Sender(), c.setupRx.Sender(), c.log, opts.Metrics)
	c.pumps.Go(c.pumpStatus)
	c.pumps.Go(c.pumpSetup)

	// Connecting still travels through the channel; Connect returns once the
	// model applied it.
	c.cc.DispatchStatus(status.Connecting)
	if _, err := c.model.Wait(ctx, func(s status.Status) bool { return s != status.Unknown }); err != nil {
		c.stopping.Store(true)
		c.teardown(context.WithoutCancel(ctx))
		return nil, err
	}
	if err := c.ref.RegisterCallbacks(ctx, c.cc.Token(), d); err != nil {
		c.stopping.Store(true)
		c.teardown(context.WithoutCancel(ctx))
		return nil, err
	}
	c.registered = true

	c.log.Info("client connecting", zap.String("relay", cfg.RelayURL))
	return c, nil
}

// ID identifies the client in logs.
func (c *Client) ID() uuid.UUID { return c.id }

// Status returns the last status applied to the client.
func (c *Client) Status() status.Status { return c.model.Current() }

// Done is closed once the client released its engine.
func (c *Client) Done() <-chan struct{} { return c.done }

// Wait blocks until the status satisfies pred or ctx ends.
func (c *Client) Wait(ctx context.Context, pred func(status.Status) bool) (status.Status, error) {
	return c.model.Wait(ctx, pred)
}

// WaitReady blocks until the client is ready. It fails with a not_ready
// error if the client reaches a final status first.
func (c *Client) WaitReady(ctx context.Context) error {
	s, err := c.model.Wait(ctx, func(s status.Status) bool {
		return s.IsReady() || s.IsFinal()
	})
	if err != nil {
		return err
	}
	if !s.IsReady() {
		return moqerrors.NotReady(moqerrors.PhaseRegister, s)
	}
	return nil
}

// ServerSetup returns the setup payload of this connection, waiting for it.
// Only the first payload the engine delivers is kept.
func (c *Client) ServerSetup(ctx context.Context) (ServerSetup, error) {
	select {
	case <-c.setupReady:
		return c.lastSetup(), nil
	default:
	}
	select {
	case <-c.setupReady:
		return c.lastSetup(), nil
	case <-c.done:
		return ServerSetup{}, moqerrors.Closed(moqerrors.PhaseRegister, "client")
	case <-ctx.Done():
		return ServerSetup{}, ctx.Err()
	}
}

func (c *Client) lastSetup() ServerSetup {
	c.setupMu.Lock()
	defer c.setupMu.Unlock()
	return *c.setup
}

// Tracks returns the tracks matching pred; nil selects all.
func (c *Client) Tracks(pred track.Predicate) []*track.Track {
	if pred == nil {
		pred = track.All
	}
	return c.registry.Snapshot(pred)
}

// Publish announces ns. src is kept on the track for the engine.
func (c *Client) Publish(ctx context.Context, ns track.Namespace, src any) (*track.Track, error) {
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.torn {
		return nil, moqerrors.Closed(moqerrors.PhasePublish, "client")
	}
	if s := c.model.Current(); !s.IsReady() {
		return nil, moqerrors.NotReady(moqerrors.PhasePublish, s)
	}

	t := track.New(c.nextTrack.Add(1), ns, track.Publish, src)
	if !c.registry.InsertIfAbsent(t, track.InNamespace(ns)) {
		return nil, moqerrors.AlreadyPublished(ns.String())
	}

	tok, err := c.ref.Publish(ctx, t)
	if err != nil {
		c.registry.RemoveWhere(track.Is(t))
		c.log.Warn("publish failed", zap.Stringer("namespace", ns), zap.Error(err))
		return nil, err
	}
	t.Bind(tok)
	c.opts.Metrics.trackPublished()

	// A concurrent Unpublish may have removed t before it was bound.
	if !c.registry.Contains(t) {
		if err := c.release(ctx, t); err != nil {
			return nil, err
		}
		return nil, moqerrors.Closed(moqerrors.PhasePublish, "track "+ns.String())
	}

	c.log.Info("track published", zap.Stringer("namespace", ns), zap.Uint64("track", t.ID()))
	return t, nil
}

// Unpublish removes t. Removing a track that is not published is a no-op.
func (c *Client) Unpublish(ctx context.Context, t *track.Track) error {
	if t == nil {
		return nil
	}
	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.torn {
		return nil
	}
	if len(c.registry.RemoveWhere(track.Is(t))) == 0 {
		return nil
	}
	if err := c.release(ctx, t); err != nil {
		return err
	}
	c.log.Info("track unpublished", zap.Stringer("namespace", t.Namespace()), zap.Uint64("track", t.ID()))
	return nil
}

// release gives the engine token of t back, at most once per track.
func (c *Client) release(ctx context.Context, t *track.Track) error {
	if !t.Retire() {
		return nil
	}
	c.opts.Metrics.trackUnpublished()
	return c.ref.Unpublish(ctx, t.EngineToken())
}

// Shutdown disconnects from the relay, waits for the engine to report a
// terminal status and releases the engine. The wait ends at the earlier of
// ctx and the shutdown timeout; teardown runs regardless and the returned
// error then has kind timeout.
//
// Only the first Shutdown or Close does the work. A later Shutdown waits
// for it and returns a closed error.
func (c *Client) Shutdown(ctx context.Context) error {
	if !c.stopping.CompareAndSwap(false, true) {
		<-c.done
		return moqerrors.Closed(moqerrors.PhaseShutdown, "client")
	}

	var ackErr error
	if !c.model.IsTerminal() {
		c.cc.DispatchStatus(status.Disconnecting)
		if err := c.ref.Disconnect(ctx); err != nil {
			ackErr = err
		} else {
			wctx, cancel := context.WithTimeout(ctx, c.shutdownWait)
			_, err := c.model.Wait(wctx, status.Status.IsTerminal)
			cancel()
			if err != nil {
				ackErr = moqerrors.Timeout(moqerrors.PhaseShutdown,
					fmt.Sprintf("engine did not report a terminal status within %s", c.shutdownWait), err)
			}
		}
	}

	c.teardown(context.WithoutCancel(ctx))
	if ackErr != nil {
		c.log.Warn("shutdown without acknowledgement", zap.Error(ackErr))
	}
	return ackErr
}

// Close disconnects and releases the engine without waiting for the relay
// to acknowledge. It is idempotent.
func (c *Client) Close() error {
	if !c.stopping.CompareAndSwap(false, true) {
		<-c.done
		return nil
	}
	ctx := context.Background()
	if !c.model.IsTerminal() {
		c.cc.DispatchStatus(status.Disconnecting)
		if err := c.ref.Disconnect(ctx); err != nil {
			c.log.Warn("disconnect on close", zap.Error(err))
		}
	}
	c.teardown(ctx)
	return nil
}

func (c *Client) teardown(ctx context.Context) {
	c.lifecycle.Lock()
	c.torn = true
	c.lifecycle.Unlock()

	for _, t := range c.registry.RemoveWhere(track.All) {
		if err := c.release(ctx, t); err != nil {
			c.log.Warn("unpublish during teardown", zap.Stringer("track", t), zap.Error(err))
		}
	}

	if c.registered {
		if err := c.ref.UnregisterCallbacks(ctx); err != nil {
			c.log.Warn("unregister callbacks", zap.Error(err))
		}
	}

	// Nothing from the engine can follow this any more.
	if !c.model.IsTerminal() || c.statusRx.Len() > 0 {
		c.cc.DispatchStatus(status.Shutdown)
	}
	if err := c.ref.Release(ctx); err != nil {
		c.log.Warn("destroy engine reference", zap.Error(err))
	}

	c.cc.destroy()
	_ = c.pumps.Wait()
	c.statusRx.Close()
	c.setupRx.Close()

	close(c.done)
	c.log.Info("client closed", zap.Stringer("status", c.model.Current()))
}

func (c *Client) pumpStatus() error {
	for {
		s, err := c.statusRx.Recv(context.Background())
		if err != nil {
			return nil
		}
		prev := c.model.Current()
		c.model.Apply(s)
		c.opts.Metrics.statusApplied(s)

		if s == status.Error {
			c.log.Warn("engine reported an error", zap.Stringer("from", prev))
		} else {
			c.log.Debug("status", zap.Stringer("from", prev), zap.Stringer("to", s))
		}
		if c.opts.OnStatus != nil {
			c.opts.OnStatus(s)
		}
	}
}

func (c *Client) pumpSetup() error {
	for {
		r, err := c.setupRx.Recv(context.Background())
		if err != nil {
			return nil
		}
		c.setupMu.Lock()
		first := c.setup == nil
		if first {
			c.setup = &r
		}
		c.setupMu.Unlock()
		if !first {
			c.log.Warn("discarding repeated server setup", zap.Int("bytes", len(r.Payload)))
			continue
		}
		close(c.setupReady)
		c.log.Debug("server setup", zap.Int("bytes", len(r.Payload)))
		if c.opts.OnSetup != nil {
			c.opts.OnSetup(r)
		}
	}
}
