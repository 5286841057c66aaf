package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/suhasHere/moqbridge/config"
	"github.com/suhasHere/moqbridge/engine/enginetest"
	moqerrors "github.com/suhasHere/moqbridge/errors"
	"github.com/suhasHere/moqbridge/status"
	"github.com/suhasHere/moqbridge/track"
)

func testConfig() *config.Config {
	return &config.Config{
		RelayURL:   "https://relay.example.net/moq",
		ClientName: config.String("test"),
	}
}

type fixture struct {
	c   *Client
	eng *enginetest.Engine
	d   *Dispatcher
	m   *Metrics
}

func connect(t *testing.T, engOpts enginetest.Options, mutate func(*Options)) fixture {
	t.Helper()
	f := fixture{
		eng: enginetest.New(engOpts),
		d:   NewDispatcher(),
		m:   NewMetrics(prometheus.NewRegistry()),
	}
	opts := Options{Engine: f.eng, Dispatcher: f.d, Metrics: f.m}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := Connect(context.Background(), testConfig(), opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	f.c = c
	return f
}

func waitReady(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady: %v (status %s)", err, c.Status())
	}
}

func namespaces(tracks []*track.Track) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.Namespace().String())
	}
	return out
}

func TestClient_ChatRoomScenario(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	var seen []status.Status
	f := connect(t, enginetest.Options{}, func(o *Options) {
		o.OnStatus = func(s status.Status) { seen = append(seen, s) }
	})
	ref := f.eng.Last()
	waitReady(t, f.c)

	setup, err := f.c.ServerSetup(ctx)
	if err != nil {
		t.Fatalf("ServerSetup: %v", err)
	}
	if string(setup.Payload) != string(enginetest.DefaultSetup) {
		t.Errorf("setup payload = %q, want %q", setup.Payload, enginetest.DefaultSetup)
	}

	ns := track.NewNamespace("chat", "room1")
	tr, err := f.c.Publish(ctx, ns, nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !tr.Registered() || tr.EngineToken() == 0 {
		t.Errorf("published track not bound: registered=%v token=%d", tr.Registered(), tr.EngineToken())
	}

	got := f.c.Tracks(track.All)
	if len(got) != 1 || !got[0].Namespace().Equal(ns) {
		t.Fatalf("Tracks = %v, want exactly chat/room1", namespaces(got))
	}
	if diff := cmp.Diff([]string{"chat/room1"}, namespacesOf(f.eng.Tracks(ref))); diff != "" {
		t.Errorf("engine tracks (-want +got):\n%s", diff)
	}
	if v := testutil.ToFloat64(f.m.tracksPublished); v != 1 {
		t.Errorf("tracks gauge = %v, want 1", v)
	}

	if err := f.c.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := len(f.c.Tracks(nil)); n != 0 {
		t.Errorf("%d tracks left after shutdown", n)
	}
	if s := f.c.Status(); !s.IsTerminal() {
		t.Errorf("status after shutdown = %s, want terminal", s)
	}
	if n := f.eng.Unpublished(tr.EngineToken()); n != 1 {
		t.Errorf("track token released %d times, want 1", n)
	}
	if n := f.eng.Live(); n != 0 {
		t.Errorf("%d engine references alive after shutdown", n)
	}
	if n := f.d.Live(); n != 0 {
		t.Errorf("%d callback contexts alive after shutdown", n)
	}
	if m := f.eng.Misuse(); len(m) != 0 {
		t.Errorf("boundary misuse: %v", m)
	}

	want := []status.Status{status.Connecting, status.Connecting, status.Ready, status.Disconnecting, status.Disconnecting, status.Disconnected}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("status sequence (-want +got):\n%s", diff)
	}

	select {
	case <-f.c.Done():
	default:
		t.Errorf("Done not closed after Shutdown")
	}
}

func namespacesOf(nss []track.Namespace) []string {
	out := make([]string, 0, len(nss))
	for _, ns := range nss {
		out = append(out, ns.String())
	}
	return out
}

func TestClient_ConnectThenShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := connect(t, enginetest.Options{}, nil)
	ref := f.eng.Last()
	tok := f.eng.Token(ref)

	if err := f.c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if n := f.d.Live(); n != 0 {
		t.Errorf("%d callback contexts alive", n)
	}

	// A late callback with the old token resolves to nothing.
	f.d.OnStatus(tok, status.Ready.Code())
	if n := f.d.Violations(); n != 1 {
		t.Errorf("violations = %d, want 1", n)
	}
	if s := f.c.Status(); !s.IsTerminal() {
		t.Errorf("status = %s after late callback", s)
	}
	if v := testutil.ToFloat64(f.m.boundary); v != 0 {
		t.Errorf("uninstrumented dispatcher counted %v violations in client metrics", v)
	}
}

func TestClient_UnpublishIdempotent(t *testing.T) {
	ctx := context.Background()
	f := connect(t, enginetest.Options{}, nil)
	defer f.c.Close()
	waitReady(t, f.c)

	tr, err := f.c.Publish(ctx, track.NewNamespace("chat", "room1"), nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := f.c.Unpublish(ctx, tr); err != nil {
			t.Fatalf("Unpublish #%d: %v", i+1, err)
		}
	}
	if err := f.c.Unpublish(ctx, nil); err != nil {
		t.Errorf("Unpublish(nil): %v", err)
	}
	if n := f.eng.Unpublished(tr.EngineToken()); n != 1 {
		t.Errorf("engine saw %d unpublish calls, want 1", n)
	}
	if tr.Registered() {
		t.Errorf("track still registered")
	}
	if n := len(f.c.Tracks(nil)); n != 0 {
		t.Errorf("%d tracks left", n)
	}

	// The namespace is free again.
	if _, err := f.c.Publish(ctx, track.NewNamespace("chat", "room1"), nil); err != nil {
		t.Errorf("republish: %v", err)
	}
}

func TestClient_PublishNotReady(t *testing.T) {
	ctx := context.Background()
	f := connect(t, enginetest.Options{HoldReady: true}, nil)
	defer f.c.Close()

	if _, err := f.c.Wait(ctx, func(s status.Status) bool { return s == status.Connecting }); err != nil {
		t.Fatalf("Wait connecting: %v", err)
	}
	_, err := f.c.Publish(ctx, track.NewNamespace("early"), nil)
	if !errors.Is(err, moqerrors.ErrNotReady) {
		t.Fatalf("Publish before ready = %v, want not_ready", err)
	}
	if n := len(f.c.Tracks(nil)); n != 0 {
		t.Errorf("%d tracks after refused publish", n)
	}

	f.eng.Emit(f.eng.Last(), status.Ok)
	waitReady(t, f.c)
	if _, err := f.c.Publish(ctx, track.NewNamespace("early"), nil); err != nil {
		t.Errorf("Publish once ok: %v", err)
	}
}

func TestClient_WaitReadyFailsOnError(t *testing.T) {
	f := connect(t, enginetest.Options{HoldReady: true}, nil)
	defer f.c.Close()

	f.eng.Emit(f.eng.Last(), status.Error)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := f.c.WaitReady(ctx)
	if !errors.Is(err, moqerrors.ErrNotReady) {
		t.Fatalf("WaitReady = %v, want not_ready", err)
	}
	if _, err := f.c.Publish(ctx, track.NewNamespace("x"), nil); !errors.Is(err, moqerrors.ErrNotReady) {
		t.Errorf("Publish in error state = %v", err)
	}
}

func TestClient_PublishDuplicateNamespace(t *testing.T) {
	ctx := context.Background()
	f := connect(t, enginetest.Options{}, nil)
	defer f.c.Close()
	waitReady(t, f.c)

	if _, err := f.c.Publish(ctx, track.NewNamespace("chat", "room1"), nil); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	_, err := f.c.Publish(ctx, track.NewNamespace("chat", "room1"), nil)
	if !errors.Is(err, moqerrors.ErrAlreadyPublished) {
		t.Fatalf("second Publish = %v, want already_published", err)
	}
	if _, err := f.c.Publish(ctx, track.NewNamespace("chat", "room2"), nil); err != nil {
		t.Errorf("other namespace: %v", err)
	}
	if n := len(f.eng.Tracks(f.eng.Last())); n != 2 {
		t.Errorf("engine has %d tracks, want 2", n)
	}
}

func TestClient_PublishEngineFailure(t *testing.T) {
	ctx := context.Background()
	f := connect(t, enginetest.Options{
		PublishErr: func(ns track.Namespace) error {
			if ns.String() == "bad" {
				return enginetest.ErrRefused
			}
			return nil
		},
	}, nil)
	defer f.c.Close()
	waitReady(t, f.c)

	_, err := f.c.Publish(ctx, track.NewNamespace("bad"), nil)
	if !errors.Is(err, moqerrors.ErrEngineCall) || !errors.Is(err, enginetest.ErrRefused) {
		t.Fatalf("Publish = %v, want engine_call caused by refusal", err)
	}
	if n := len(f.c.Tracks(nil)); n != 0 {
		t.Errorf("failed track left in registry")
	}
	if _, err := f.c.Publish(ctx, track.NewNamespace("good"), nil); err != nil {
		t.Errorf("Publish good: %v", err)
	}
}

func TestClient_ShutdownTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := connect(t, enginetest.Options{SilentDisconnect: true}, func(o *Options) {
		o.ShutdownTimeout = 50 * time.Millisecond
	})
	waitReady(t, f.c)
	tr, err := f.c.Publish(ctx, track.NewNamespace("a"), nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	start := time.Now()
	err = f.c.Shutdown(ctx)
	if !errors.Is(err, moqerrors.ErrTimeout) {
		t.Fatalf("Shutdown = %v, want timeout", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout %v lost its cause", err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Errorf("Shutdown took %s", d)
	}
	if s := f.c.Status(); s != status.Shutdown {
		t.Errorf("status = %s, want shutdown", s)
	}
	if n := f.eng.Unpublished(tr.EngineToken()); n != 1 {
		t.Errorf("track released %d times", n)
	}
	if n := f.eng.Live(); n != 0 {
		t.Errorf("engine reference not destroyed")
	}

	if err := f.c.Shutdown(ctx); !errors.Is(err, moqerrors.ErrClosed) {
		t.Errorf("second Shutdown = %v, want closed", err)
	}
	if err := f.c.Close(); err != nil {
		t.Errorf("Close after Shutdown: %v", err)
	}
}

func TestClient_CloseWithoutShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	f := connect(t, enginetest.Options{}, nil)
	waitReady(t, f.c)
	for i := 0; i < 3; i++ {
		if _, err := f.c.Publish(ctx, track.NewNamespace("room", fmt.Sprint(i)), nil); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if err := f.c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if n := f.eng.Disconnects(f.eng.Last()); n != 1 {
		t.Errorf("engine disconnected %d times, want 1", n)
	}
	// Close does not wait: the engine may or may not have acknowledged.
	if s := f.c.Status(); !s.IsTerminal() {
		t.Errorf("status = %s, want terminal", s)
	}
	if n := len(f.eng.Tracks(f.eng.Last())); n != 0 {
		t.Errorf("engine still has %d tracks", n)
	}
	if v := testutil.ToFloat64(f.m.tracksPublished); v != 0 {
		t.Errorf("tracks gauge = %v after close", v)
	}
	if m := f.eng.Misuse(); len(m) != 0 {
		t.Errorf("boundary misuse: %v", m)
	}

	if _, err := f.c.Publish(ctx, track.NewNamespace("late"), nil); !errors.Is(err, moqerrors.ErrClosed) {
		t.Errorf("Publish after Close = %v, want closed", err)
	}
	if err := f.c.Unpublish(ctx, track.New(1, track.NewNamespace("x"), track.Publish, nil)); err != nil {
		t.Errorf("Unpublish after Close = %v", err)
	}
	if _, err := f.c.ServerSetup(ctx); err != nil {
		t.Errorf("ServerSetup after Close = %v, want the received setup", err)
	}
}

func TestClient_CloseWithSilentEngine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var seen []status.Status
	f := connect(t, enginetest.Options{SilentDisconnect: true}, func(o *Options) {
		o.OnStatus = func(s status.Status) { seen = append(seen, s) }
	})
	waitReady(t, f.c)

	if err := f.c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := f.eng.Disconnects(f.eng.Last()); n != 1 {
		t.Errorf("engine disconnected %d times, want 1", n)
	}
	want := []status.Status{status.Connecting, status.Connecting, status.Ready, status.Disconnecting, status.Shutdown}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("status sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_CloseAfterEngineEnded(t *testing.T) {
	f := connect(t, enginetest.Options{}, nil)
	waitReady(t, f.c)
	f.eng.Emit(f.eng.Last(), status.Disconnected)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.c.Wait(ctx, status.Status.IsTerminal); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if err := f.c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := f.eng.Disconnects(f.eng.Last()); n != 0 {
		t.Errorf("terminal client disconnected %d times", n)
	}
}

func TestConnect_ReturnsConnecting(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := connect(t, enginetest.Options{HoldReady: true}, nil)
		if s := f.c.Status(); s != status.Connecting {
			t.Fatalf("iteration %d: Status() = %s right after Connect, want connecting", i, s)
		}
		_, err := f.c.Publish(context.Background(), track.NewNamespace("early"), nil)
		if !errors.Is(err, moqerrors.ErrNotReady) {
			t.Errorf("Publish while connecting = %v, want not_ready", err)
		}
		if err := f.c.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestClient_UnpublishDuringPublish(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	proceed := make(chan struct{})
	f := connect(t, enginetest.Options{PublishErr: func(track.Namespace) error {
		close(entered)
		<-proceed
		return nil
	}}, nil)
	defer f.c.Close()
	waitReady(t, f.c)

	type result struct {
		t   *track.Track
		err error
	}
	res := make(chan result, 1)
	go func() {
		tr, err := f.c.Publish(ctx, track.NewNamespace("chat", "room1"), nil)
		res <- result{tr, err}
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("publish never reached the engine")
	}
	pending := f.c.Tracks(nil)
	if len(pending) != 1 {
		t.Fatalf("%d tracks while publishing, want 1", len(pending))
	}
	if err := f.c.Unpublish(ctx, pending[0]); err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	close(proceed)

	r := <-res
	if !errors.Is(r.err, moqerrors.ErrClosed) || r.t != nil {
		t.Fatalf("Publish = %v, %v; want closed", r.t, r.err)
	}
	if n := f.eng.Unpublished(pending[0].EngineToken()); n != 1 {
		t.Errorf("engine token released %d times, want 1", n)
	}
	if n := len(f.eng.Tracks(f.eng.Last())); n != 0 {
		t.Errorf("engine still publishes %d tracks", n)
	}
	if v := testutil.ToFloat64(f.m.tracksPublished); v != 0 {
		t.Errorf("tracks gauge = %v", v)
	}
	if n := len(f.c.Tracks(nil)); n != 0 {
		t.Errorf("registry holds %d tracks", n)
	}
}

func TestConnect_Errors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     *config.Config
		engOpts enginetest.Options
		want    error
	}{
		{
			name: "missing relay",
			cfg:  &config.Config{},
			want: moqerrors.ErrConfiguration,
		},
		{
			name: "embedded NUL",
			cfg:  &config.Config{RelayURL: "https://relay.example.net", QlogDir: config.String("/tmp/q\x00log")},
			want: moqerrors.ErrConfiguration,
		},
		{
			name:    "create fails",
			cfg:     testConfig(),
			engOpts: enginetest.Options{CreateErr: enginetest.ErrRefused},
			want:    moqerrors.ErrEngineCreation,
		},
		{
			name:    "null reference",
			cfg:     testConfig(),
			engOpts: enginetest.Options{NullCreate: true},
			want:    moqerrors.ErrEngineCreation,
		},
		{
			name:    "register fails",
			cfg:     testConfig(),
			engOpts: enginetest.Options{RegisterErr: enginetest.ErrRefused},
			want:    moqerrors.ErrEngineCall,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := enginetest.New(tt.engOpts)
			d := NewDispatcher()
			c, err := Connect(ctx, tt.cfg, Options{Engine: eng, Dispatcher: d})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Connect = %v, want %v", err, tt.want)
			}
			if c != nil {
				t.Errorf("client returned with error")
			}
			if n := eng.Live(); n != 0 {
				t.Errorf("%d engine references leaked", n)
			}
			if n := d.Live(); n != 0 {
				t.Errorf("%d callback contexts leaked", n)
			}
		})
	}

	if _, err := Connect(ctx, testConfig(), Options{}); !errors.Is(err, moqerrors.ErrConfiguration) {
		t.Errorf("Connect without engine = %v", err)
	}
}

func TestConnect_MarshalsAbsentFields(t *testing.T) {
	f := connect(t, enginetest.Options{}, nil)
	defer f.c.Close()

	recs := f.eng.Records()
	if len(recs) != 1 {
		t.Fatalf("engine saw %d records", len(recs))
	}
	name, _ := recs[0].Lookup("clientName")
	if !name.Present || name.Str != "test" {
		t.Errorf("clientName = %v", name)
	}
	qlog, _ := recs[0].Lookup("qlogDir")
	if qlog.Present {
		t.Errorf("absent qlogDir marshaled as %v", qlog)
	}
}

func TestClient_SetupHookAndMetrics(t *testing.T) {
	got := make(chan []byte, 2)
	f := connect(t, enginetest.Options{}, func(o *Options) {
		o.OnSetup = func(s ServerSetup) { got <- s.Payload }
	})
	defer f.c.Close()
	waitReady(t, f.c)

	select {
	case p := <-got:
		if string(p) != string(enginetest.DefaultSetup) {
			t.Errorf("setup hook got %q, want %q", p, enginetest.DefaultSetup)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("setup not delivered")
	}
	f.eng.EmitSetup(f.eng.Last(), []byte("second"))

	// Counters are final once the engine stopped calling back.
	if err := f.c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("repeated setup reached the hook: %q", <-got)
	}
	setup, err := f.c.ServerSetup(context.Background())
	if err != nil || string(setup.Payload) != string(enginetest.DefaultSetup) {
		t.Errorf("ServerSetup = %q, %v; want the first payload", setup.Payload, err)
	}
	if v := testutil.ToFloat64(f.m.eventsDispatched.WithLabelValues("setup")); v != 2 {
		t.Errorf("setup dispatched = %v, want 2", v)
	}
	if v := testutil.ToFloat64(f.m.statusTransitions.WithLabelValues("ready")); v != 1 {
		t.Errorf("ready transitions = %v, want 1", v)
	}
}
