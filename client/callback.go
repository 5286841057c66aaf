package client

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	moqerrors "github.com/suhasHere/moqbridge/errors"
	"github.com/suhasHere/moqbridge/events"
	"github.com/suhasHere/moqbridge/handle"
	"github.com/suhasHere/moqbridge/status"
)

// ServerSetup is the relay's setup payload as reported by the engine.
type ServerSetup struct {
	Received time.Time
	Payload  []byte
}

// Dispatcher routes engine callbacks to the CallbackContext their token
// names. It implements engine.Entrypoints.
//
// Native entry points are fixed functions that carry nothing but the token,
// so one Dispatcher normally serves the whole process (DefaultDispatcher).
type Dispatcher struct {
	table      *handle.Table[*CallbackContext]
	dropLog    *rate.Limiter
	metrics    atomic.Pointer[Metrics]
	violations atomic.Uint64
}

var defaultDispatcher = NewDispatcher()

// DefaultDispatcher returns the process-wide dispatcher.
func DefaultDispatcher() *Dispatcher { return defaultDispatcher }

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		table:   handle.NewTable[*CallbackContext](),
		dropLog: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Instrument counts boundary violations seen by d in m.
func (d *Dispatcher) Instrument(m *Metrics) {
	d.metrics.Store(m)
}

// Violations returns the number of callbacks rejected for an unresolvable
// token or an unknown status code.
func (d *Dispatcher) Violations() uint64 { return d.violations.Load() }

// Live returns the number of contexts that can currently be resolved.
func (d *Dispatcher) Live() int { return d.table.Len() }

func (d *Dispatcher) OnStatus(token handle.Token, code uint32) {
	cc, ok := d.resolve(token, "on_status")
	if !ok {
		return
	}
	s, ok := status.Parse(code)
	if !ok {
		d.violation()
		cc.log.Warn("engine reported an unknown status code", zap.Uint32("code", code))
		return
	}
	cc.DispatchStatus(s)
}

// OnSetup copies payload before returning; the engine keeps ownership.
func (d *Dispatcher) OnSetup(token handle.Token, payload []byte) {
	cc, ok := d.resolve(token, "on_setup")
	if !ok {
		return
	}
	cc.DispatchSetup(ServerSetup{
		Received: time.Now(),
		Payload:  append([]byte(nil), payload...),
	})
}

func (d *Dispatcher) resolve(token handle.Token, entry string) (*CallbackContext, bool) {
	cc, err := d.table.Resolve(token)
	if err != nil {
		d.violation()
		Logger().DPanic("engine callback with unresolvable token",
			zap.String("entry", entry),
			zap.Stringer("token", token),
			zap.Error(moqerrors.New(moqerrors.PhaseDispatch, moqerrors.KindBoundaryViolation).
				Cause(err).
				Detail("token no longer names a live client").
				Build()))
		return nil, false
	}
	return cc, true
}

func (d *Dispatcher) violation() {
	d.violations.Add(1)
	d.metrics.Load().boundaryViolation()
}

// CallbackContext is the per-client target of engine callbacks. It holds
// only producer ends, so delivering a callback never blocks and never
// touches client state directly.
type CallbackContext struct {
	d         *Dispatcher
	status    *events.Sender[status.Status]
	setup     *events.Sender[ServerSetup]
	log       *zap.Logger
	metrics   *Metrics
	token     handle.Token
	handedOut atomic.Bool
	destroyed atomic.Bool
}

func newCallbackContext(d *Dispatcher, statusTx *events.Sender[status.Status], setupTx *events.Sender[ServerSetup], log *zap.Logger, m *Metrics) *CallbackContext {
	cc := &CallbackContext{
		d:       d,
		status:  statusTx,
		setup:   setupTx,
		log:     log,
		metrics: m,
	}
	cc.token = d.table.Insert(cc)
	return cc
}

// Token returns the value registered with the engine. It is handed out
// once; asking again panics.
func (cc *CallbackContext) Token() handle.Token {
	if !cc.handedOut.CompareAndSwap(false, true) {
		panic(moqerrors.BoundaryViolation("callback token %s requested twice", cc.token))
	}
	return cc.token
}

// DispatchStatus queues s for the status pump.
func (cc *CallbackContext) DispatchStatus(s status.Status) {
	if err := cc.status.Send(s); err != nil {
		cc.dropped("status", err)
		return
	}
	cc.metrics.eventDispatched("status")
}

// DispatchSetup queues r for the setup pump.
func (cc *CallbackContext) DispatchSetup(r ServerSetup) {
	if err := cc.setup.Send(r); err != nil {
		cc.dropped("setup", err)
		return
	}
	cc.metrics.eventDispatched("setup")
}

func (cc *CallbackContext) dropped(kind string, err error) {
	cc.metrics.eventDropped(kind)
	if cc.d.dropLog.Allow() {
		cc.log.Debug("event dropped",
			zap.Error(moqerrors.ChannelClosed(kind, err)))
	}
}

// destroy makes the token unresolvable and closes both producers, which
// lets the pumps drain and exit. It must run after the engine stopped
// calling back.
func (cc *CallbackContext) destroy() {
	if !cc.destroyed.CompareAndSwap(false, true) {
		panic(moqerrors.BoundaryViolation("callback context %s destroyed twice", cc.token))
	}
	if _, err := cc.d.table.Remove(cc.token); err != nil {
		panic(moqerrors.BoundaryViolation("callback context %s: %v", cc.token, err))
	}
	cc.status.Close()
	cc.setup.Close()
}
