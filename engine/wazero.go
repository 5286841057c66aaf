package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/suhasHere/moqbridge/config"
	"github.com/suhasHere/moqbridge/handle"
	"github.com/suhasHere/moqbridge/track"
)

// Ledger kinds of guest buffers.
const (
	bufConfig    = "guest-config"
	bufNamespace = "guest-namespace"
)

// WazeroEngine hosts an engine compiled to a WebAssembly core module.
// Every Create instantiates the module once; the raw reference names that
// instance.
type WazeroEngine struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	name     string
	ledger   *Ledger

	mu        sync.RWMutex
	instances map[uintptr]*wazeroInstance
	byModule  map[string]*wazeroInstance

	seq     atomic.Uint64
	late    atomic.Uint64
	foreign atomic.Uint64
}

// WazeroConfig holds configuration for engine creation
type WazeroConfig struct {
	// Name prefixes instance names and appears in errors. Default "wasm".
	Name string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

type binding struct {
	entry Entrypoints
	token handle.Token
}

// wazeroInstance is one guest engine. mu serializes calls into it; host
// callbacks run while it is held and must not take it.
type wazeroInstance struct {
	mod     api.Module
	fns     map[string]api.Function
	binding atomic.Pointer[binding]
	id      uint64
	guest   uint32
	mu      sync.Mutex
}

// NewWazeroEngine compiles guest and prepares the host module it imports.
func NewWazeroEngine(ctx context.Context, guest []byte, cfg *WazeroConfig) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	name := "wasm"
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Name != "" {
			name = cfg.Name
		}
	}

	e := &WazeroEngine{
		runtime:   wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		name:      name,
		ledger:    NewLedger(),
		instances: make(map[uintptr]*wazeroInstance),
		byModule:  make(map[string]*wazeroInstance),
	}

	_, err := e.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.onStatus),
			[]api.ValueType{api.ValueTypeI64, api.ValueTypeI32}, nil).
		Export(HostOnStatus).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.onSetup),
			[]api.ValueType{api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export(HostOnSetup).
		Instantiate(ctx)
	if err != nil {
		_ = e.runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate host module: %w", err)
	}

	e.compiled, err = e.runtime.CompileModule(ctx, guest)
	if err != nil {
		_ = e.runtime.Close(ctx)
		return nil, fmt.Errorf("compile guest: %w", err)
	}

	exports := e.compiled.ExportedFunctions()
	for _, fn := range requiredExports {
		if _, ok := exports[fn]; !ok {
			_ = e.runtime.Close(ctx)
			return nil, fmt.Errorf("guest does not export %q", fn)
		}
	}
	if _, ok := e.compiled.ExportedMemories()[ExportMemory]; !ok {
		_ = e.runtime.Close(ctx)
		return nil, fmt.Errorf("guest does not export %q", ExportMemory)
	}
	return e, nil
}

func (e *WazeroEngine) Name() string { return e.name }

// Ledger exposes the guest buffer ledger.
func (e *WazeroEngine) Ledger() *Ledger { return e.ledger }

// LateCallbacks counts callbacks the guest made with no registration.
func (e *WazeroEngine) LateCallbacks() uint64 { return e.late.Load() }

// ForeignCallbacks counts callbacks dropped because the guest passed a token
// other than the one registered on its instance.
func (e *WazeroEngine) ForeignCallbacks() uint64 { return e.foreign.Load() }

// Instances returns the number of live guest instances.
func (e *WazeroEngine) Instances() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.instances)
}

// Close releases the runtime and every instance still alive.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func (e *WazeroEngine) Create(ctx context.Context, rec *config.Record) (uintptr, error) {
	id := e.seq.Add(1)
	modCfg := wazero.NewModuleConfig().WithName(fmt.Sprintf("%s-%d", e.name, id))
	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, modCfg)
	if err != nil {
		return 0, fmt.Errorf("instantiate guest: %w", err)
	}

	inst := &wazeroInstance{
		mod: mod,
		fns: make(map[string]api.Function, len(requiredExports)),
		id:  id,
	}
	for _, fn := range requiredExports {
		inst.fns[fn] = mod.ExportedFunction(fn)
	}

	e.mu.Lock()
	e.instances[uintptr(id)] = inst
	e.byModule[mod.Name()] = inst
	e.mu.Unlock()

	inst.mu.Lock()
	defer inst.mu.Unlock()

	var ref uint32
	err = e.withGuestBuffer(ctx, inst, bufConfig, rec.Encode(), func(ptr, n uint32) error {
		res, err := inst.fns[ExportCreate].Call(ctx, uint64(ptr), uint64(n))
		if err != nil {
			return err
		}
		ref = api.DecodeU32(res[0])
		return nil
	})
	if err != nil || ref == 0 {
		e.forget(ctx, inst)
		return 0, err
	}
	inst.guest = ref
	Logger().Debug("guest engine created", zap.String("module", mod.Name()), zap.Uint32("guest_ref", ref))
	return uintptr(id), nil
}

func (e *WazeroEngine) RegisterCallbacks(ctx context.Context, ref uintptr, token handle.Token, entry Entrypoints) error {
	inst, err := e.instance(ref)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	// Installed before the guest learns the token: it may call back at once.
	if !inst.binding.CompareAndSwap(nil, &binding{entry: entry, token: token}) {
		return fmt.Errorf("%s: callbacks already registered on %s", ExportRegisterCallbacks, inst.mod.Name())
	}
	if _, err := inst.fns[ExportRegisterCallbacks].Call(ctx, uint64(inst.guest), uint64(token)); err != nil {
		inst.binding.Store(nil)
		return err
	}
	return nil
}

func (e *WazeroEngine) UnregisterCallbacks(ctx context.Context, ref uintptr) error {
	inst, err := e.instance(ref)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	_, err = inst.fns[ExportUnregisterCallbacks].Call(ctx, uint64(inst.guest))
	inst.binding.Store(nil)
	return err
}

func (e *WazeroEngine) Publish(ctx context.Context, ref uintptr, t *track.Track) (uint64, error) {
	inst, err := e.instance(ref)
	if err != nil {
		return 0, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	var tok uint64
	err = e.withGuestBuffer(ctx, inst, bufNamespace, t.Namespace().Encode(), func(ptr, n uint32) error {
		res, err := inst.fns[ExportPublish].Call(ctx, uint64(inst.guest), uint64(ptr), uint64(n))
		if err != nil {
			return err
		}
		tok = uint64(api.DecodeU32(res[0]))
		return nil
	})
	if err != nil {
		return 0, err
	}
	if tok == 0 {
		return 0, fmt.Errorf("%s refused %s", ExportPublish, t)
	}
	return tok, nil
}

func (e *WazeroEngine) Unpublish(ctx context.Context, ref uintptr, trackToken uint64) error {
	return e.call(ctx, ref, ExportUnpublish, api.EncodeU32(uint32(trackToken)))
}

func (e *WazeroEngine) Disconnect(ctx context.Context, ref uintptr) error {
	return e.call(ctx, ref, ExportDisconnect)
}

func (e *WazeroEngine) Destroy(ctx context.Context, ref uintptr) error {
	inst, err := e.instance(ref)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.binding.Load() != nil {
		Logger().Warn("guest engine destroyed with callbacks registered", zap.String("module", inst.mod.Name()))
		inst.binding.Store(nil)
	}
	_, err = inst.fns[ExportDestroy].Call(ctx, uint64(inst.guest))
	e.forget(ctx, inst)
	return err
}

func (e *WazeroEngine) call(ctx context.Context, ref uintptr, fn string, args ...uint64) error {
	inst, err := e.instance(ref)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	params := append([]uint64{uint64(inst.guest)}, args...)
	_, err = inst.fns[fn].Call(ctx, params...)
	return err
}

func (e *WazeroEngine) instance(ref uintptr) (*wazeroInstance, error) {
	e.mu.RLock()
	inst := e.instances[ref]
	e.mu.RUnlock()
	if inst == nil {
		return nil, fmt.Errorf("unknown %s reference %d", e.name, ref)
	}
	return inst, nil
}

func (e *WazeroEngine) forget(ctx context.Context, inst *wazeroInstance) {
	e.mu.Lock()
	delete(e.instances, uintptr(inst.id))
	delete(e.byModule, inst.mod.Name())
	e.mu.Unlock()
	if err := inst.mod.Close(ctx); err != nil {
		Logger().Warn("close guest instance", zap.String("module", inst.mod.Name()), zap.Error(err))
	}
}

// withGuestBuffer copies data into memory allocated by the guest, runs fn
// and frees the buffer. The free is the only release path of the buffer.
func (e *WazeroEngine) withGuestBuffer(ctx context.Context, inst *wazeroInstance, kind string, data []byte, fn func(ptr, n uint32) error) error {
	res, err := inst.fns[ExportAlloc].Call(ctx, uint64(len(data)))
	if err != nil {
		return fmt.Errorf("%s: %w", ExportAlloc, err)
	}
	ptr := api.DecodeU32(res[0])
	id := inst.id<<32 | uint64(ptr)
	e.ledger.Acquire(kind, id)
	defer func() {
		e.ledger.Release(kind, id)
		if _, err := inst.fns[ExportFree].Call(ctx, uint64(ptr)); err != nil {
			Logger().Warn("guest free failed", zap.String("kind", kind), zap.Error(err))
		}
	}()

	if !inst.mod.Memory().Write(ptr, data) {
		return fmt.Errorf("%s of %d bytes does not fit guest memory at %#x", kind, len(data), ptr)
	}
	return fn(ptr, uint32(len(data)))
}

func (e *WazeroEngine) lookup(mod api.Module, token uint64) (*binding, bool) {
	e.mu.RLock()
	inst := e.byModule[mod.Name()]
	e.mu.RUnlock()
	if inst == nil {
		return nil, false
	}
	b := inst.binding.Load()
	if b == nil {
		e.late.Add(1)
		Logger().Warn("guest callback without registration", zap.String("module", mod.Name()))
		return nil, false
	}
	if handle.Token(token) != b.token {
		e.foreign.Add(1)
		Logger().Warn("guest callback with a foreign token",
			zap.String("module", mod.Name()), zap.Stringer("token", handle.Token(token)))
		return nil, false
	}
	return b, true
}

func (e *WazeroEngine) onStatus(_ context.Context, mod api.Module, stack []uint64) {
	b, ok := e.lookup(mod, stack[0])
	if !ok {
		return
	}
	b.entry.OnStatus(b.token, api.DecodeU32(stack[1]))
}

func (e *WazeroEngine) onSetup(_ context.Context, mod api.Module, stack []uint64) {
	b, ok := e.lookup(mod, stack[0])
	if !ok {
		return
	}
	ptr, n := api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	payload, ok := mod.Memory().Read(ptr, n)
	if !ok {
		Logger().Error("guest setup payload out of range",
			zap.String("module", mod.Name()), zap.Uint32("ptr", ptr), zap.Uint32("len", n))
		return
	}
	b.entry.OnSetup(b.token, payload)
}
