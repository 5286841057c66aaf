// Package guest assembles WebAssembly engines that speak the moq_host ABI.
//
// Loopback is the reference engine used by tests and by the CLI when no
// engine binary is given. It never touches the network:
//
//   - engine_create accepts any buffer that starts with the config record
//     magic and returns reference 1;
//   - engine_register_callbacks stores the token and reports Connecting,
//     the setup payload and Ready;
//   - engine_publish numbers tracks from 1 and refuses an empty namespace;
//   - engine_disconnect reports Disconnecting then Disconnected;
//   - engine_unregister_callbacks and engine_destroy clear the token, after
//     which the engine stays silent.
//
// moq_alloc is a bump allocator and moq_free resets the heap to the freed
// pointer, so buffers must be freed in reverse allocation order. The host
// frees every buffer before the next allocation.
package guest

import (
	"encoding/binary"
	"sync"

	"github.com/suhasHere/moqbridge/engine"
	"github.com/suhasHere/moqbridge/status"
)

// SetupPayload is what Loopback reports as the server setup.
const SetupPayload = "moq-loopback/1"

const (
	setupOffset = 16
	heapBase    = 1024
)

// Globals
const (
	globalHeap uint32 = iota
	globalToken
	globalTracks
	globalLive
)

const (
	typeOnStatus uint32 = iota
	typeOnSetup
	typeAlloc
	typeRef
	typeCreate
	typeRegister
	typePublish
	typeUnpublish
)

// Imported functions come first in the function index space.
const (
	fnOnStatus uint32 = iota
	fnOnSetup
)

var (
	loopbackOnce  sync.Once
	loopbackBytes []byte
)

// Loopback returns the binary of the loopback engine. The slice is shared
// and must not be modified.
func Loopback() []byte {
	loopbackOnce.Do(func() {
		loopbackBytes = loopbackModule().Encode()
	})
	return loopbackBytes
}

func loopbackModule() *Module {
	types := []FuncType{
		typeOnStatus:  {Params: []ValType{I64, I32}},
		typeOnSetup:   {Params: []ValType{I64, I32, I32}},
		typeAlloc:     {Params: []ValType{I32}, Results: []ValType{I32}},
		typeRef:       {Params: []ValType{I32}},
		typeCreate:    {Params: []ValType{I32, I32}, Results: []ValType{I32}},
		typeRegister:  {Params: []ValType{I32, I64}},
		typePublish:   {Params: []ValType{I32, I32, I32}, Results: []ValType{I32}},
		typeUnpublish: {Params: []ValType{I32, I32}},
	}

	magic := int32(binary.LittleEndian.Uint32([]byte("MQCF")))
	code := func(c *Code) []byte { return c.Bytes() }

	alloc := code(new(Code).
		GlobalGet(globalHeap).
		GlobalGet(globalHeap).
		LocalGet(0).I32Const(7).Op(OpI32Add).
		I32Const(-8).Op(OpI32And).
		Op(OpI32Add).
		GlobalSet(globalHeap).
		End())

	free := code(new(Code).
		LocalGet(0).GlobalSet(globalHeap).
		End())

	create := code(new(Code).
		LocalGet(1).I32Const(7).Op(OpI32LtU).If().I32Const(0).Return().End().
		LocalGet(0).I32Load(0).I32Const(magic).Op(OpI32Ne).If().I32Const(0).Return().End().
		I32Const(1).GlobalSet(globalLive).
		I32Const(1).
		End())

	register := code(new(Code).
		LocalGet(1).GlobalSet(globalToken).
		LocalGet(1).I32Const(int32(status.Connecting.Code())).Call(fnOnStatus).
		LocalGet(1).I32Const(setupOffset).I32Const(int32(len(SetupPayload))).Call(fnOnSetup).
		LocalGet(1).I32Const(int32(status.Ready.Code())).Call(fnOnStatus).
		End())

	unregister := code(new(Code).
		I64Const(0).GlobalSet(globalToken).
		End())

	publish := code(new(Code).
		LocalGet(2).I32Const(4).Op(OpI32LtU).If().I32Const(0).Return().End().
		LocalGet(1).I32Load(0).Op(OpI32Eqz).If().I32Const(0).Return().End().
		GlobalGet(globalTracks).I32Const(1).Op(OpI32Add).GlobalSet(globalTracks).
		GlobalGet(globalTracks).
		End())

	unpublish := code(new(Code).End())

	disconnect := code(new(Code).
		GlobalGet(globalToken).I64Const(0).Op(OpI64Ne).If().
		GlobalGet(globalToken).I32Const(int32(status.Disconnecting.Code())).Call(fnOnStatus).
		GlobalGet(globalToken).I32Const(int32(status.Disconnected.Code())).Call(fnOnStatus).
		End().
		End())

	destroy := code(new(Code).
		I64Const(0).GlobalSet(globalToken).
		I32Const(0).GlobalSet(globalLive).
		End())

	return &Module{
		Types: types,
		Imports: []Import{
			{Module: engine.HostModule, Name: engine.HostOnStatus, Type: typeOnStatus},
			{Module: engine.HostModule, Name: engine.HostOnSetup, Type: typeOnSetup},
		},
		Funcs: []Func{
			{Export: engine.ExportAlloc, Type: typeAlloc, Body: alloc},
			{Export: engine.ExportFree, Type: typeRef, Body: free},
			{Export: engine.ExportCreate, Type: typeCreate, Body: create},
			{Export: engine.ExportRegisterCallbacks, Type: typeRegister, Body: register},
			{Export: engine.ExportUnregisterCallbacks, Type: typeRef, Body: unregister},
			{Export: engine.ExportPublish, Type: typePublish, Body: publish},
			{Export: engine.ExportUnpublish, Type: typeUnpublish, Body: unpublish},
			{Export: engine.ExportDisconnect, Type: typeRef, Body: disconnect},
			{Export: engine.ExportDestroy, Type: typeRef, Body: destroy},
		},
		Globals: []Global{
			globalHeap:   {Type: I32, Mutable: true, Init: heapBase},
			globalToken:  {Type: I64, Mutable: true},
			globalTracks: {Type: I32, Mutable: true},
			globalLive:   {Type: I32, Mutable: true},
		},
		Data:         []Data{{Offset: setupOffset, Bytes: []byte(SetupPayload)}},
		ExportMemory: engine.ExportMemory,
		MemoryPages:  1,
	}
}
