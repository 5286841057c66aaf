// Package engine is the boundary between a client and the opaque transport
// engine that does the actual work.
//
// An Engine is driven through a raw reference, and it reports back through
// Entrypoints which only ever receive a handle.Token:
//
//	raw, err := eng.Create(ctx, record)
//	ref := engine.Adopt(eng, raw)
//	ref.RegisterCallbacks(ctx, token, dispatcher)
//	...
//	ref.UnregisterCallbacks(ctx) // no callback after this returns
//	ref.Release(ctx)             // engine Destroy, exactly once
//
// # Implementations
//
//	WazeroEngine       engine compiled to a WebAssembly core module
//	enginetest.Engine  scriptable in-process fake for tests
//	native.Engine      cgo binding to moq_engine.h (build tag moqnative)
//
// # Guest ABI
//
// A WebAssembly engine imports two functions from the "moq_host" module:
//
//	on_status(token i64, code i32)
//	on_setup(token i64, ptr i32, len i32)
//
// and exports its memory, a moq_alloc/moq_free pair and the engine_* entry
// points listed in abi.go. Buffers the host passes in (the encoded config
// record, an encoded namespace) are allocated with moq_alloc, freed with
// moq_free after the call and recorded in the Ledger meanwhile. A setup
// payload is only read during on_setup and copied by the receiver.
package engine
