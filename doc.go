// Package moqbridge drives a Media over QUIC client engine that lives outside
// the Go runtime: a guest module run by wazero, or a native library reached
// through cgo.
//
// # Architecture Overview
//
//	moqbridge/
//	├── client/          Client lifecycle, callback dispatch, metrics
//	├── config/          YAML configuration and its boundary record
//	├── engine/          Engine interface, owned references, wazero host
//	│   ├── enginetest/  Scriptable in-process engine for tests
//	│   └── native/      cgo binding (build tag moqnative)
//	├── events/          Bounded per-client event channels
//	├── handle/          Generation-checked token table
//	├── status/          Connection status set and model
//	├── track/           Namespaces and the published track registry
//	├── errors/          Structured error types
//	└── cmd/moqbridge/   Command line front end
//
// # Quick Start
//
//	eng, err := engine.NewWazeroEngine(ctx, guest.Loopback(), nil)
//	if err != nil {
//		return err
//	}
//	defer eng.Close(ctx)
//
//	c, err := client.Connect(ctx, cfg, client.Options{Engine: eng})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if err := c.WaitReady(ctx); err != nil {
//		return err
//	}
//	t, err := c.Publish(ctx, track.ParseNamespace("chat/room1"), nil)
//
// # Callbacks
//
// Engines call back on threads they own. Every callback carries a token that
// names one client; the token resolves through a table and the event is
// pushed onto a bounded channel without blocking. The client consumes those
// channels on its own goroutines, so user hooks never run on engine threads.
//
// # Ownership
//
// A client owns exactly one engine reference. Shutdown and Close release it
// once; later use reports a closed error instead of touching the engine.
package moqbridge
