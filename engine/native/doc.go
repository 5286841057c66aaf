// Package native binds engine.Engine to a shared library implementing
// moq_engine.h. It is only built with cgo and the moqnative build tag:
//
//	CGO_LDFLAGS=-L/path/to/lib go build -tags moqnative ./...
//
// The library must allow concurrent calls on one engine pointer, which is
// what engine.Adopt assumes. Callbacks reach Go through two exported
// functions that carry nothing but the registered token; the token selects
// the Entrypoints given to RegisterCallbacks.
package native
