// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (which bridge operation failed) and Kind
// (error category). The Error type carries the offending field, a detail
// message and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConfig, errors.KindConfiguration).
//		Field("clientName").
//		Detail("embedded NUL byte at offset %d", 3).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotReady(errors.PhasePublish, status.Connecting)
//	err := errors.EngineCall(errors.PhasePublish, "engine_publish", cause)
//
// The exported sentinels match every error of their kind, whatever the phase:
//
//	if errors.Is(err, moqerrors.ErrNotReady) { ... }
//
// ChannelClosed errors are absorbed by producers and never returned to
// callers. BoundaryViolation marks a breach of the ownership protocol between
// the bridge and the engine; the bridge panics with it at contract-check sites.
package errors
