// Package status models the connection status reported by a transport engine.
//
// Status is a closed set of eight values; the engine is the only source of
// truth and Model.Apply never validates a transition. Classification
// predicates are derived from the current value and never stored.
package status

import "fmt"

// Status is one connection state reported by the engine.
// The zero value Unknown means no event has been applied yet.
type Status uint8

const (
	Unknown Status = iota
	Connecting
	Ready
	Disconnecting
	Disconnected
	Ok
	Error
	IdleTimeout
	Shutdown
)

var names = [...]string{
	Unknown:       "unknown",
	Connecting:    "connecting",
	Ready:         "ready",
	Disconnecting: "disconnecting",
	Disconnected:  "disconnected",
	Ok:            "ok",
	Error:         "error",
	IdleTimeout:   "idle_timeout",
	Shutdown:      "shutdown",
}

func (s Status) String() string {
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Code returns the boundary wire code of s.
func (s Status) Code() uint32 {
	return uint32(s)
}

// Parse decodes a boundary wire code. Code 0 and codes outside the
// closed set are rejected.
func Parse(code uint32) (Status, bool) {
	if code == 0 || code > uint32(Shutdown) {
		return Unknown, false
	}
	return Status(code), true
}

// IsReady reports whether s allows traffic.
func (s Status) IsReady() bool {
	return s == Ready || s == Ok
}

// IsTerminal reports whether the engine is done with the connection.
func (s Status) IsTerminal() bool {
	return s == Disconnected || s == Shutdown
}

// IsFinal reports whether no further traffic is possible on this
// connection attempt. Error is final but not terminal: the engine may
// still report a disconnect after it.
func (s Status) IsFinal() bool {
	return s.IsTerminal() || s == Error
}

// All returns the closed set in wire-code order.
func All() []Status {
	return []Status{Connecting, Ready, Disconnecting, Disconnected, Ok, Error, IdleTimeout, Shutdown}
}
