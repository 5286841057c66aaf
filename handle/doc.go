// Package handle provides the generation-checked token table used to hand Go
// objects across the engine boundary.
//
// No Go pointer ever crosses the boundary. Instead an object is stored in a
// Table and the engine receives an integer Token:
//
//	token = generation<<32 | (slot + 1)
//
// Token 0 is never issued, so engines can use it as their "no callback"
// marker. When an entry is removed its slot is recycled with a bumped
// generation, so a token kept by a misbehaving engine resolves to ErrStale
// instead of to whatever object reuses the slot.
//
//	table := handle.NewTable[*Context]()
//	tok := table.Insert(ctx)
//
//	// inside an engine callback
//	c, err := table.Resolve(tok)
//
//	// teardown, after the engine stopped calling back
//	_, err = table.Remove(tok)
//
// Remove is the single release path for an entry: removing twice reports
// ErrStale, which callers treat as a boundary violation.
package handle
