// Package track holds the application-level track handles of a client and
// the registry they live in.
//
// A Track is shared by pointer between the registry and callers. Its
// registered flag is atomic: toggling it never takes the registry lock, and
// Retire lets exactly one caller win the right to release the engine's token
// for the track.
package track
