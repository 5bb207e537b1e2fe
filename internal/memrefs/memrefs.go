// Package memrefs carries the single cross-reference type that lets a debug
// session be tied to an external engram record without this repo
// implementing any part of the memory-graph service itself (spec.md's
// Engram/Synapse Non-goal excludes the service, not the act of referencing
// one of its ids).
package memrefs

// MemoryRef is attached to a session by an external caller that is logging
// the debugging activity as an engram. EngramID is opaque here; only the
// memory-graph service interprets it.
type MemoryRef struct {
	EngramID string `json:"engram_id"`
}
