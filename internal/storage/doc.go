// Package storage defines the persistence interfaces for session snapshots.
//
// A snapshot is one complete save of a running game: session metadata, the
// ordered participant list, and the rule-specific payload as an opaque blob
// keyed by game type. Autosaves rotate within a bounded count per session;
// manual saves are numbered monotonically and never rotated.
//
// Implementations live in subpackages; the SQLite store is the default.
package storage
