// Package storage models browser key-value storage for Tabsync.
//
// This package defines the store contract every other layer builds on:
// string values under string keys, two areas per origin, and change
// events that fan out to the other execution contexts sharing the
// origin.
//
// # Areas
//
// Each origin has a local area, shared by every tab and persisted by
// the browser, and a session area private to a single tab:
//
//	part := storage.NewPartition()
//	ctx := part.Bind("ctx-1")
//	ctx.Local().SetItem("theme", "dark")    // visible to every context
//	ctx.Session().SetItem("draft", "...")   // visible to ctx-1 only
//
// # Change Events
//
// Writes to the local area are broadcast to every other context bound
// to the partition, never to the writer itself, matching the browser's
// storage event semantics:
//
//	events, cancel := part.Subscribe("ctx-2", 16)
//	defer cancel()
//	for ev := range events {
//	    // ev.Origin == "ctx-1", ev.Key == "theme"
//	}
//
// # Quota
//
// MemoryStore optionally enforces a byte quota, returning
// ErrQuotaExceeded from SetItem when the write would not fit. Callers
// are expected to absorb the error and carry on with in-memory state.
package storage
