// Package slot binds typed application state to browser storage keys
// and keeps it synchronized across execution contexts.
//
// A slot couples a value of any type T to a key in the local or
// session area of one context's storage. Reading an absent or
// malformed value yields the slot's default; writing updates storage,
// every other slot on the same key in the same context (synchronously),
// and eventually the other contexts of the origin. Storage failures
// never reach slot callers: the slot continues with its in-memory
// value.
//
// # Usage
//
//	b := slot.BindPartition(part, "ctx-1")
//	theme := slot.Use(b, "app.theme", "light")
//
//	theme.Get()                // "light", or whatever storage held
//	theme.Set("dark")          // stored and fanned out
//	theme.Update(strings.ToUpper)
//	theme.Clear()              // removed from storage, back to "light"
//
// # Codecs
//
// Values are stored as strings. The default codec passes strings
// through, renders numbers and bools with strconv, and falls back to
// JSON. Both directions can be replaced:
//
//	filters := slot.Use(b, "filters", Filters{}).
//	    Serialize(encodeFilters).
//	    Deserialize(decodeFilters)
//
// # Initial read
//
// By default a slot reads its key when first touched. DeferInitial
// postpones that read until the binder's dispatcher runs, which
// matters when the context's storage contents arrive asynchronously,
// e.g. a snapshot still in flight from the browser. Until the deferred
// read runs, the slot reports its default.
//
// # Execution contexts
//
// The Binder is the per-context host: it resolves the context's
// stores, fans writes out to sibling slots, applies changes made by
// other contexts, and records storage degradation. Server code
// normally receives a ready-made Binder from its session runtime;
// in-process code builds one with BindPartition.
package slot
