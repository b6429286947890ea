// Package statestore persists one pipeline state record per namespace.
//
// Records live at <root>/namespaces/<name>/state.json and are written through
// a single path: a per-namespace writer lock around read-modify-write, with
// temp-file-then-rename so readers never observe a torn record. Timestamps
// are monotonically non-decreasing per namespace. A corrupt record surfaces
// as ErrCorrupt so the caller can reinitialize instead of crashing.
package statestore
