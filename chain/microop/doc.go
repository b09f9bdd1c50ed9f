// Package microop implements the atomic mutation pipeline's apply engine
// (spec.md §4.9): a typed, attribute-scoped sequence of operations that
// turns an old value into a new one.
//
// Three layers compose:
//   - codec.go / scalar.go: the scalar apply functions (string, int64,
//     float64) shared between top-level attributes and values nested
//     inside a map.
//   - map.go: the map container engine - decode a sorted key/value byte
//     blob, apply a batch of ops against it, re-encode in canonical
//     sorted order - built once per (key type, value type) combination
//     and dispatched by attribute type.
//   - apply.go: ApplyChecksAndOps, the per-attribute dispatcher client_atomic
//     calls to run checks then ops against a whole value vector.
package microop
