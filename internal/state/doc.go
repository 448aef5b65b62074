// Package state implements the keyed execution record threaded through a
// graph run, together with the per-key reducers that make concurrent writes
// to shared keys well-defined.
//
// The key space is fixed: every key is bound to exactly one reducer when
// the state is created, and node handlers never mutate the state directly.
// They return a Delta, and the engine folds deltas in declared node order
// after each layer's join barrier, so the merged result is deterministic
// even though node completion order races.
package state
