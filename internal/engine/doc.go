// Package engine drives one run of a compiled graph plan to completion.
//
// Layers are dispatched concurrently and synchronized on a join barrier:
// the engine waits for every node in a layer to finish, successfully or
// not, before folding results into the run state in declared node order.
// Node failures are recorded as data and never abort sibling nodes; the
// aggregator downstream is the designated consumer of partial completion.
//
// The whole run is bounded by a wall-clock timeout and retried with
// exponential backoff on transient errors. Validation errors, on input or
// terminal output, are fatal immediately.
package engine
