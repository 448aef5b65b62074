// Package graph validates a declarative graph definition and compiles it
// into an executable plan.
//
// Compilation performs the structural checks the engine relies on: every
// edge endpoint must be a declared node (or the reserved START/END ids),
// the static edge set must form a DAG, and every node must be reachable
// from START. A finalizer node is always present in the compiled plan; if
// the definition omits one, a default finalizer is injected and wired from
// every terminal node so parallel branches have a single convergence point.
//
// The plan groups nodes into layers: all of a layer's predecessors sit in
// earlier layers, so nodes within a layer are mutually independent and run
// concurrently. Targets reachable only through conditional edges are not
// assigned to a layer; the engine schedules them opportunistically when a
// condition resolves to them at run time.
package graph
