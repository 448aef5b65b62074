// Package node provides the uniform execution contract around one unit of
// domain work: the Adapter wraps a registered Handler with input/output
// validation and bounded retries, and reports success or a typed failure
// as a value instead of raising it through the engine.
//
// The Registry maps node type tags to handler constructors, resolved once
// at graph compile time, so an invalid node type is a compile-time error
// rather than a runtime lookup failure.
package node
