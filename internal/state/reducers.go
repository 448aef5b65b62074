package state

// Key names one slot of the fixed state key space.
type Key string

// The reserved key space. Every key is bound to exactly one reducer; there
// are no dynamic keys.
const (
	KeyInput     Key = "input"
	KeyMessages  Key = "messages"
	KeyResults   Key = "results"
	KeyCompleted Key = "completedNodes"
	KeyScores    Key = "analyzerScores"
	KeyError     Key = "error"
	KeyMetadata  Key = "metadata"
	KeyDecision  Key = "finalDecision"
	KeyOutput    Key = "finalOutput"
)

// Reducer combines an existing value for a key with a newly written one.
// Reducers must be pure: the fold order is fixed by the engine, not by them.
type Reducer func(prev, next any) any

// Registry binds each reserved key to its reducer.
type Registry map[Key]Reducer

// NewRegistry returns the reducer bindings for the reserved key space.
func NewRegistry() Registry {
	return Registry{
		KeyInput:     lastWrite,
		KeyMessages:  appendStrings,
		KeyResults:   mapUnion,
		KeyCompleted: appendStrings,
		KeyScores:    scoreUnion,
		KeyError:     lastWrite,
		KeyMetadata:  mapUnion,
		KeyDecision:  lastWrite,
		KeyOutput:    lastWrite,
	}
}

// lastWrite keeps the later value. Ties between concurrent writers are
// broken by the engine's declared-order fold, never by completion order.
func lastWrite(_, next any) any { return next }

// mapUnion shallow-merges string-keyed maps; the later writer wins per key.
func mapUnion(prev, next any) any {
	pm, _ := prev.(map[string]any)
	nm, ok := next.(map[string]any)
	if !ok {
		return prev
	}
	out := make(map[string]any, len(pm)+len(nm))
	for k, v := range pm {
		out[k] = v
	}
	for k, v := range nm {
		out[k] = v
	}
	return out
}

// scoreUnion is mapUnion for the numeric analyzer score map.
func scoreUnion(prev, next any) any {
	pm, _ := prev.(map[string]float64)
	nm, ok := next.(map[string]float64)
	if !ok {
		return prev
	}
	out := make(map[string]float64, len(pm)+len(nm))
	for k, v := range pm {
		out[k] = v
	}
	for k, v := range nm {
		out[k] = v
	}
	return out
}

// appendStrings concatenates list values in fold order.
func appendStrings(prev, next any) any {
	pl, _ := prev.([]string)
	nl, ok := next.([]string)
	if !ok {
		return prev
	}
	out := make([]string, 0, len(pl)+len(nl))
	out = append(out, pl...)
	out = append(out, nl...)
	return out
}
