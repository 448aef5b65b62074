package state

// Delta is the set of key writes a node returns on success. The engine
// folds deltas into the run's State; nodes never mutate shared state.
type Delta map[Key]any

// State is the mutable record for one graph run. It is only ever mutated
// by the engine between layers, after the join barrier, so it needs no
// internal locking.
type State struct {
	vals     map[Key]any
	reducers Registry
}

// New creates a fresh run state from the caller's input and run metadata.
func New(input any, metadata map[string]any) *State {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return &State{
		reducers: NewRegistry(),
		vals: map[Key]any{
			KeyInput:     input,
			KeyMessages:  []string{},
			KeyResults:   map[string]any{},
			KeyCompleted: []string{},
			KeyScores:    map[string]float64{},
			KeyMetadata:  meta,
		},
	}
}

// Apply folds a delta into the state, one bound reducer per key. Writes to
// keys outside the reserved space are dropped.
func (s *State) Apply(d Delta) {
	for key, next := range d {
		reduce, ok := s.reducers[key]
		if !ok {
			continue
		}
		s.vals[key] = reduce(s.vals[key], next)
	}
}

// ClearError resets the error key. The engine calls this before each layer;
// errors are re-recorded from that layer's failures, not merged across
// layers.
func (s *State) ClearError() {
	delete(s.vals, KeyError)
}

// Snapshot returns an immutable read-only copy for dispatching a layer.
// Concurrent nodes all observe the same pre-layer state.
func (s *State) Snapshot() *Snapshot {
	return &Snapshot{
		input:     s.vals[KeyInput],
		messages:  cloneStrings(s.vals[KeyMessages]),
		results:   cloneMap(s.vals[KeyResults]),
		completed: cloneStrings(s.vals[KeyCompleted]),
		scores:    cloneScores(s.vals[KeyScores]),
		metadata:  cloneMap(s.vals[KeyMetadata]),
		errMsg:    stringOrEmpty(s.vals[KeyError]),
		decision:  stringOrEmpty(s.vals[KeyDecision]),
	}
}

// Input returns the opaque caller payload.
func (s *State) Input() any { return s.vals[KeyInput] }

// Results returns the per-node output map.
func (s *State) Results() map[string]any {
	m, _ := s.vals[KeyResults].(map[string]any)
	return m
}

// Completed returns node ids folded in so far, in fold order.
func (s *State) Completed() []string {
	l, _ := s.vals[KeyCompleted].([]string)
	return l
}

// Messages returns the run's event log.
func (s *State) Messages() []string {
	l, _ := s.vals[KeyMessages].([]string)
	return l
}

// Scores returns explicit per-analyzer scores, if any analyzer set one.
func (s *State) Scores() map[string]float64 {
	m, _ := s.vals[KeyScores].(map[string]float64)
	return m
}

// Metadata returns the run metadata map.
func (s *State) Metadata() map[string]any {
	m, _ := s.vals[KeyMetadata].(map[string]any)
	return m
}

// ErrorMessage returns the last recorded node failure, or "".
func (s *State) ErrorMessage() string { return stringOrEmpty(s.vals[KeyError]) }

// Decision returns the aggregator's final decision, or "".
func (s *State) Decision() string { return stringOrEmpty(s.vals[KeyDecision]) }

// FinalOutput returns the aggregator's schema-complete output, or nil.
func (s *State) FinalOutput() map[string]any {
	m, _ := s.vals[KeyOutput].(map[string]any)
	return m
}

// Snapshot is the read-only view of a State handed to node handlers. All
// collection accessors return copies made at snapshot time, so handlers
// can never observe a concurrent fold.
type Snapshot struct {
	input     any
	messages  []string
	results   map[string]any
	completed []string
	scores    map[string]float64
	metadata  map[string]any
	errMsg    string
	decision  string
}

// Input returns the opaque caller payload.
func (s *Snapshot) Input() any { return s.input }

// Results returns the per-node output map as of snapshot time.
func (s *Snapshot) Results() map[string]any { return s.results }

// Result returns one node's folded output.
func (s *Snapshot) Result(nodeID string) (any, bool) {
	v, ok := s.results[nodeID]
	return v, ok
}

// Completed returns node ids completed as of snapshot time.
func (s *Snapshot) Completed() []string { return s.completed }

// Messages returns the event log as of snapshot time.
func (s *Snapshot) Messages() []string { return s.messages }

// Scores returns explicit analyzer scores as of snapshot time.
func (s *Snapshot) Scores() map[string]float64 { return s.scores }

// Metadata returns the run metadata.
func (s *Snapshot) Metadata() map[string]any { return s.metadata }

// ErrorMessage returns the last recorded failure, or "".
func (s *Snapshot) ErrorMessage() string { return s.errMsg }

// Decision returns the decision folded so far, or "".
func (s *Snapshot) Decision() string { return s.decision }

func cloneMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}

func cloneScores(v any) map[string]float64 {
	m, _ := v.(map[string]float64)
	out := make(map[string]float64, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}

func cloneStrings(v any) []string {
	l, _ := v.([]string)
	out := make([]string, len(l))
	copy(out, l)
	return out
}

func stringOrEmpty(v any) string {
	s, _ := v.(string)
	return s
}
