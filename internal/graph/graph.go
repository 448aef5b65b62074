package graph

import "sort"

// vertex is a node in the structural graph used for validation and
// layering. Edges to START/END are not represented here; START feeds the
// root set and END terminates branches.
type vertex struct {
	id         string
	deps       map[string]*vertex
	dependents map[string]*vertex
}

type structure struct {
	vertices map[string]*vertex
}

func newStructure() *structure {
	return &structure{vertices: make(map[string]*vertex)}
}

func (s *structure) add(id string) {
	if _, ok := s.vertices[id]; ok {
		return
	}
	s.vertices[id] = &vertex{
		id:         id,
		deps:       make(map[string]*vertex),
		dependents: make(map[string]*vertex),
	}
}

func (s *structure) link(fromID, toID string) error {
	if fromID == toID {
		return structuralf("self-referential edge not allowed: %s -> %s", fromID, toID)
	}
	from, ok := s.vertices[fromID]
	if !ok {
		return structuralf("edge references unknown node %q", fromID)
	}
	to, ok := s.vertices[toID]
	if !ok {
		return structuralf("edge references unknown node %q", toID)
	}
	to.deps[fromID] = from
	from.dependents[toID] = to
	return nil
}

// detectCycles runs a depth-first search with temporary/permanent marks and
// reports the first node found on a cycle.
func (s *structure) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(v *vertex) error
	visit = func(v *vertex) error {
		if permanent[v.id] {
			return nil
		}
		if temporary[v.id] {
			return structuralf("cycle detected involving node %q", v.id)
		}
		temporary[v.id] = true
		for _, dep := range v.dependents {
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(temporary, v.id)
		permanent[v.id] = true
		return nil
	}

	for _, v := range s.vertices {
		if !permanent[v.id] {
			if err := visit(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// layer computes topological layers: layer i holds exactly the vertices
// whose predecessors all lie in layers < i. Only the given vertex ids are
// layered; others (conditional-only targets) are left out.
func (s *structure) layer(include map[string]bool) [][]string {
	remaining := make(map[string]int)
	for id := range include {
		count := 0
		for depID := range s.vertices[id].deps {
			if include[depID] {
				count++
			}
		}
		remaining[id] = count
	}

	var layers [][]string
	done := make(map[string]bool)
	for len(done) < len(remaining) {
		var ready []string
		for id, count := range remaining {
			if !done[id] && count == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			// Unsatisfiable predecessors; cycle detection catches this
			// earlier, so this is purely a loop guard.
			break
		}
		for _, id := range ready {
			done[id] = true
			for depID := range s.vertices[id].dependents {
				if _, ok := remaining[depID]; ok {
					remaining[depID]--
				}
			}
		}
		layers = append(layers, ready)
	}
	return layers
}

// adjacency flattens the static edges into per-node successor and
// predecessor lists, each sorted in declared node order.
func (s *structure) adjacency(declared map[string]int) (map[string][]string, map[string][]string) {
	successors := make(map[string][]string, len(s.vertices))
	predecessors := make(map[string][]string, len(s.vertices))
	for id, v := range s.vertices {
		for depID := range v.dependents {
			successors[id] = append(successors[id], depID)
		}
		for depID := range v.deps {
			predecessors[id] = append(predecessors[id], depID)
		}
		sort.Slice(successors[id], func(i, j int) bool {
			return declared[successors[id][i]] < declared[successors[id][j]]
		})
		sort.Slice(predecessors[id], func(i, j int) bool {
			return declared[predecessors[id][i]] < declared[predecessors[id][j]]
		})
	}
	return successors, predecessors
}

// reachable walks static and conditional edges from the given roots.
func (s *structure) reachable(roots []string, conditionalTargets map[string][]string) map[string]bool {
	seen := make(map[string]bool)
	queue := append([]string{}, roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		if v, ok := s.vertices[id]; ok {
			for depID := range v.dependents {
				queue = append(queue, depID)
			}
		}
		queue = append(queue, conditionalTargets[id]...)
	}
	return seen
}
