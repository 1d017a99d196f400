// Package graph builds the phase dependency DAG and computes ready sets.
// A Graph is immutable after construction and safe to share across
// concurrently executing phases; re-validate by rebuilding on every run
// instead of mutating.
package graph

import (
	"fmt"
	"strings"

	"github.com/example/baton/internal/models"
)

// CycleError reports a dependency cycle, naming every phase on it.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Cycle, " -> "))
}

// Graph is the dependency DAG over a plan's phases.
type Graph struct {
	order []string            // phase ids in plan order
	deps  map[string][]string // phase id -> ids it depends on
}

// Build constructs the graph from parsed phases. Unknown dependency
// references and cycles are construction errors; the auditor reports them
// with richer locations before a run ever gets here.
func Build(phases []models.Phase) (*Graph, error) {
	g := &Graph{deps: make(map[string][]string, len(phases))}

	known := make(map[string]bool, len(phases))
	for _, p := range phases {
		known[p.ID] = true
	}

	for _, p := range phases {
		for _, dep := range p.DependsOn {
			if !known[dep] {
				return nil, fmt.Errorf("phase %s depends on unknown phase %s", p.ID, dep)
			}
		}
		g.order = append(g.order, p.ID)
		g.deps[p.ID] = append([]string(nil), p.DependsOn...)
	}

	if cycle := FindCycle(g.order, g.deps); cycle != nil {
		return nil, &CycleError{Cycle: cycle}
	}
	return g, nil
}

// Phases returns the phase ids in plan order.
func (g *Graph) Phases() []string {
	return append([]string(nil), g.order...)
}

// DependsOn returns the dependencies of the given phase.
func (g *Graph) DependsOn(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// ReadySet returns the phases whose dependencies are all in completed and
// which are not in exclude (already started, running, or terminal).
// With no completions it returns exactly the dependency-free phases.
func (g *Graph) ReadySet(completed, exclude map[string]bool) []string {
	var ready []string
	for _, id := range g.order {
		if completed[id] || exclude[id] {
			continue
		}
		ok := true
		for _, dep := range g.deps[id] {
			if !completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// TopoOrder returns a topological ordering via Kahn's algorithm. Build has
// already rejected cycles, so every node is emitted.
func (g *Graph) TopoOrder() []string {
	inDegree := make(map[string]int, len(g.order))
	forward := make(map[string][]string)
	for _, id := range g.order {
		inDegree[id] = len(g.deps[id])
		for _, dep := range g.deps[id] {
			forward[dep] = append(forward[dep], id)
		}
	}

	var queue []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, dependent := range forward[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	return sorted
}

// FindCycle looks for a dependency cycle using white/gray/black DFS
// coloring. It returns the full cycle path (first node repeated at the
// end), or nil when the edges are acyclic. Unknown references are skipped;
// they are a separate validation concern.
func FindCycle(ids []string, deps map[string][]string) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	color := make(map[string]int, len(ids))
	parent := make(map[string]string)
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range deps[id] {
			if !known[dep] {
				continue
			}
			if color[dep] == gray {
				// Back-edge: walk parents from id back to dep.
				cycle = []string{dep}
				for cur := id; cur != dep; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, dep)
				// Parents were collected in reverse.
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = id
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}
