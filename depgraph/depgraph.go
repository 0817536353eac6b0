// Package depgraph builds the dependency graph over a flat plan.Step list
// and provides the scheduling primitives the executor needs: topological
// order, parallel-group levels, and critical path. Edges are stored as
// parallel adjacency lists keyed by stable step id, never as back-pointers.
package depgraph

import (
	"fmt"

	"github.com/webql/webql/plan"
)

// Node is one step's position in the dependency graph.
type Node struct {
	ID           string
	Step         *plan.Step
	Dependencies []string
	Dependents   []string
}

// Graph is the built dependency graph over one plan's flat step list.
type Graph struct {
	Nodes map[string]*Node
	Roots []string
	Leaves []string
}

// Build constructs a Graph from steps. It rejects duplicate step ids.
func Build(steps []*plan.Step) (*Graph, error) {
	g := &Graph{Nodes: make(map[string]*Node, len(steps))}
	for _, s := range steps {
		if _, exists := g.Nodes[s.ID]; exists {
			return nil, fmt.Errorf("depgraph: duplicate step id %q", s.ID)
		}
		g.Nodes[s.ID] = &Node{ID: s.ID, Step: s, Dependencies: append([]string{}, s.Dependencies...)}
	}
	for _, node := range g.Nodes {
		for _, depID := range node.Dependencies {
			dep, ok := g.Nodes[depID]
			if !ok {
				return nil, fmt.Errorf("depgraph: step %q depends on unknown id %q", node.ID, depID)
			}
			dep.Dependents = append(dep.Dependents, node.ID)
		}
	}
	for _, node := range g.Nodes {
		if len(node.Dependencies) == 0 {
			g.Roots = append(g.Roots, node.ID)
		}
		if len(node.Dependents) == 0 {
			g.Leaves = append(g.Leaves, node.ID)
		}
	}
	return g, nil
}

// TopoSort returns a dependency-respecting order of step ids via
// depth-first search with a visiting set to detect cycles. On a cycle, it
// falls back to steps' natural (insertion) order and reports false;
// warning about the cycle is the caller's responsibility since this
// package has no logger.
func (g *Graph) TopoSort(naturalOrder []string) ([]string, bool) {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(g.Nodes))
	var order []string
	var cyclic bool

	var visit func(id string)
	visit = func(id string) {
		if cyclic || state[id] == visited {
			return
		}
		if state[id] == visiting {
			cyclic = true
			return
		}
		state[id] = visiting
		node := g.Nodes[id]
		for _, dep := range node.Dependencies {
			visit(dep)
			if cyclic {
				return
			}
		}
		state[id] = visited
		order = append(order, id)
	}

	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	for _, id := range naturalOrder {
		visit(id)
		if cyclic {
			break
		}
	}
	if !cyclic {
		for _, id := range ids {
			visit(id)
			if cyclic {
				break
			}
		}
	}
	if cyclic {
		return append([]string{}, naturalOrder...), false
	}
	return order, true
}

// ParallelGroups returns the level-by-level BFS grouping from roots: a step
// is in level k+1 once every one of its dependencies is at level ≤k. Only
// levels with more than one step are reported.
func (g *Graph) ParallelGroups() [][]string {
	level := make(map[string]int, len(g.Nodes))
	var assign func(id string) int
	assign = func(id string) int {
		if lv, ok := level[id]; ok {
			return lv
		}
		node := g.Nodes[id]
		maxDep := -1
		for _, dep := range node.Dependencies {
			if lv := assign(dep); lv > maxDep {
				maxDep = lv
			}
		}
		lv := maxDep + 1
		level[id] = lv
		return lv
	}
	for id := range g.Nodes {
		assign(id)
	}

	byLevel := map[int][]string{}
	for id, lv := range level {
		byLevel[lv] = append(byLevel[lv], id)
	}
	var groups [][]string
	maxLevel := -1
	for lv := range byLevel {
		if lv > maxLevel {
			maxLevel = lv
		}
	}
	for lv := 0; lv <= maxLevel; lv++ {
		if group := byLevel[lv]; len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// CriticalPath returns the longest chain by accumulated estimated cost,
// computed via memoized DFS from the leaves, plus its total cost.
func (g *Graph) CriticalPath() ([]string, float64) {
	memo := make(map[string]struct {
		path []string
		cost float64
	})

	var longestFrom func(id string) ([]string, float64)
	longestFrom = func(id string) ([]string, float64) {
		if cached, ok := memo[id]; ok {
			return cached.path, cached.cost
		}
		node := g.Nodes[id]
		var bestPath []string
		var bestCost float64
		for _, depID := range node.Dependents {
			p, c := longestFrom(depID)
			if c > bestCost {
				bestCost = c
				bestPath = p
			}
		}
		path := append([]string{id}, bestPath...)
		cost := node.Step.EstimatedCost + bestCost
		memo[id] = struct {
			path []string
			cost float64
		}{path, cost}
		return path, cost
	}

	var bestPath []string
	var bestCost float64
	for _, rootID := range g.Roots {
		p, c := longestFrom(rootID)
		if c > bestCost {
			bestCost = c
			bestPath = p
		}
	}
	return bestPath, bestCost
}

// ParallelEndTime computes, for each node, the max over dependencies of
// (start + cost), returning the total plan completion time assuming
// unlimited fan-out at every parallel group.
func (g *Graph) ParallelEndTime() float64 {
	end := make(map[string]float64, len(g.Nodes))
	var compute func(id string) float64
	compute = func(id string) float64 {
		if e, ok := end[id]; ok {
			return e
		}
		node := g.Nodes[id]
		start := 0.0
		for _, dep := range node.Dependencies {
			if e := compute(dep); e > start {
				start = e
			}
		}
		e := start + node.Step.EstimatedCost
		end[id] = e
		return e
	}
	total := 0.0
	for id := range g.Nodes {
		if e := compute(id); e > total {
			total = e
		}
	}
	return total
}
