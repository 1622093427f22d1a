package engine

import (
	"sort"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	stratumerrors "github.com/alexisbeaulieu97/stratum/pkg/errors"
)

// Node represents a vertex in the execution graph.
type Node struct {
	ID         string
	Step       *config.Step
	Index      int
	DependsOn  []*Node
	Dependents []*Node
}

// Graph holds the dependency graph of enabled steps together with its
// deterministic topological order.
type Graph struct {
	Nodes map[string]*Node

	// Order is the flat execution order: a valid topological sort where,
	// among steps whose prerequisites are satisfied, the lowest original
	// declaration index runs first.
	Order []string

	// Levels groups steps sharing no transitive prerequisite relationship;
	// steps within a level are eligible for parallel application.
	Levels [][]string
}

// BuildGraph constructs and orders the dependency graph from the given
// steps. Prerequisites naming steps absent from the specification fail with
// an UnknownPrerequisiteError; cycles fail with a CycleError naming the full
// cycle path. Both abort before any step runs.
func BuildGraph(steps []config.Step) (*Graph, error) {
	graph := &Graph{Nodes: make(map[string]*Node, len(steps))}

	declared := make(map[string]struct{}, len(steps))
	for i := range steps {
		declared[steps[i].ID] = struct{}{}
	}

	for i := range steps {
		step := &steps[i]
		if !step.Enabled {
			continue
		}
		if _, exists := graph.Nodes[step.ID]; exists {
			return nil, stratumerrors.NewValidationError("steps", "duplicate step id "+step.ID, nil)
		}
		graph.Nodes[step.ID] = &Node{ID: step.ID, Step: step, Index: i}
	}

	for _, node := range graph.Nodes {
		for _, dep := range node.Step.DependsOn {
			if _, ok := declared[dep]; !ok {
				return nil, stratumerrors.NewUnknownPrerequisiteError(node.ID, dep)
			}
			source, ok := graph.Nodes[dep]
			if !ok {
				// Prerequisite is declared but disabled; ordering
				// constraints to it are vacuous.
				continue
			}
			source.Dependents = append(source.Dependents, node)
			node.DependsOn = append(node.DependsOn, source)
		}
	}

	if cycle := graph.findCycle(); len(cycle) > 0 {
		return nil, stratumerrors.NewCycleError(cycle)
	}

	graph.computeOrder()
	graph.computeLevels()
	return graph, nil
}

// findCycle returns the ordered node ids participating in a dependency
// cycle, or nil. Depth-first traversal with a recursion-stack set; a
// back-edge closes the cycle.
func (g *Graph) findCycle() []string {
	visiting := make(map[string]bool, len(g.Nodes))
	visited := make(map[string]bool, len(g.Nodes))
	var stack []string
	var cycle []string

	var dfs func(node *Node) bool
	dfs = func(node *Node) bool {
		visiting[node.ID] = true
		stack = append(stack, node.ID)

		for _, dep := range node.DependsOn {
			if visited[dep.ID] {
				continue
			}
			if visiting[dep.ID] {
				for i, id := range stack {
					if id == dep.ID {
						cycle = append([]string{}, stack[i:]...)
						break
					}
				}
				return true
			}
			if dfs(dep) {
				return true
			}
		}

		visiting[node.ID] = false
		visited[node.ID] = true
		stack = stack[:len(stack)-1]
		return false
	}

	for _, node := range g.nodesByIndex() {
		if visited[node.ID] {
			continue
		}
		if dfs(node) {
			return cycle
		}
	}
	return nil
}

// computeOrder runs Kahn's algorithm selecting, at every point, the ready
// node with the lowest declaration index. This makes plans reproducible
// across runs and is what ties in the same specification resolve to.
func (g *Graph) computeOrder() {
	indegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		indegree[id] = len(node.DependsOn)
	}

	var ready []*Node
	for _, node := range g.nodesByIndex() {
		if indegree[node.ID] == 0 {
			ready = append(ready, node)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i].Index < ready[j].Index })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next.ID)

		for _, dependent := range next.Dependents {
			indegree[dependent.ID]--
			if indegree[dependent.ID] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	g.Order = order
}

// computeLevels batches the graph into levels of mutually independent steps
// for the concurrent executor. Within a level, declaration order is kept.
func (g *Graph) computeLevels() {
	indegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		indegree[id] = len(node.DependsOn)
	}

	var current []*Node
	for _, node := range g.nodesByIndex() {
		if indegree[node.ID] == 0 {
			current = append(current, node)
		}
	}

	var levels [][]string
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool { return current[i].Index < current[j].Index })

		ids := make([]string, 0, len(current))
		var next []*Node
		for _, node := range current {
			ids = append(ids, node.ID)
			for _, dependent := range node.Dependents {
				indegree[dependent.ID]--
				if indegree[dependent.ID] == 0 {
					next = append(next, dependent)
				}
			}
		}

		levels = append(levels, ids)
		current = next
	}

	g.Levels = levels
}

func (g *Graph) nodesByIndex() []*Node {
	nodes := make([]*Node, 0, len(g.Nodes))
	for _, node := range g.Nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Index < nodes[j].Index })
	return nodes
}
