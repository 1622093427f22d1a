package engine

import (
	"fmt"
	"strings"
)

// ExecutionPlan is the ordered schedule derived from a dependency graph.
type ExecutionPlan struct {
	// Order is the sequential execution order.
	Order []string
	// Levels groups steps eligible for parallel application.
	Levels [][]string
}

// NewPlan converts a built graph into an execution plan.
func NewPlan(graph *Graph) (*ExecutionPlan, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	plan := &ExecutionPlan{
		Order:  append([]string(nil), graph.Order...),
		Levels: make([][]string, 0, len(graph.Levels)),
	}
	for _, level := range graph.Levels {
		plan.Levels = append(plan.Levels, append([]string(nil), level...))
	}
	return plan, nil
}

// String renders a human readable summary of the plan.
func (p *ExecutionPlan) String() string {
	if p == nil {
		return ""
	}

	var b strings.Builder
	for i, level := range p.Levels {
		fmt.Fprintf(&b, "Stage %d (%d steps): %s\n", i+1, len(level), strings.Join(level, ", "))
	}
	return b.String()
}
