// Package depgraph maintains the cross-project build dependency graph and fires
// downstream triggers when a build completes.
package depgraph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNilArgument is returned when a required argument is absent.
var ErrNilArgument = errors.New("required argument is nil")

// GraphErrorKind classifies a malformed trigger configuration.
type GraphErrorKind string

const (
	ErrUnknownProject GraphErrorKind = "unknown_project"
	ErrSelfTrigger    GraphErrorKind = "self_trigger"
	ErrCycle          GraphErrorKind = "cycle"
)

// GraphError reports why a graph could not be built.
type GraphError struct {
	Kind     GraphErrorKind
	Projects []string
	Detail   string
}

func (e *GraphError) Error() string {
	switch e.Kind {
	case ErrCycle:
		return fmt.Sprintf("dependency graph contains a cycle involving projects: %s", strings.Join(e.Projects, ", "))
	case ErrSelfTrigger:
		return fmt.Sprintf("project %s triggers itself", strings.Join(e.Projects, ", "))
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
}

// Graph is an immutable snapshot of downstream relationships between projects.
type Graph struct {
	downstream map[string][]string
	upstream   map[string][]string
	order      []string
}

// emptyGraph is served before the first successful rebuild.
var emptyGraph = &Graph{
	downstream: map[string][]string{},
	upstream:   map[string][]string{},
}

// NewGraph builds a graph over nodes. edges maps a project to the projects it
// triggers. Every edge endpoint must be in nodes, and the result must be acyclic.
// The topological order uses Kahn's algorithm with name-sorted tie breaking.
func NewGraph(nodes []string, edges map[string][]string) (*Graph, error) {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n] = true
	}

	downstream := make(map[string][]string, len(nodes))
	upstream := make(map[string][]string, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	for n := range known {
		inDegree[n] = 0
	}

	for from, tos := range edges {
		if !known[from] {
			return nil, &GraphError{Kind: ErrUnknownProject, Projects: []string{from},
				Detail: fmt.Sprintf("project %q is not defined", from)}
		}
		seen := make(map[string]bool, len(tos))
		for _, to := range tos {
			if to == from {
				return nil, &GraphError{Kind: ErrSelfTrigger, Projects: []string{from}}
			}
			if !known[to] {
				return nil, &GraphError{Kind: ErrUnknownProject, Projects: []string{from, to},
					Detail: fmt.Sprintf("project %q triggers undefined project %q", from, to)}
			}
			if seen[to] {
				continue
			}
			seen[to] = true
			downstream[from] = append(downstream[from], to)
			upstream[to] = append(upstream[to], from)
			inDegree[to]++
		}
	}
	for _, m := range []map[string][]string{downstream, upstream} {
		for k := range m {
			sort.Strings(m[k])
		}
	}

	// Kahn's algorithm.
	var queue []string
	for n, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(known))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, succ := range downstream[n] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(known) {
		var cycle []string
		for n, deg := range inDegree {
			if deg > 0 {
				cycle = append(cycle, n)
			}
		}
		sort.Strings(cycle)
		return nil, &GraphError{Kind: ErrCycle, Projects: cycle}
	}

	return &Graph{downstream: downstream, upstream: upstream, order: order}, nil
}

// Downstream returns the projects triggered by name, sorted.
func (g *Graph) Downstream(name string) []string {
	return append([]string(nil), g.downstream[name]...)
}

// Upstream returns the projects that trigger name, sorted.
func (g *Graph) Upstream(name string) []string {
	return append([]string(nil), g.upstream[name]...)
}

// Order returns every project in topological order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Len returns the number of projects in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// HasDependency reports whether downstream is reachable from upstream through
// one or more trigger edges.
func (g *Graph) HasDependency(upstream, downstream string) bool {
	seen := map[string]bool{upstream: true}
	stack := []string{upstream}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.downstream[n] {
			if next == downstream {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Edges returns a copy of the downstream adjacency.
func (g *Graph) Edges() map[string][]string {
	out := make(map[string][]string, len(g.downstream))
	for k, v := range g.downstream {
		out[k] = append([]string(nil), v...)
	}
	return out
}
