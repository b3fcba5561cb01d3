// Package graph validates workflow graphs and computes their execution
// order. Validation and the topological sort are grounded on the same
// rules the engine's node wiring has always used: unique node IDs, edges
// that reference real nodes, and a cycle check that ignores tool-connector
// edges because those never carry control flow.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/flowforge/engine/internal/domain"
)

var (
	ErrDuplicateNode = errors.New("graph: duplicate node id")
	ErrDanglingEdge  = errors.New("graph: edge references unknown node")
	ErrCycle         = errors.New("graph: contains a cycle")
)

// Validate checks structural well-formedness of a graph: unique node IDs and
// edges whose endpoints exist. It does not check for cycles; call Toposort
// for that, since callers that only need ordering get cycle detection for
// free.
func Validate(g domain.Graph) error {
	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateNode, n.ID)
		}
		seen[n.ID] = struct{}{}
	}

	for _, e := range g.Edges {
		if _, ok := seen[e.FromNode]; !ok {
			return fmt.Errorf("%w: edge %q from %q", ErrDanglingEdge, e.ID, e.FromNode)
		}
		if _, ok := seen[e.ToNode]; !ok {
			return fmt.Errorf("%w: edge %q to %q", ErrDanglingEdge, e.ID, e.ToNode)
		}
	}

	return nil
}

// ParentChildMaps returns, for every node, the list of upstream (parent) and
// downstream (child) node IDs connected by control edges. Tool edges are
// excluded: a tool node's only relationship to its agent is the connector
// itself, never a control dependency.
func ParentChildMaps(g domain.Graph) (parents, children map[string][]string) {
	parents = make(map[string][]string, len(g.Nodes))
	children = make(map[string][]string, len(g.Nodes))

	for _, e := range g.Edges {
		if e.Kind == domain.EdgeTool {
			continue
		}
		parents[e.ToNode] = append(parents[e.ToNode], e.FromNode)
		children[e.FromNode] = append(children[e.FromNode], e.ToNode)
	}

	return parents, children
}

// ToolChildren returns, for every agent node, the ordered list of tool node
// IDs attached to it via a tool-kind edge.
func ToolChildren(g domain.Graph) map[string][]string {
	out := make(map[string][]string)
	for _, e := range g.Edges {
		if e.Kind != domain.EdgeTool {
			continue
		}
		out[e.FromNode] = append(out[e.FromNode], e.ToNode)
	}
	return out
}

// Toposort returns a deterministic execution order over g's nodes using
// Kahn's algorithm. Edges of kind "tool" are excluded from the dependency
// graph entirely — they never gate execution order, matching how a tool
// node is invoked on demand by its owning agent rather than scheduled in
// the main pass.
//
// Ties are broken by each node's position in g.Nodes (insertion order), not
// by node ID, so two runs of the same graph observe identical node visit
// order regardless of how IDs happen to sort lexicographically.
func Toposort(g domain.Graph) ([]string, error) {
	if err := Validate(g); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(g.Nodes))
	indegree := make(map[string]int, len(g.Nodes))
	adjacency := make(map[string][]string, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
		indegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		if e.Kind == domain.EdgeTool {
			continue
		}
		adjacency[e.FromNode] = append(adjacency[e.FromNode], e.ToNode)
		indegree[e.ToNode]++
	}

	byIndex := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool { return index[ids[i]] < index[ids[j]] })
	}

	var ready []string
	for _, n := range g.Nodes {
		if indegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	byIndex(ready)

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		byIndex(ready)
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		var newlyReady []string
		for _, next := range adjacency[cur] {
			indegree[next]--
			if indegree[next] == 0 {
				newlyReady = append(newlyReady, next)
			}
		}
		byIndex(newlyReady)
		ready = append(ready, newlyReady...)
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrCycle
	}

	return order, nil
}
