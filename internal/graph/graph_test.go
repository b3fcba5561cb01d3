package graph_test

import (
	"errors"
	"testing"

	"github.com/flowforge/engine/internal/domain"
	"github.com/flowforge/engine/internal/graph"
)

func TestToposortOrdersByDependency(t *testing.T) {
	g := domain.Graph{
		Nodes: []domain.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Edges: []domain.Edge{
			{ID: "e1", FromNode: "a", ToNode: "b"},
			{ID: "e2", FromNode: "b", ToNode: "c"},
		},
	}

	order, err := graph.Toposort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := order, []string{"a", "b", "c"}; !equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestToposortBreaksTiesByInsertionOrderNotNodeID(t *testing.T) {
	// "z" and "m" are both ready immediately (no edges); insertion order
	// places "z" before "m", so the result must keep that order even
	// though "m" sorts first lexicographically.
	g := domain.Graph{
		Nodes: []domain.Node{{ID: "z"}, {ID: "m"}, {ID: "a"}},
		Edges: []domain.Edge{{ID: "e1", FromNode: "a", ToNode: "m"}},
	}

	order, err := graph.Toposort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := order, []string{"z", "a", "m"}; !equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestToposortDetectsCycle(t *testing.T) {
	g := domain.Graph{
		Nodes: []domain.Node{{ID: "a"}, {ID: "b"}},
		Edges: []domain.Edge{
			{ID: "e1", FromNode: "a", ToNode: "b"},
			{ID: "e2", FromNode: "b", ToNode: "a"},
		},
	}

	if _, err := graph.Toposort(g); !errors.Is(err, graph.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestToposortIgnoresToolEdgeCycle(t *testing.T) {
	// A tool edge looping back to its agent must never be treated as a
	// cycle: tool edges carry no control-flow dependency.
	g := domain.Graph{
		Nodes: []domain.Node{{ID: "agent"}, {ID: "tool"}},
		Edges: []domain.Edge{
			{ID: "e1", FromNode: "agent", ToNode: "tool", Kind: domain.EdgeTool},
			{ID: "e2", FromNode: "tool", ToNode: "agent", Kind: domain.EdgeTool},
		},
	}

	order, err := graph.Toposort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("expected both nodes scheduled, got %v", order)
	}
}

func TestValidateRejectsDuplicateNodeID(t *testing.T) {
	g := domain.Graph{Nodes: []domain.Node{{ID: "a"}, {ID: "a"}}}
	if err := graph.Validate(g); !errors.Is(err, graph.ErrDuplicateNode) {
		t.Fatalf("expected ErrDuplicateNode, got %v", err)
	}
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	g := domain.Graph{
		Nodes: []domain.Node{{ID: "a"}},
		Edges: []domain.Edge{{ID: "e1", FromNode: "a", ToNode: "missing"}},
	}
	if err := graph.Validate(g); !errors.Is(err, graph.ErrDanglingEdge) {
		t.Fatalf("expected ErrDanglingEdge, got %v", err)
	}
}

func TestToolChildren(t *testing.T) {
	g := domain.Graph{
		Nodes: []domain.Node{{ID: "agent"}, {ID: "calc"}},
		Edges: []domain.Edge{{ID: "e1", FromNode: "agent", ToNode: "calc", Kind: domain.EdgeTool}},
	}
	tc := graph.ToolChildren(g)
	if got := tc["agent"]; len(got) != 1 || got[0] != "calc" {
		t.Fatalf("ToolChildren = %v", tc)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
