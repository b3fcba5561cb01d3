package template_test

import (
	"testing"

	"github.com/flowforge/engine/internal/template"
)

func TestRenderInterpolatesExpression(t *testing.T) {
	out, err := template.Render("hello {{ name }}!", map[string]any{"name": "world"}, template.Strict)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello world!" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderStrictFailsOnUndefinedFunction(t *testing.T) {
	_, err := template.Render("{{ doesNotExist() }}", map[string]any{}, template.Strict)
	if err == nil {
		t.Fatal("expected error in strict mode")
	}
}

func TestRenderPermissiveLeavesLiteral(t *testing.T) {
	out, err := template.Render("{{ doesNotExist() }}", map[string]any{}, template.Permissive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{{ doesNotExist() }}" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderStrictFailsOnUndefinedVariable(t *testing.T) {
	_, err := template.Render("{{ missing }}", map[string]any{}, template.Strict)
	if err == nil {
		t.Fatal("expected error for undefined variable in strict mode")
	}
}

func TestRenderPermissiveAllowsUndefinedVariable(t *testing.T) {
	out, err := template.Render("{{ missing }}", map[string]any{}, template.Permissive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "" {
		t.Fatalf("got %q, want empty string for undefined variable", out)
	}
}

func TestEvalBoolCoercesString(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{`"yes"`, true},
		{`""`, false},
		{`"false"`, false},
		{`1 == 1`, true},
		{`1 == 2`, false},
	}
	for _, c := range cases {
		got, err := template.EvalBool(c.expr, map[string]any{}, template.Strict)
		if err != nil {
			t.Fatalf("expr %q: %v", c.expr, err)
		}
		if got != c.want {
			t.Fatalf("expr %q: got %v want %v", c.expr, got, c.want)
		}
	}
}

func TestFlattenUpstreamUnwrapsDataWrapper(t *testing.T) {
	upstream := map[string]any{
		"node1": map[string]any{"data": map[string]any{"text": "hi"}},
		"node2": "raw",
	}
	flat := template.FlattenUpstream(upstream)
	if m, ok := flat["node1"].(map[string]any); !ok || m["text"] != "hi" {
		t.Fatalf("node1 not unwrapped: %#v", flat["node1"])
	}
	if flat["node2"] != "raw" {
		t.Fatalf("node2 changed: %#v", flat["node2"])
	}
}
