package std

import (
	"context"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("control.branch", newBranch)
}

// branchBlock evaluates a boolean expression and reports the result as its
// output; it never short-circuits or skips downstream nodes itself. A
// workflow author routes on the "condition" field with a json.get or a
// downstream template, rather than the engine interpreting per-port
// selection — deliberately not copying a port-index routing scheme.
type branchBlock struct {
	expression string
}

func newBranch(settings map[string]any) (blocks.Block, error) {
	exprSrc := blocks.GetString(settings, "expression", "")
	if exprSrc == "" {
		return nil, blocks.ConfigError("control.branch: %q setting is required", "expression")
	}
	return &branchBlock{expression: exprSrc}, nil
}

func (b *branchBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *branchBlock) ToolCompatible() bool   { return false }
func (b *branchBlock) Extras() map[string]any { return nil }

func (b *branchBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"required":   []string{"expression"},
		"properties": map[string]any{"expression": map[string]any{"type": "string", "minLength": 1}},
	}
}

func (b *branchBlock) Run(_ context.Context, in blocks.Input) (blocks.Output, error) {
	flat := template.FlattenUpstream(in.Upstream)
	cond, err := template.EvalBool(b.expression, flat, template.Strict)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("control.branch: %v", err)
	}
	return blocks.Output{Data: map[string]any{"condition": cond}}, nil
}
