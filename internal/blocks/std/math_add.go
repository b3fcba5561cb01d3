package std

import (
	"context"

	"github.com/flowforge/engine/internal/blocks"
)

func init() {
	blocks.Register("math.add", newMathAdd)
}

// mathAddBlock sums two settings-provided numbers — grounded on
// math_add.py, which is the same unconditional float(a)+float(b).
type mathAddBlock struct {
	a, b float64
}

func newMathAdd(settings map[string]any) (blocks.Block, error) {
	return &mathAddBlock{
		a: blocks.GetFloat(settings, "a", 0),
		b: blocks.GetFloat(settings, "b", 0),
	}, nil
}

func (b *mathAddBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *mathAddBlock) ToolCompatible() bool   { return true }
func (b *mathAddBlock) Extras() map[string]any { return nil }

func (b *mathAddBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
	}
}

func (b *mathAddBlock) Run(_ context.Context, _ blocks.Input) (blocks.Output, error) {
	return blocks.Output{Data: map[string]any{"result": b.a + b.b}}, nil
}
