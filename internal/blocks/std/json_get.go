package std

import (
	"context"

	"github.com/flowforge/engine/internal/blocks"
)

func init() {
	blocks.Register("json.get", newJSONGet)
}

// jsonGetBlock traverses a dotted path of keys through a nested map,
// returning nil when any segment is missing — grounded on json_get.py,
// which returns None rather than erroring on a missing path so branch
// logic downstream can test for absence.
type jsonGetBlock struct {
	path   []string
	source map[string]any
}

func newJSONGet(settings map[string]any) (blocks.Block, error) {
	path := blocks.GetStringSlice(settings, "path")
	if len(path) == 0 {
		return nil, blocks.ConfigError("json.get: %q setting is required", "path")
	}
	return &jsonGetBlock{path: path, source: blocks.GetMap(settings, "source")}, nil
}

func (b *jsonGetBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *jsonGetBlock) ToolCompatible() bool   { return true }
func (b *jsonGetBlock) Extras() map[string]any { return nil }

func (b *jsonGetBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"path"},
		"properties": map[string]any{
			"path":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
			"source": map[string]any{"type": "object"},
		},
	}
}

func (b *jsonGetBlock) Run(_ context.Context, in blocks.Input) (blocks.Output, error) {
	var cur any = b.source
	if len(b.source) == 0 {
		if v, ok := blocks.FirstUpstreamValue(in.Upstream); ok {
			cur = v
		}
	}

	for _, key := range b.path {
		m, ok := cur.(map[string]any)
		if !ok {
			cur = nil
			break
		}
		cur, ok = m[key]
		if !ok {
			cur = nil
			break
		}
	}

	return blocks.Output{Data: map[string]any{"value": cur}}, nil
}
