package std

import (
	"context"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("transform.template", newTemplateBlock)
}

// templateBlock renders a text template against upstream data, this node's
// own settings, and an extra "values" map — grounded on transform.template
// / template.py, which builds exactly this {settings, **values, **flat
// upstream} context before rendering.
type templateBlock struct {
	tmpl   string
	values map[string]any
}

func newTemplateBlock(settings map[string]any) (blocks.Block, error) {
	tmpl := blocks.GetString(settings, "template", "")
	if tmpl == "" {
		return nil, blocks.ConfigError("transform.template: %q setting is required", "template")
	}
	return &templateBlock{tmpl: tmpl, values: blocks.GetMap(settings, "values")}, nil
}

func (b *templateBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *templateBlock) ToolCompatible() bool   { return true }
func (b *templateBlock) Extras() map[string]any { return nil }

func (b *templateBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"template"},
		"properties": map[string]any{
			"template": map[string]any{"type": "string", "minLength": 1},
			"values":   map[string]any{"type": "object"},
		},
	}
}

func (b *templateBlock) Run(_ context.Context, in blocks.Input) (blocks.Output, error) {
	flat := template.FlattenUpstream(in.Upstream)

	ctx := make(map[string]any, len(flat)+len(b.values)+1)
	ctx["settings"] = in.Settings
	for k, v := range b.values {
		ctx[k] = v
	}
	for k, v := range flat {
		ctx[k] = v
	}

	text, err := template.Render(b.tmpl, ctx, template.Permissive)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("transform.template: render: %v", err)
	}

	return blocks.Output{Data: map[string]any{"text": text}}, nil
}
