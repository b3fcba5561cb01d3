package std

import (
	"context"
	"strings"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("transform.uppercase", newUppercase)
}

// uppercaseBlock renders its "text" setting then upper-cases the result,
// with an optional trim-whitespace pass first — grounded on uppercase.py's
// render_expression-then-upper sequence.
type uppercaseBlock struct {
	text           string
	trimWhitespace bool
}

func newUppercase(settings map[string]any) (blocks.Block, error) {
	text := blocks.GetString(settings, "text", "")
	if text == "" {
		return nil, blocks.ConfigError("transform.uppercase: %q setting is required", "text")
	}
	return &uppercaseBlock{
		text:           text,
		trimWhitespace: blocks.GetBool(settings, "trim_whitespace", false),
	}, nil
}

func (b *uppercaseBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *uppercaseBlock) ToolCompatible() bool   { return true }
func (b *uppercaseBlock) Extras() map[string]any { return nil }

func (b *uppercaseBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"text"},
		"properties": map[string]any{
			"text":            map[string]any{"type": "string", "minLength": 1},
			"trim_whitespace": map[string]any{"type": "boolean"},
		},
	}
}

func (b *uppercaseBlock) Run(_ context.Context, in blocks.Input) (blocks.Output, error) {
	flat := template.FlattenUpstream(in.Upstream)

	value, err := template.Render(b.text, flat, template.Permissive)
	if err != nil {
		value = b.text
	}
	if b.trimWhitespace {
		value = strings.TrimSpace(value)
	}

	return blocks.Output{Data: map[string]any{"text": strings.ToUpper(value)}}, nil
}
