package std

import (
	"context"
	"fmt"
	"sort"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("show", newShow)
}

// showBlock is a terminal debugging sink: it renders an optional "template"
// setting against upstream data and logs a short inline preview, passing
// upstream/settings/template/rendered through as output so it can be
// inserted anywhere in a graph without changing downstream data shape.
type showBlock struct {
	tmpl string
}

func newShow(settings map[string]any) (blocks.Block, error) {
	return &showBlock{tmpl: blocks.GetString(settings, "template", "")}, nil
}

func (b *showBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *showBlock) ToolCompatible() bool   { return false }
func (b *showBlock) Extras() map[string]any { return nil }

func (b *showBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"template": map[string]any{"type": "string"}},
	}
}

func (b *showBlock) Run(_ context.Context, in blocks.Input) (blocks.Output, error) {
	flat := template.FlattenUpstream(in.Upstream)

	rendered, err := template.Render(b.tmpl, flat, template.Permissive)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("show: render template: %v", err)
	}

	preview := rendered
	if preview == "" {
		preview = previewUpstream(flat)
	}
	if in.Caps.Log != nil {
		in.Caps.Log(fmt.Sprintf("show %s: %s", in.NodeID, preview), map[string]any{"node_id": in.NodeID})
	}

	payload := map[string]any{
		"upstream": flat,
		"settings": in.Settings,
		"template": b.tmpl,
		"rendered": rendered,
	}

	return blocks.Output{Data: map[string]any{"data": payload}}, nil
}

// previewUpstream summarizes the first (by key) upstream value when no
// template was configured to render a preview from.
func previewUpstream(flat map[string]any) string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		return "(no upstream data)"
	}
	first := fmt.Sprintf("%v", flat[keys[0]])
	if len(first) > 120 {
		first = first[:120] + "..."
	}
	return fmt.Sprintf("%s=%s", keys[0], first)
}
