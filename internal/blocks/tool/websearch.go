package tool

import (
	"context"

	"github.com/flowforge/engine/internal/blocks"
)

func init() {
	blocks.Register("tool.websearch", newWebsearch)
}

// websearchBlock is a placeholder for a hosted web-search tool. No search
// API exists anywhere in this module's dependency set, so unlike
// tool.http_request (whose ReAct dispatch performs a real call),
// tool.websearch has nothing to call through — it returns {ok: true} and
// exists so an agent can list it as an attached tool without the graph
// failing to validate, grounded on websearch_tool.py's own stub run().
type websearchBlock struct{}

func newWebsearch(map[string]any) (blocks.Block, error) {
	return websearchBlock{}, nil
}

func (websearchBlock) Kind() blocks.Kind     { return blocks.KindTool }
func (websearchBlock) ToolCompatible() bool   { return true }
func (websearchBlock) Extras() map[string]any { return map[string]any{"toolCompatible": true} }

func (websearchBlock) SettingsSchema() map[string]any { return nil }

func (websearchBlock) Run(context.Context, blocks.Input) (blocks.Output, error) {
	return blocks.Output{Data: map[string]any{"ok": true}}, nil
}
