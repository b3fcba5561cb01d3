package tool

import (
	"context"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/mcpclient"
)

func init() {
	blocks.Register("tool.composio", newComposio)
}

// composioBlock dispatches a single call to a remote MCP-compliant
// toolkit (Composio's hosted integrations, or any other MCP server).
// Rather than fabricate a binding to a vendor SDK nothing here actually
// imports, this block speaks the protocol every hosted integration
// already uses — reusing mcpclient, the minimal client built on
// pkg/mcp's JSON-RPC model types.
type composioBlock struct {
	endpoint string
	tool     string
	args     map[string]any
}

func newComposio(settings map[string]any) (blocks.Block, error) {
	endpoint := blocks.GetString(settings, "endpoint", "")
	if endpoint == "" {
		return nil, blocks.ConfigError("tool.composio: %q setting is required", "endpoint")
	}
	tool := blocks.GetString(settings, "tool", "")
	if tool == "" {
		return nil, blocks.ConfigError("tool.composio: %q setting is required", "tool")
	}
	return &composioBlock{endpoint: endpoint, tool: tool, args: blocks.GetMap(settings, "arguments")}, nil
}

func (b *composioBlock) Kind() blocks.Kind     { return blocks.KindTool }
func (b *composioBlock) ToolCompatible() bool   { return true }
func (b *composioBlock) Extras() map[string]any { return map[string]any{"toolCompatible": true} }

func (b *composioBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"endpoint", "tool"},
		"properties": map[string]any{
			"endpoint":  map[string]any{"type": "string", "minLength": 1},
			"tool":      map[string]any{"type": "string", "minLength": 1},
			"arguments": map[string]any{"type": "object"},
		},
	}
}

func (b *composioBlock) Run(ctx context.Context, in blocks.Input) (blocks.Output, error) {
	args := b.args
	if len(args) == 0 {
		args = in.Settings
	}

	client := mcpclient.New(b.endpoint, nil)
	result, err := client.CallTool(ctx, b.tool, args)
	if err != nil {
		return blocks.Output{}, blocks.DependencyError(err)
	}

	return blocks.Output{Data: map[string]any{"result": result}}, nil
}
