package std

import (
	"context"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/provider"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("llm.simple", newLLMSimple)
}

type llmSimpleBlock struct {
	prompt     string
	providerID string
	model      string
}

func newLLMSimple(settings map[string]any) (blocks.Block, error) {
	prompt := blocks.GetString(settings, "prompt", "")
	if prompt == "" {
		return nil, blocks.ConfigError("llm.simple: %q setting is required", "prompt")
	}
	return &llmSimpleBlock{
		prompt:     prompt,
		providerID: blocks.GetString(settings, "provider", "default"),
		model:      blocks.GetString(settings, "model", ""),
	}, nil
}

func (b *llmSimpleBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *llmSimpleBlock) ToolCompatible() bool   { return true }
func (b *llmSimpleBlock) Extras() map[string]any { return nil }

func (b *llmSimpleBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"prompt"},
		"properties": map[string]any{
			"prompt":   map[string]any{"type": "string", "minLength": 1},
			"provider": map[string]any{"type": "string"},
			"model":    map[string]any{"type": "string"},
		},
	}
}

func (b *llmSimpleBlock) Run(ctx context.Context, in blocks.Input) (blocks.Output, error) {
	flat := template.FlattenUpstream(in.Upstream)
	prompt, err := template.Render(b.prompt, flat, template.Permissive)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("llm.simple: render prompt: %v", err)
	}

	if in.Caps.Provider == nil {
		return blocks.Output{}, blocks.DependencyError(errNoProviderLookup)
	}

	llm, defaultModel, err := in.Caps.Provider(b.providerID)
	if err != nil {
		return blocks.Output{}, blocks.DependencyError(err)
	}

	model := b.model
	if model == "" {
		model = defaultModel
	}

	resp, err := llm.Chat(ctx, model, []provider.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return blocks.Output{}, blocks.DependencyError(err)
	}

	return blocks.Output{Data: map[string]any{"text": resp.Content}}, nil
}
