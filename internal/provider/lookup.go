package provider

import (
	"fmt"

	"github.com/flowforge/engine/internal/config"
	"github.com/flowforge/engine/internal/provider/anthropic"
	"github.com/flowforge/engine/internal/provider/echo"
	"github.com/flowforge/engine/internal/provider/openaicompatible"
)

// NewLookup builds the configured set of named providers once at startup
// and returns a Lookup closure over the built clients — llm.simple and
// agent.react nodes resolve a provider key per call, they never build one.
// An empty key resolves to the echo provider, and with an empty providers
// map any key does, so a workflow built with no credentials configured
// stays runnable. Once providers are configured, an unknown key is an error.
func NewLookup(providers map[string]config.LLMConfig) (Lookup, error) {
	built := make(map[string]struct {
		provider LLMProvider
		model    string
	}, len(providers))

	for key, cfg := range providers {
		p, err := build(cfg)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", key, err)
		}
		built[key] = struct {
			provider LLMProvider
			model    string
		}{provider: p, model: cfg.Model}
	}

	fallback := echo.New()

	return func(providerKey string) (LLMProvider, string, error) {
		if providerKey == "" {
			return fallback, "", nil
		}
		entry, ok := built[providerKey]
		if !ok {
			if len(built) == 0 {
				return fallback, "", nil
			}
			return nil, "", fmt.Errorf("provider %q is not configured", providerKey)
		}
		return entry.provider, entry.model, nil
	}, nil
}

func build(cfg config.LLMConfig) (LLMProvider, error) {
	switch cfg.Type {
	case "anthropic":
		return anthropic.New(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "openai", "":
		return openaicompatible.New(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.ExtraHeaders)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
