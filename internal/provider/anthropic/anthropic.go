// Package anthropic implements provider.LLMProvider against the Anthropic
// Messages API, trimmed to the single-shot Chat path.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/worldline-go/klient"

	"github.com/flowforge/engine/internal/provider"
)

const DefaultBaseURL = "https://api.anthropic.com"

type Provider struct {
	Model string

	client *klient.Client
}

func New(apiKey, model, baseURL string) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client, err := klient.New(
		klient.WithBaseURL(baseURL),
		klient.WithLogger(slog.Default()),
		klient.WithHeaderSet(http.Header{
			"X-Api-Key":         []string{apiKey},
			"Anthropic-Version": []string{"2023-06-01"},
			"Content-Type":      []string{"application/json"},
		}),
		klient.WithDisableRetry(true),
		klient.WithDisableEnvValues(true),
	)
	if err != nil {
		return nil, err
	}

	return &Provider{Model: model, client: client}, nil
}

type responseBody struct {
	Error      *apiError      `json:"error,omitempty"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type contentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (p *Provider) Chat(ctx context.Context, model string, messages []provider.Message, tools []provider.Tool) (*provider.Response, error) {
	if model == "" {
		model = p.Model
	}

	body := buildRequestBody(model, messages, tools)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/v1/messages", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	var result responseBody
	if err := p.client.Do(req, func(r *http.Response) error {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("decode response: %w (body: %s)", err, string(data))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("provider error: %s", result.Error.Message)
	}

	resp := &provider.Response{
		Finished: result.StopReason != "tool_use",
		Usage: provider.Usage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.InputTokens + result.Usage.OutputTokens,
		},
	}

	for _, block := range result.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	return resp, nil
}

func buildRequestBody(model string, messages []provider.Message, tools []provider.Tool) map[string]any {
	var system string
	reqMessages := make([]any, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if s, ok := m.Content.(string); ok {
				system = s
				continue
			}
		}
		reqMessages = append(reqMessages, map[string]any{"role": m.Role, "content": m.Content})
	}

	body := map[string]any{
		"model":      model,
		"messages":   reqMessages,
		"max_tokens": 4096,
	}
	if system != "" {
		body["system"] = system
	}

	if len(tools) > 0 {
		aTools := make([]map[string]any, len(tools))
		for i, t := range tools {
			aTools[i] = map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.InputSchema,
			}
		}
		body["tools"] = aTools
	}

	return body
}
