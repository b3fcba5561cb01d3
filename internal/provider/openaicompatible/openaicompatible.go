// Package openaicompatible implements provider.LLMProvider against any
// vendor exposing an OpenAI-shaped /chat/completions endpoint. Adapted from
// the original openai provider implementation: same klient-backed
// HTTP client construction, same request/response shape, trimmed of the
// reverse-proxy and SSE-streaming paths that this engine's single-shot
// Chat call has no use for.
package openaicompatible

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

const DefaultBaseURL = "https://api.openai.com/v1/chat/completions"

// Provider calls an OpenAI-compatible chat completions endpoint.
type Provider struct {
	Model   string
	BaseURL string

	client *klient.Client
}

// New builds a Provider. extraHeaders lets vendor-specific requirements
// (GitHub Models' Accept/X-GitHub-Api-Version, etc.) ride along without a
// bespoke client per vendor.
func New(apiKey, model, baseURL string, extraHeaders map[string]string) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	headers := http.Header{"Content-Type": []string{"application/json"}}
	if apiKey != "" {
		headers["Authorization"] = []string{"Bearer " + apiKey}
	}
	for k, v := range extraHeaders {
		headers[k] = []string{v}
	}

	client, err := klient.New(
		klient.WithBaseURL(baseURL),
		klient.WithLogger(slog.Default()),
		klient.WithHeaderSet(headers),
		klient.WithDisableRetry(true),
		klient.WithDisableEnvValues(true),
	)
	if err != nil {
		return nil, err
	}

	return &Provider{Model: model, BaseURL: baseURL, client: client}, nil
}

type responseBody struct {
	Error   *apiError `json:"error,omitempty"`
	Choices []choice  `json:"choices"`
	Usage   *usage    `json:"usage,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type choice struct {
	Message      choiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type choiceMessage struct {
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "", bytes.NewBuffer(payload))
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
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	c := result.Choices[0]
	resp := &provider.Response{
		Content:  c.Message.Content,
		Finished: c.FinishReason != "tool_calls",
	}
	if result.Usage != nil {
		resp.Usage = provider.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		}
	}

	for _, tc := range c.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("parse tool call arguments: %w", err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return resp, nil
}

func buildRequestBody(model string, messages []provider.Message, tools []provider.Tool) map[string]any {
	reqMessages := make([]any, len(messages))
	for i, m := range messages {
		reqMessages[i] = map[string]any{"role": m.Role, "content": m.Content}
	}

	body := map[string]any{"model": model, "messages": reqMessages}

	if len(tools) > 0 {
		oaTools := make([]map[string]any, len(tools))
		for i, t := range tools {
			oaTools[i] = map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.InputSchema,
				},
			}
		}
		body["tools"] = oaTools
	}

	return body
}
