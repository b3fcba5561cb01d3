package std

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/template"
)

func init() {
	blocks.Register("http.request", newHTTPRequestExecutor)
	blocks.Register("tool.http_request", newHTTPRequestTool)
}

// httpRequestBlock issues an outbound HTTP call. "http.request" and
// "tool.http_request" share this implementation and settings shape; they
// differ only in kind, since a tool-kind node is never scheduled in the
// engine's main topological pass (see Kind's doc comment) — it only runs
// when an agent dispatches it by name, exactly like the rest of the
// tool.* family.
type httpRequestBlock struct {
	kind    blocks.Kind
	method  string
	url     string
	headers map[string]string
	body    string
	timeout time.Duration
}

func newHTTPRequestExecutor(settings map[string]any) (blocks.Block, error) {
	return newHTTPRequest(settings, blocks.KindExecutor)
}

func newHTTPRequestTool(settings map[string]any) (blocks.Block, error) {
	return newHTTPRequest(settings, blocks.KindTool)
}

func newHTTPRequest(settings map[string]any, kind blocks.Kind) (blocks.Block, error) {
	url := blocks.GetString(settings, "url", "")
	if url == "" {
		return nil, blocks.ConfigError("http.request: %q setting is required", "url")
	}

	headers := make(map[string]string)
	for k, v := range blocks.GetMap(settings, "headers") {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	timeoutSec := blocks.GetInt(settings, "timeout_seconds", 30)

	return &httpRequestBlock{
		kind:    kind,
		method:  strings.ToUpper(blocks.GetString(settings, "method", "GET")),
		url:     url,
		headers: headers,
		body:    blocks.GetString(settings, "body", ""),
		timeout: time.Duration(timeoutSec) * time.Second,
	}, nil
}

func (b *httpRequestBlock) Kind() blocks.Kind     { return b.kind }
func (b *httpRequestBlock) ToolCompatible() bool   { return true }
func (b *httpRequestBlock) Extras() map[string]any { return nil }

func (b *httpRequestBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"url"},
		"properties": map[string]any{
			"url":             map[string]any{"type": "string", "minLength": 1},
			"method":          map[string]any{"type": "string"},
			"headers":         map[string]any{"type": "object"},
			"body":            map[string]any{"type": "string"},
			"timeout_seconds": map[string]any{"type": "number"},
		},
	}
}

func (b *httpRequestBlock) Run(ctx context.Context, in blocks.Input) (blocks.Output, error) {
	flat := template.FlattenUpstream(in.Upstream)

	url, err := template.Render(b.url, flat, template.Strict)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("http.request: render url: %v", err)
	}

	body := b.body
	if raw, ok := in.Settings["body"].(string); ok {
		body = raw
	}
	renderedBody, err := template.Render(body, flat, template.Permissive)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("http.request: render body: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, b.method, url, bytes.NewBufferString(renderedBody))
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("http.request: build request: %v", err)
	}
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	if in.Caps.HTTP == nil {
		return blocks.Output{}, blocks.DependencyError(errNoHTTPClient)
	}
	resp, err := in.Caps.HTTP.HTTP.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return blocks.Output{}, blocks.TimeoutError(err)
		}
		return blocks.Output{}, blocks.DependencyError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return blocks.Output{}, blocks.RemoteError(err)
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		parsed = string(respBody)
	}

	return blocks.Output{Data: map[string]any{
		"status": resp.StatusCode,
		"body":   parsed,
		"raw":    string(respBody),
	}}, nil
}
