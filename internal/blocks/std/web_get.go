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
	blocks.Register("web.get", newWebGet)
}

// webGetBlock is http.request's richer sibling: it additionally parses the
// response body per response_mode and always reports status/headers/data
// alongside whichever typed view the mode asked for — grounded on
// web_get.py's {status, headers, data, data_text, data_json, response_mode}
// output shape.
type webGetBlock struct {
	method       string
	url          string
	headers      map[string]string
	body         string
	responseMode string
	timeout      time.Duration
}

func newWebGet(settings map[string]any) (blocks.Block, error) {
	url := blocks.GetString(settings, "url", "")
	if url == "" {
		return nil, blocks.ConfigError("web.get: %q setting is required", "url")
	}

	headers := make(map[string]string)
	for k, v := range blocks.GetMap(settings, "headers") {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	mode := blocks.GetString(settings, "response_mode", "auto")
	switch mode {
	case "auto", "json", "text", "bytes":
	default:
		return nil, blocks.ConfigError("web.get: unsupported %q value %q", "response_mode", mode)
	}

	timeoutSec := blocks.GetInt(settings, "timeout_seconds", 30)

	return &webGetBlock{
		method:       strings.ToUpper(blocks.GetString(settings, "method", "GET")),
		url:          url,
		headers:      headers,
		body:         blocks.GetString(settings, "body", ""),
		responseMode: mode,
		timeout:      time.Duration(timeoutSec) * time.Second,
	}, nil
}

func (b *webGetBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *webGetBlock) ToolCompatible() bool   { return true }
func (b *webGetBlock) Extras() map[string]any { return nil }

func (b *webGetBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"url"},
		"properties": map[string]any{
			"url":             map[string]any{"type": "string", "minLength": 1},
			"method":          map[string]any{"type": "string"},
			"headers":         map[string]any{"type": "object"},
			"body":            map[string]any{"type": "string"},
			"response_mode":   map[string]any{"type": "string", "enum": []string{"auto", "json", "text", "bytes"}},
			"timeout_seconds": map[string]any{"type": "number"},
		},
	}
}

func (b *webGetBlock) Run(ctx context.Context, in blocks.Input) (blocks.Output, error) {
	flat := template.FlattenUpstream(in.Upstream)

	url, err := template.Render(b.url, flat, template.Strict)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("web.get: render url: %v", err)
	}

	body := b.body
	if raw, ok := in.Settings["body"].(string); ok {
		body = raw
	}
	renderedBody, err := template.Render(body, flat, template.Permissive)
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("web.get: render body: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, b.method, url, bytes.NewBufferString(renderedBody))
	if err != nil {
		return blocks.Output{}, blocks.ConfigError("web.get: build request: %v", err)
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

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return blocks.Output{}, blocks.RemoteError(err)
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	out := map[string]any{
		"status":        resp.StatusCode,
		"headers":       headers,
		"response_mode": b.responseMode,
	}

	switch b.responseMode {
	case "text":
		out["data"] = string(raw)
		out["data_text"] = string(raw)
	case "json":
		var parsed any
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr != nil {
			return blocks.Output{}, blocks.RemoteError(jsonErr)
		}
		out["data"] = parsed
		out["data_json"] = parsed
	case "bytes":
		out["data"] = raw
	default: // auto
		var parsed any
		if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil {
			out["data"] = parsed
			out["data_json"] = parsed
		} else {
			out["data"] = string(raw)
			out["data_text"] = string(raw)
		}
	}

	return blocks.Output{Data: out}, nil
}
