// Package mcpclient is a minimal Model Context Protocol client used for
// hosted-tool dispatch: calling OUT to an external MCP-compliant toolkit
// (Composio, or any other MCP server) from inside an agent.react tool
// invocation. It reuses pkg/mcp's JSON-RPC model types so the request/
// response shapes match pkg/mcp's server-side implementation, which the
// engine itself does not mount.
package mcpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/worldline-go/klient"

	"github.com/flowforge/engine/pkg/mcp"
)

// Client talks JSON-RPC 2.0 to a single MCP server reachable over HTTP.
type Client struct {
	baseURL string
	http    *klient.Client
	nextID  atomic.Int64
}

// New creates a Client for the MCP server at baseURL, using the same
// klient-backed transport every other outbound HTTP block in this module
// uses (see internal/blocks/std/httpclient.go). A nil client builds one
// with retry disabled; a caller wanting retries can build its own with
// klient.WithDisableRetry(false) and pass it in.
func New(baseURL string, httpClient *klient.Client) *Client {
	if httpClient == nil {
		httpClient, _ = klient.New(
			klient.WithDisableBaseURLCheck(true),
			klient.WithDisableEnvValues(true),
			klient.WithDisableRetry(true),
		)
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// ListTools calls the MCP "tools/list" method.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var result struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a named tool with the given arguments via "tools/call".
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (any, error) {
	params := map[string]any{"name": name, "arguments": arguments}
	var result any
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	var raw json.RawMessage
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("mcpclient: marshal params: %w", err)
		}
	}

	req := mcp.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  raw,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("mcpclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mcpclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mcpclient: request: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp mcp.JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("mcpclient: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("mcpclient: %s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}

	data, err := json.Marshal(rpcResp.Result)
	if err != nil {
		return fmt.Errorf("mcpclient: remarshal result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("mcpclient: decode result: %w", err)
	}

	return nil
}
