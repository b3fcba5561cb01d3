// Package echo provides a zero-configuration LLMProvider for local
// development and tests: it never calls out to a network, uppercasing the
// last user message instead. Grounded on llm_simple.py's documented
// behavior when OPENAI_API_KEY is unset — the original falls back to
// str(prompt).upper() rather than failing the block, so a workflow stays
// runnable without credentials.
package echo

import (
	"context"
	"strings"

	"github.com/flowforge/engine/internal/provider"
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Chat(_ context.Context, _ string, messages []provider.Message, _ []provider.Tool) (*provider.Response, error) {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if s, ok := messages[i].Content.(string); ok {
			last = s
			break
		}
	}
	return &provider.Response{Content: strings.ToUpper(last), Finished: true}, nil
}
