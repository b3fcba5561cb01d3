package agent_test

import (
	"context"
	"strings"
	"testing"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/provider"
)

type scriptedProvider struct {
	replies []string
	calls   int
}

func (p *scriptedProvider) Chat(_ context.Context, _ string, _ []provider.Message, _ []provider.Tool) (*provider.Response, error) {
	r := p.replies[p.calls]
	p.calls++
	return &provider.Response{Content: r, Finished: true}, nil
}

func TestReactReturnsFinalAnswerImmediately(t *testing.T) {
	b, err := blocks.Global().Build("agent.react", map[string]any{"prompt": "what is the answer?"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	caps := blocks.Capabilities{
		Provider: func(string) (provider.LLMProvider, string, error) {
			return &scriptedProvider{replies: []string{"Final Answer: 42"}}, "test-model", nil
		},
	}

	out, err := b.Run(context.Background(), blocks.Input{Caps: caps})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	data := out.Data["data"].(map[string]any)
	if data["final"] != "42" {
		t.Fatalf("final = %v", data["final"])
	}
}

func TestReactDispatchesToolThenFinalAnswer(t *testing.T) {
	var calledType string

	caps := blocks.Capabilities{
		Provider: func(string) (provider.LLMProvider, string, error) {
			return &scriptedProvider{replies: []string{
				"Action: calc\nAction Input: {\"expression\": \"2+2\"}",
				"Final Answer: the result is 4",
			}}, "test-model", nil
		},
		ToolRunner: func(_ context.Context, typeName string, in blocks.Input) (blocks.Output, error) {
			calledType = typeName
			return blocks.Output{Data: map[string]any{"result": 4}}, nil
		},
	}

	settings := map[string]any{
		"prompt": "add two numbers",
		"tools": []any{
			map[string]any{"id": "n1", "name": "calc", "type": "tool.calculator", "settings": map[string]any{}},
		},
	}
	b, err := blocks.Global().Build("agent.react", settings)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out, err := b.Run(context.Background(), blocks.Input{Caps: caps})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if calledType != "tool.calculator" {
		t.Fatalf("expected tool.calculator dispatched, got %q", calledType)
	}
	data := out.Data["data"].(map[string]any)
	if !strings.Contains(data["final"].(string), "4") {
		t.Fatalf("final = %v", data["final"])
	}
}

func TestReactRequiresNonEmptyPrompt(t *testing.T) {
	_, err := blocks.Global().Build("agent.react", map[string]any{"prompt": ""})
	if err == nil {
		t.Fatal("expected config error for empty prompt")
	}
}
