package tool_test

import (
	"context"
	"testing"

	"github.com/flowforge/engine/internal/blocks"
	_ "github.com/flowforge/engine/internal/blocks/tool"
)

func TestCalculatorEvaluatesExpression(t *testing.T) {
	b, err := blocks.Global().Build("tool.calculator", map[string]any{"expression": "2 + 3 * 4"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	out, err := b.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.Data["result"]; got != float64(14) {
		t.Fatalf("result = %v, want 14", got)
	}
}

func TestCalculatorRejectsNonExpression(t *testing.T) {
	b, err := blocks.Global().Build("tool.calculator", map[string]any{"expression": "__import__(\"os\")"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := b.Run(context.Background(), blocks.Input{}); err == nil {
		t.Fatal("expected error rejecting identifier/call expression")
	}
}

func TestCalculatorDivisionByZero(t *testing.T) {
	b, err := blocks.Global().Build("tool.calculator", map[string]any{"expression": "1 / 0"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := b.Run(context.Background(), blocks.Input{}); err == nil {
		t.Fatal("expected division by zero error")
	}
}
