package std_test

import (
	"context"
	"testing"

	"github.com/flowforge/engine/internal/blocks"
	_ "github.com/flowforge/engine/internal/blocks/std"
)

func build(t *testing.T, typeName string, settings map[string]any) blocks.Block {
	t.Helper()
	b, err := blocks.Global().Build(typeName, settings)
	if err != nil {
		t.Fatalf("build %s: %v", typeName, err)
	}
	return b
}

func TestStartEchoesPayload(t *testing.T) {
	b := build(t, "start", map[string]any{"payload": map[string]any{"hello": "world"}})
	out, err := b.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.Data["hello"]; got != "world" {
		t.Fatalf("hello = %v, want world", got)
	}
}

func TestUppercaseConvertsText(t *testing.T) {
	b := build(t, "transform.uppercase", map[string]any{"text": "foo"})
	out, err := b.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.Data["text"]; got != "FOO" {
		t.Fatalf("text = %v, want FOO", got)
	}
}

func TestUppercaseTrimsWhitespaceWhenConfigured(t *testing.T) {
	b := build(t, "transform.uppercase", map[string]any{"text": "  foo  ", "trim_whitespace": true})
	out, err := b.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.Data["text"]; got != "FOO" {
		t.Fatalf("text = %q, want FOO", got)
	}
}

func TestTemplateChainProducesUppercaseGreeting(t *testing.T) {
	// s(start,{payload:{name:"Alice"}}) -> t(template) -> u(uppercase)
	start := build(t, "start", map[string]any{"payload": map[string]any{"name": "Alice"}})
	startOut, err := start.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	tmpl := build(t, "transform.template", map[string]any{"template": "Hello {{ s.name }}"})
	tmplOut, err := tmpl.Run(context.Background(), blocks.Input{
		Upstream: map[string]any{"s": startOut.Data},
	})
	if err != nil {
		t.Fatalf("template run: %v", err)
	}
	if got := tmplOut.Data["text"]; got != "Hello Alice" {
		t.Fatalf("template text = %v, want %q", got, "Hello Alice")
	}

	upper := build(t, "transform.uppercase", map[string]any{"text": "{{ t.text }}"})
	upperOut, err := upper.Run(context.Background(), blocks.Input{
		Upstream: map[string]any{"t": tmplOut.Data},
	})
	if err != nil {
		t.Fatalf("uppercase run: %v", err)
	}
	if got := upperOut.Data["text"]; got != "HELLO ALICE" {
		t.Fatalf("uppercase text = %v, want HELLO ALICE", got)
	}
}

func TestMathAddSumsOperands(t *testing.T) {
	b := build(t, "math.add", map[string]any{"a": 1.0, "b": 2.0})
	out, err := b.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.Data["result"]; got != 3.0 {
		t.Fatalf("result = %v, want 3", got)
	}
}

func TestJSONGetReturnsNestedValue(t *testing.T) {
	b := build(t, "json.get", map[string]any{
		"source": map[string]any{"a": map[string]any{"b": map[string]any{"c": 42}}},
		"path":   []any{"a", "b", "c"},
	})
	out, err := b.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.Data["value"]; got != 42 {
		t.Fatalf("value = %v, want 42", got)
	}
}

func TestJSONGetReturnsNilOnMissingPath(t *testing.T) {
	b := build(t, "json.get", map[string]any{
		"source": map[string]any{"a": map[string]any{}},
		"path":   []any{"a", "b", "c"},
	})
	out, err := b.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.Data["value"]; got != nil {
		t.Fatalf("value = %v, want nil", got)
	}
}

func TestSleepRespectsContextCancellation(t *testing.T) {
	b := build(t, "util.sleep", map[string]any{"seconds": 60.0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Run(ctx, blocks.Input{}); err == nil {
		t.Fatal("expected timeout error on cancelled context")
	}
}

func TestAudioTTSDegradesToStubWhenUnconfigured(t *testing.T) {
	b := build(t, "audio.tts", map[string]any{"text": "hello"})
	out, err := b.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	media, ok := out.Data["media"].(blocks.Media)
	if !ok {
		t.Fatalf("media = %T, want blocks.Media", out.Data["media"])
	}
	if media.BytesB64 == "" {
		t.Fatal("expected non-empty stub bytes")
	}
}

func TestAudioSTTReturnsEmptyWhenUnconfigured(t *testing.T) {
	b := build(t, "audio.stt", map[string]any{"media": "aGVsbG8gd29ybGQ="})
	out, err := b.Run(context.Background(), blocks.Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := out.Data["text"]; got != "" {
		t.Fatalf("text = %v, want empty string", got)
	}
}

func TestWebGetFailsWithoutHTTPClient(t *testing.T) {
	// A bare Input{} carries no HTTP client capability, so Run fails before
	// any request is made; response_mode parsing over a real HTTP round
	// trip is integration-level and out of scope for this unit test file.
	b := build(t, "web.get", map[string]any{"url": "http://127.0.0.1:0", "response_mode": "json", "timeout_seconds": 1})
	if _, err := b.Run(context.Background(), blocks.Input{}); err == nil {
		t.Fatal("expected an error when no HTTP client capability is available")
	}
}
