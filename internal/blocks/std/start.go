// Package std holds the executor blocks every workflow can use without any
// external dependency beyond what the engine already wires in: trigger
// entry points, data shaping, HTTP calls, and the LLM-backed prompt blocks.
// Grounded on the original start.py/show.py/template.py/json_get.py/
// branch.py executors and the engine's own type-keyed node registration
// pattern.
package std

import (
	"context"

	"github.com/flowforge/engine/internal/blocks"
)

func init() {
	blocks.Register("start", newStart)
}

// startBlock is the entry point of a run: it seeds downstream context with
// either an explicit payload setting or the run's trigger payload.
type startBlock struct {
	payload map[string]any
}

func newStart(settings map[string]any) (blocks.Block, error) {
	return &startBlock{payload: blocks.GetMap(settings, "payload")}, nil
}

func (b *startBlock) Kind() blocks.Kind        { return blocks.KindTrigger }
func (b *startBlock) ToolCompatible() bool      { return false }
func (b *startBlock) Extras() map[string]any    { return nil }

func (b *startBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"payload": map[string]any{"type": "object"}},
	}
}

func (b *startBlock) Run(_ context.Context, in blocks.Input) (blocks.Output, error) {
	if len(b.payload) > 0 {
		return blocks.Output{Data: b.payload}, nil
	}
	if len(in.Trigger) > 0 {
		return blocks.Output{Data: in.Trigger}, nil
	}
	return blocks.Output{Data: map[string]any{}}, nil
}
