package std

import (
	"context"
	"time"

	"github.com/flowforge/engine/internal/blocks"
)

func init() {
	blocks.Register("util.sleep", newSleep)
}

// sleepBlock pauses for a configured duration plus optional jitter —
// grounded on sleep.py's asyncio.sleep(seconds + jitter_ms/1000), reworked
// onto context cancellation so a cancelled run doesn't block past its
// deadline waiting out the sleep.
type sleepBlock struct {
	total time.Duration
}

func newSleep(settings map[string]any) (blocks.Block, error) {
	seconds := blocks.GetFloat(settings, "seconds", 0.1)
	if seconds < 0 {
		seconds = 0
	}
	jitterMs := blocks.GetInt(settings, "jitter_ms", 0)
	if jitterMs < 0 {
		jitterMs = 0
	}
	total := time.Duration(seconds*float64(time.Second)) + time.Duration(jitterMs)*time.Millisecond
	return &sleepBlock{total: total}, nil
}

func (b *sleepBlock) Kind() blocks.Kind     { return blocks.KindExecutor }
func (b *sleepBlock) ToolCompatible() bool   { return true }
func (b *sleepBlock) Extras() map[string]any { return nil }

func (b *sleepBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds":   map[string]any{"type": "number", "minimum": 0},
			"jitter_ms": map[string]any{"type": "integer", "minimum": 0},
		},
	}
}

func (b *sleepBlock) Run(ctx context.Context, _ blocks.Input) (blocks.Output, error) {
	timer := time.NewTimer(b.total)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return blocks.Output{}, blocks.TimeoutError(ctx.Err())
	}

	return blocks.Output{Data: map[string]any{"slept": b.total.Seconds()}}, nil
}
