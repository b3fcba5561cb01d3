package std

import (
	"context"

	"github.com/flowforge/engine/internal/blocks"
)

func init() {
	blocks.Register("trigger.cron", newTriggerCron)
}

// triggerCronBlock marks a workflow's scheduled entry point. Its "schedule"
// setting is read by the workflow-save path to keep the CronTrigger store
// in sync (create/update/delete to match the graph); the block itself just
// behaves like start when the engine reaches it in a run — the run's
// trigger payload at that point is whatever the scheduler built for this
// tick.
type triggerCronBlock struct {
	payload map[string]any
}

func newTriggerCron(settings map[string]any) (blocks.Block, error) {
	return &triggerCronBlock{payload: blocks.GetMap(settings, "payload")}, nil
}

func (b *triggerCronBlock) Kind() blocks.Kind      { return blocks.KindTrigger }
func (b *triggerCronBlock) ToolCompatible() bool   { return false }
func (b *triggerCronBlock) Extras() map[string]any { return nil }

func (b *triggerCronBlock) SettingsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"schedule": map[string]any{"type": "string"},
			"payload":  map[string]any{"type": "object"},
		},
	}
}

func (b *triggerCronBlock) Run(_ context.Context, in blocks.Input) (blocks.Output, error) {
	if len(b.payload) > 0 {
		return blocks.Output{Data: b.payload}, nil
	}
	if len(in.Trigger) > 0 {
		return blocks.Output{Data: in.Trigger}, nil
	}
	return blocks.Output{Data: map[string]any{}}, nil
}
