// Package scheduler drives cron-triggered runs: it loads enabled
// CronTriggers from the store and fires each one on its schedule using
// the hardloop library, handing the resulting Run off to the engine.
//
// Because hardloop's cron runner doesn't support dynamic add/remove of
// jobs, the scheduler stops and recreates the whole runner whenever
// triggers change, and leader election across replicas goes through a
// dedicated cluster lock, separate from the one used for encryption key
// rotation.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rakunlabs/logi"
	"github.com/worldline-go/hardloop"

	"github.com/flowforge/engine/internal/cluster"
	"github.com/flowforge/engine/internal/domain"
	"github.com/flowforge/engine/internal/engine"
)

// cronRunner is satisfied by hardloop's unexported *cronJob type (returned
// by hardloop.NewCron).
type cronRunner interface {
	Start(ctx context.Context) error
	Stop()
}

// Scheduler manages cron-based workflow triggers.
type Scheduler struct {
	triggerStore  domain.TriggerStore
	workflowStore domain.WorkflowStore
	runStore      domain.RunStore
	engine        *engine.Engine

	cluster *cluster.Cluster

	mu     sync.Mutex
	cron   cronRunner
	cancel context.CancelFunc
	ctx    context.Context
}

// New creates a cron trigger scheduler. cl may be nil, meaning single
// instance mode (no leader election required).
func New(ts domain.TriggerStore, ws domain.WorkflowStore, rs domain.RunStore, eng *engine.Engine, cl *cluster.Cluster) *Scheduler {
	return &Scheduler{
		triggerStore:  ts,
		workflowStore: ws,
		runStore:      rs,
		engine:        eng,
		cluster:       cl,
	}
}

// Start loads all enabled cron triggers and starts firing them. Call once
// during server initialization with a long-lived process context.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx

	if s.cluster != nil {
		go s.runLockLoop(ctx)
		return nil
	}

	return s.reload()
}

// runLockLoop holds the scheduler leader lock for as long as this process
// is the elected cron runner, starting/stopping the cron runner as the
// lock is acquired/lost.
func (s *Scheduler) runLockLoop(ctx context.Context) {
	logger := logi.Ctx(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		logger.Info("scheduler: attempting to acquire leader lock")
		if err := s.cluster.LockScheduler(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("scheduler: failed to acquire lock, retrying", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		logger.Info("scheduler: acquired leader lock, starting cron triggers")

		s.mu.Lock()
		if err := s.reload(); err != nil {
			logger.Error("scheduler: failed to start cron runner", "error", err)
		}
		s.mu.Unlock()

		<-ctx.Done()

		logger.Info("scheduler: releasing leader lock")
		s.Stop()
		s.cluster.UnlockScheduler()
		return
	}
}

// Reload stops the current cron runner (if any) and rebuilds it from the
// current set of enabled triggers. Call after creating, updating, or
// deleting a CronTrigger.
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reload()
}

// Stop stops the scheduler. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Scheduler) reload() error {
	s.stopLocked()

	if s.ctx == nil {
		return nil
	}

	triggers, err := s.triggerStore.ListEnabledCronTriggers(s.ctx)
	if err != nil {
		return fmt.Errorf("scheduler: load cron triggers: %w", err)
	}

	if len(triggers) == 0 {
		logi.Ctx(s.ctx).Info("scheduler: no enabled cron triggers found")
		return nil
	}

	crons := make([]hardloop.Cron, 0, len(triggers))
	for _, t := range triggers {
		if t.Schedule == "" {
			logi.Ctx(s.ctx).Warn("scheduler: cron trigger has no schedule, skipping",
				"trigger_id", t.ID, "workflow_id", t.WorkflowID)
			continue
		}

		trigger := t
		crons = append(crons, hardloop.Cron{
			Name:  fmt.Sprintf("trigger-%s", trigger.ID),
			Specs: []string{trigger.Schedule},
			Func:  s.makeCronFunc(trigger),
		})
	}

	if len(crons) == 0 {
		logi.Ctx(s.ctx).Info("scheduler: no valid cron specs after filtering")
		return nil
	}

	cronJob, err := hardloop.NewCron(crons...)
	if err != nil {
		return fmt.Errorf("scheduler: create cron runner: %w", err)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.cron = cronJob

	if err := cronJob.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("scheduler: start cron runner: %w", err)
	}

	logi.Ctx(s.ctx).Info("scheduler: started cron triggers", "count", len(crons))

	return nil
}

// makeCronFunc returns the function hardloop calls on each tick for a
// given trigger: load the workflow (or its pinned version), create a Run
// row, and dispatch it to the engine.
func (s *Scheduler) makeCronFunc(trigger domain.CronTrigger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logi.Ctx(ctx).Info("scheduler: cron triggered", "trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID)

		wf, err := s.workflowStore.GetWorkflow(ctx, trigger.WorkflowID)
		if err != nil {
			logi.Ctx(ctx).Error("scheduler: get workflow failed", "trigger_id", trigger.ID, "error", err)
			return nil // don't stop the cron loop on a transient error
		}
		if wf == nil {
			logi.Ctx(ctx).Warn("scheduler: workflow not found, skipping", "trigger_id", trigger.ID)
			return nil
		}

		graphToRun := wf.Graph
		var versionID *string
		if trigger.VersionID != nil {
			ver, err := s.workflowStore.GetWorkflowVersion(ctx, *trigger.VersionID)
			if err != nil {
				logi.Ctx(ctx).Error("scheduler: get pinned version failed", "trigger_id", trigger.ID, "version_id", *trigger.VersionID, "error", err)
			} else if ver != nil {
				graphToRun = ver.Graph
				versionID = trigger.VersionID
			}
		}

		payload, _ := json.Marshal(map[string]any{
			"trigger_type": "cron",
			"trigger_id":   trigger.ID,
			"triggered_at": time.Now().UTC().Format(time.RFC3339),
			"schedule":     trigger.Schedule,
		})

		run := &domain.Run{
			ID:             ulid.Make().String(),
			WorkflowID:     trigger.WorkflowID,
			VersionID:      versionID,
			Status:         domain.StatusPending,
			TriggerType:    "cron",
			TriggerPayload: payload,
		}
		if err := s.runStore.CreateRun(ctx, run); err != nil {
			logi.Ctx(ctx).Error("scheduler: create run failed", "trigger_id", trigger.ID, "error", err)
			return nil
		}

		logi.Ctx(ctx).Info("scheduler: run created", "trigger_id", trigger.ID, "run_id", run.ID)
		s.engine.Dispatch(run, graphToRun)

		return nil
	}
}
