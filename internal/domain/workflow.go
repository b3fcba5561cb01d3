package domain

import (
	"context"
	"time"
)

// Workflow is a named, versioned container for a Graph plus trigger
// configuration (webhook slug, cron schedule).
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	WebhookSlug string    `json:"webhook_slug,omitempty"`
	Graph       Graph     `json:"graph"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkflowVersion is an immutable snapshot of a workflow's graph, used so
// in-flight runs keep executing against the graph they were started with
// even if the workflow is edited concurrently.
type WorkflowVersion struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Graph      Graph     `json:"graph"`
	CreatedAt  time.Time `json:"created_at"`
}

// CronTrigger binds a workflow (optionally a pinned version) to a cron
// schedule. Enabled triggers are loaded by the scheduler at startup and on
// reload.
type CronTrigger struct {
	ID         string  `json:"id"`
	WorkflowID string  `json:"workflow_id"`
	VersionID  *string `json:"version_id,omitempty"`
	Schedule   string  `json:"schedule"`
	Enabled    bool    `json:"enabled"`
}

// WorkflowStore persists workflows and their versions.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	GetWorkflowByWebhookSlug(ctx context.Context, slug string) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	CreateWorkflow(ctx context.Context, w *Workflow) error
	UpdateWorkflow(ctx context.Context, w *Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	CreateWorkflowVersion(ctx context.Context, v *WorkflowVersion) error
	GetWorkflowVersion(ctx context.Context, id string) (*WorkflowVersion, error)
}

// TriggerStore persists cron triggers.
type TriggerStore interface {
	ListEnabledCronTriggers(ctx context.Context) ([]CronTrigger, error)
	CreateCronTrigger(ctx context.Context, t *CronTrigger) error
	UpdateCronTrigger(ctx context.Context, t *CronTrigger) error
	DeleteCronTrigger(ctx context.Context, id string) error
}
