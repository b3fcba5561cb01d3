package domain

import (
	"context"
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a Run or NodeRun.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	// StatusSkipped is a NodeRun-only status that the engine does not
	// assign: a tool node passed over in the main execution pass gets a log
	// entry and no NodeRun, and there is no branch selection.
	StatusSkipped RunStatus = "skipped"
)

// Run is one execution of a workflow (or a pinned workflow version).
type Run struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflow_id"`
	VersionID       *string         `json:"version_id,omitempty"`
	UserID          *string         `json:"user_id,omitempty"`
	Status          RunStatus       `json:"status"`
	TriggerType     string          `json:"trigger_type,omitempty"`
	TriggerPayload  json.RawMessage `json:"trigger_payload,omitempty"`
	Outputs         json.RawMessage `json:"outputs,omitempty"`
	Error           string          `json:"error,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NodeRun is the execution record of a single node within a Run.
type NodeRun struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	NodeID     string          `json:"node_id"`
	NodeType   string          `json:"node_type"`
	Status     RunStatus       `json:"status"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// LogLevel mirrors slog's levels as persisted strings.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one append-only log line attached to a run, optionally scoped
// to a single node.
type LogEntry struct {
	ID      int64           `json:"id"`
	RunID   string          `json:"run_id"`
	NodeID  string          `json:"node_id,omitempty"`
	Level   LogLevel        `json:"level"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Ts      time.Time       `json:"ts"`
}

// FileAsset records a file produced by a node during a run, stored via the
// ObjectStore and addressable by a signed URL.
type FileAsset struct {
	ID                 string     `json:"id"`
	RunID               string     `json:"run_id"`
	NodeID              string     `json:"node_id"`
	Bucket              string     `json:"bucket"`
	Path                string     `json:"path"`
	ContentType         string     `json:"content_type,omitempty"`
	Size                int64      `json:"size,omitempty"`
	SignedURL           string     `json:"signed_url,omitempty"`
	SignedURLExpiresAt  *time.Time `json:"signed_url_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// IntegrationAccount is a stored credential for an external tool/integration
// (an MCP-compatible toolkit, a hosted API), scoped to a user.
type IntegrationAccount struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Toolkit     string    `json:"toolkit"`
	AccountRef  string    `json:"account_ref"`
	Credential  string    `json:"-"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RunStore persists runs, node runs, logs, file assets and integration
// accounts.
type RunStore interface {
	CreateRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, workflowID string, limit int) ([]Run, error)
	UpdateRun(ctx context.Context, r *Run) error

	CreateNodeRun(ctx context.Context, nr *NodeRun) error
	UpdateNodeRun(ctx context.Context, nr *NodeRun) error
	ListNodeRuns(ctx context.Context, runID string) ([]NodeRun, error)

	AppendLog(ctx context.Context, entry *LogEntry) error
	ListLogs(ctx context.Context, runID string, afterID int64, limit int) ([]LogEntry, error)

	CreateFileAsset(ctx context.Context, f *FileAsset) error
	ListFileAssets(ctx context.Context, runID string) ([]FileAsset, error)

	CreateIntegrationAccount(ctx context.Context, a *IntegrationAccount) error
	GetIntegrationAccount(ctx context.Context, userID, toolkit string) (*IntegrationAccount, error)
	ListIntegrationAccounts(ctx context.Context, userID string) ([]IntegrationAccount, error)
	DeleteIntegrationAccount(ctx context.Context, id string) error
}
