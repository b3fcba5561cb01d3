package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/flowforge/engine/internal/crypto"
	"github.com/flowforge/engine/internal/domain"
)

// ─── Run ───

type runRow struct {
	ID             string          `db:"id"`
	WorkflowID     string          `db:"workflow_id"`
	VersionID      sql.NullString  `db:"version_id"`
	UserID         sql.NullString  `db:"user_id"`
	Status         string          `db:"status"`
	TriggerType    string          `db:"trigger_type"`
	TriggerPayload json.RawMessage `db:"trigger_payload"`
	Outputs        json.RawMessage `db:"outputs"`
	Error          string          `db:"error"`
	StartedAt      sql.NullTime    `db:"started_at"`
	FinishedAt     sql.NullTime    `db:"finished_at"`
	CreatedAt      time.Time       `db:"created_at"`
}

var runColumns = []any{
	"id", "workflow_id", "version_id", "user_id", "status", "trigger_type",
	"trigger_payload", "outputs", "error", "started_at", "finished_at", "created_at",
}

func (p *Postgres) CreateRun(ctx context.Context, r *domain.Run) error {
	if r.ID == "" {
		r.ID = newID()
	}
	r.CreatedAt = time.Now().UTC()
	if r.Status == "" {
		r.Status = domain.StatusPending
	}

	query, _, err := p.goqu.Insert(p.tableRuns).Rows(goqu.Record{
		"id":              r.ID,
		"workflow_id":     r.WorkflowID,
		"version_id":      nullableString(r.VersionID),
		"user_id":         nullableString(r.UserID),
		"status":          string(r.Status),
		"trigger_type":    r.TriggerType,
		"trigger_payload": nullableJSON(r.TriggerPayload),
		"outputs":         nullableJSON(r.Outputs),
		"error":           r.Error,
		"started_at":      nullableTime(r.StartedAt),
		"finished_at":     nullableTime(r.FinishedAt),
		"created_at":      r.CreatedAt,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert run query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	return nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	query, _, err := p.goqu.From(p.tableRuns).Select(runColumns...).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get run query: %w", err)
	}

	var row runRow
	err = p.db.QueryRowContext(ctx, query).Scan(
		&row.ID, &row.WorkflowID, &row.VersionID, &row.UserID, &row.Status, &row.TriggerType,
		&row.TriggerPayload, &row.Outputs, &row.Error, &row.StartedAt, &row.FinishedAt, &row.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %q: %w", id, err)
	}

	return runRowToDomain(row), nil
}

func (p *Postgres) ListRuns(ctx context.Context, workflowID string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	sel := p.goqu.From(p.tableRuns).Select(runColumns...).Order(goqu.I("created_at").Desc()).Limit(uint(limit))
	if workflowID != "" {
		sel = sel.Where(goqu.I("workflow_id").Eq(workflowID))
	}

	query, _, err := sel.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list runs query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var result []domain.Run
	for rows.Next() {
		var row runRow
		if err := rows.Scan(
			&row.ID, &row.WorkflowID, &row.VersionID, &row.UserID, &row.Status, &row.TriggerType,
			&row.TriggerPayload, &row.Outputs, &row.Error, &row.StartedAt, &row.FinishedAt, &row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		result = append(result, *runRowToDomain(row))
	}

	return result, rows.Err()
}

func (p *Postgres) UpdateRun(ctx context.Context, r *domain.Run) error {
	query, _, err := p.goqu.Update(p.tableRuns).Set(goqu.Record{
		"status":          string(r.Status),
		"trigger_payload": nullableJSON(r.TriggerPayload),
		"outputs":         nullableJSON(r.Outputs),
		"error":           r.Error,
		"started_at":      nullableTime(r.StartedAt),
		"finished_at":     nullableTime(r.FinishedAt),
	}).Where(goqu.I("id").Eq(r.ID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build update run query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("update run %q: %w", r.ID, err)
	}

	return nil
}

func runRowToDomain(row runRow) *domain.Run {
	return &domain.Run{
		ID:             row.ID,
		WorkflowID:     row.WorkflowID,
		VersionID:      scanNullableString(row.VersionID),
		UserID:         scanNullableString(row.UserID),
		Status:         domain.RunStatus(row.Status),
		TriggerType:    row.TriggerType,
		TriggerPayload: row.TriggerPayload,
		Outputs:        row.Outputs,
		Error:          row.Error,
		StartedAt:      scanNullableTime(row.StartedAt),
		FinishedAt:     scanNullableTime(row.FinishedAt),
		CreatedAt:      row.CreatedAt,
	}
}

// ─── NodeRun ───

type nodeRunRow struct {
	ID         string          `db:"id"`
	RunID      string          `db:"run_id"`
	NodeID     string          `db:"node_id"`
	NodeType   string          `db:"node_type"`
	Status     string          `db:"status"`
	Input      json.RawMessage `db:"input"`
	Output     json.RawMessage `db:"output"`
	Error      json.RawMessage `db:"error"`
	StartedAt  sql.NullTime    `db:"started_at"`
	FinishedAt sql.NullTime    `db:"finished_at"`
}

var nodeRunColumns = []any{"id", "run_id", "node_id", "node_type", "status", "input", "output", "error", "started_at", "finished_at"}

func (p *Postgres) CreateNodeRun(ctx context.Context, nr *domain.NodeRun) error {
	if nr.ID == "" {
		nr.ID = newID()
	}

	query, _, err := p.goqu.Insert(p.tableNodeRuns).Rows(goqu.Record{
		"id":          nr.ID,
		"run_id":      nr.RunID,
		"node_id":     nr.NodeID,
		"node_type":   nr.NodeType,
		"status":      string(nr.Status),
		"input":       nullableJSON(nr.Input),
		"output":      nullableJSON(nr.Output),
		"error":       nullableJSON(nr.Error),
		"started_at":  nullableTime(nr.StartedAt),
		"finished_at": nullableTime(nr.FinishedAt),
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert node run query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create node run: %w", err)
	}

	return nil
}

func (p *Postgres) UpdateNodeRun(ctx context.Context, nr *domain.NodeRun) error {
	query, _, err := p.goqu.Update(p.tableNodeRuns).Set(goqu.Record{
		"status":      string(nr.Status),
		"output":      nullableJSON(nr.Output),
		"error":       nullableJSON(nr.Error),
		"finished_at": nullableTime(nr.FinishedAt),
	}).Where(
		goqu.I("run_id").Eq(nr.RunID),
		goqu.I("node_id").Eq(nr.NodeID),
	).ToSQL()
	if err != nil {
		return fmt.Errorf("build update node run query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("update node run %q/%q: %w", nr.RunID, nr.NodeID, err)
	}

	return nil
}

func (p *Postgres) ListNodeRuns(ctx context.Context, runID string) ([]domain.NodeRun, error) {
	query, _, err := p.goqu.From(p.tableNodeRuns).Select(nodeRunColumns...).
		Where(goqu.I("run_id").Eq(runID)).
		Order(goqu.I("started_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list node runs query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list node runs: %w", err)
	}
	defer rows.Close()

	var result []domain.NodeRun
	for rows.Next() {
		var row nodeRunRow
		if err := rows.Scan(&row.ID, &row.RunID, &row.NodeID, &row.NodeType, &row.Status, &row.Input, &row.Output, &row.Error, &row.StartedAt, &row.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan node run row: %w", err)
		}
		result = append(result, domain.NodeRun{
			ID:         row.ID,
			RunID:      row.RunID,
			NodeID:     row.NodeID,
			NodeType:   row.NodeType,
			Status:     domain.RunStatus(row.Status),
			Input:      row.Input,
			Output:     row.Output,
			Error:      row.Error,
			StartedAt:  scanNullableTime(row.StartedAt),
			FinishedAt: scanNullableTime(row.FinishedAt),
		})
	}

	return result, rows.Err()
}

// ─── LogEntry ───

func (p *Postgres) AppendLog(ctx context.Context, entry *domain.LogEntry) error {
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}

	query, _, err := p.goqu.Insert(p.tableLogs).Rows(goqu.Record{
		"run_id":  entry.RunID,
		"node_id": entry.NodeID,
		"level":   string(entry.Level),
		"message": entry.Message,
		"data":    nullableJSON(entry.Data),
		"ts":      entry.Ts,
	}).Returning("id").ToSQL()
	if err != nil {
		return fmt.Errorf("build append log query: %w", err)
	}

	return p.db.QueryRowContext(ctx, query).Scan(&entry.ID)
}

func (p *Postgres) ListLogs(ctx context.Context, runID string, afterID int64, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	query, _, err := p.goqu.From(p.tableLogs).
		Select("id", "run_id", "node_id", "level", "message", "data", "ts").
		Where(
			goqu.I("run_id").Eq(runID),
			goqu.I("id").Gt(afterID),
		).
		Order(goqu.I("id").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list logs query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var result []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		var level string
		if err := rows.Scan(&e.ID, &e.RunID, &e.NodeID, &level, &e.Message, &e.Data, &e.Ts); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		e.Level = domain.LogLevel(level)
		result = append(result, e)
	}

	return result, rows.Err()
}

// ─── FileAsset ───

func (p *Postgres) CreateFileAsset(ctx context.Context, f *domain.FileAsset) error {
	if f.ID == "" {
		f.ID = newID()
	}
	f.CreatedAt = time.Now().UTC()

	query, _, err := p.goqu.Insert(p.tableFileAssets).Rows(goqu.Record{
		"id":                    f.ID,
		"run_id":                f.RunID,
		"node_id":               f.NodeID,
		"bucket":                f.Bucket,
		"path":                  f.Path,
		"content_type":          f.ContentType,
		"size":                  f.Size,
		"signed_url":            f.SignedURL,
		"signed_url_expires_at": nullableTime(f.SignedURLExpiresAt),
		"created_at":            f.CreatedAt,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert file asset query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create file asset: %w", err)
	}

	return nil
}

func (p *Postgres) ListFileAssets(ctx context.Context, runID string) ([]domain.FileAsset, error) {
	query, _, err := p.goqu.From(p.tableFileAssets).
		Select("id", "run_id", "node_id", "bucket", "path", "content_type", "size", "signed_url", "signed_url_expires_at", "created_at").
		Where(goqu.I("run_id").Eq(runID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list file assets query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list file assets: %w", err)
	}
	defer rows.Close()

	var result []domain.FileAsset
	for rows.Next() {
		var f domain.FileAsset
		var expiresAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.RunID, &f.NodeID, &f.Bucket, &f.Path, &f.ContentType, &f.Size, &f.SignedURL, &expiresAt, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file asset row: %w", err)
		}
		f.SignedURLExpiresAt = scanNullableTime(expiresAt)
		result = append(result, f)
	}

	return result, rows.Err()
}

// ─── IntegrationAccount ───

func (p *Postgres) CreateIntegrationAccount(ctx context.Context, a *domain.IntegrationAccount) error {
	if a.ID == "" {
		a.ID = newID()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	cred, err := crypto.EncryptCredential(a.Credential, p.encKey)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	query, _, err := p.goqu.Insert(p.tableIntegrationAccts).Rows(goqu.Record{
		"id":          a.ID,
		"user_id":     a.UserID,
		"toolkit":     a.Toolkit,
		"account_ref": a.AccountRef,
		"credential":  cred,
		"status":      a.Status,
		"created_at":  now,
		"updated_at":  now,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert integration account query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create integration account: %w", err)
	}

	return nil
}

func (p *Postgres) GetIntegrationAccount(ctx context.Context, userID, toolkit string) (*domain.IntegrationAccount, error) {
	query, _, err := p.goqu.From(p.tableIntegrationAccts).
		Select("id", "user_id", "toolkit", "account_ref", "credential", "status", "created_at", "updated_at").
		Where(goqu.I("user_id").Eq(userID), goqu.I("toolkit").Eq(toolkit)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get integration account query: %w", err)
	}

	var a domain.IntegrationAccount
	var cred string
	err = p.db.QueryRowContext(ctx, query).Scan(&a.ID, &a.UserID, &a.Toolkit, &a.AccountRef, &cred, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get integration account %q/%q: %w", userID, toolkit, err)
	}

	a.Credential, err = crypto.DecryptCredential(cred, p.encKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}

	return &a, nil
}

func (p *Postgres) ListIntegrationAccounts(ctx context.Context, userID string) ([]domain.IntegrationAccount, error) {
	query, _, err := p.goqu.From(p.tableIntegrationAccts).
		Select("id", "user_id", "toolkit", "account_ref", "credential", "status", "created_at", "updated_at").
		Where(goqu.I("user_id").Eq(userID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list integration accounts query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list integration accounts: %w", err)
	}
	defer rows.Close()

	var result []domain.IntegrationAccount
	for rows.Next() {
		var a domain.IntegrationAccount
		var cred string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Toolkit, &a.AccountRef, &cred, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan integration account row: %w", err)
		}
		a.Credential, err = crypto.DecryptCredential(cred, p.encKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt credential: %w", err)
		}
		result = append(result, a)
	}

	return result, rows.Err()
}

func (p *Postgres) DeleteIntegrationAccount(ctx context.Context, id string) error {
	query, _, err := p.goqu.Delete(p.tableIntegrationAccts).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete integration account query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete integration account %q: %w", id, err)
	}
	return nil
}

// ─── helpers ───

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func scanNullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
