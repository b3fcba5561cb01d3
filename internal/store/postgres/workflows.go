package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/flowforge/engine/internal/domain"
)

type workflowRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	WebhookSlug sql.NullString  `db:"webhook_slug"`
	Graph       json.RawMessage `db:"graph"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

var workflowColumns = []any{"id", "name", "description", "webhook_slug", "graph", "created_at", "updated_at"}

func (p *Postgres) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	query, _, err := p.goqu.From(p.tableWorkflows).
		Select(workflowColumns...).
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get workflow query: %w", err)
	}

	var row workflowRow
	err = p.db.QueryRowContext(ctx, query).Scan(&row.ID, &row.Name, &row.Description, &row.WebhookSlug, &row.Graph, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow %q: %w", id, err)
	}

	return workflowRowToDomain(row)
}

func (p *Postgres) GetWorkflowByWebhookSlug(ctx context.Context, slug string) (*domain.Workflow, error) {
	query, _, err := p.goqu.From(p.tableWorkflows).
		Select(workflowColumns...).
		Where(goqu.I("webhook_slug").Eq(slug)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get workflow by slug query: %w", err)
	}

	var row workflowRow
	err = p.db.QueryRowContext(ctx, query).Scan(&row.ID, &row.Name, &row.Description, &row.WebhookSlug, &row.Graph, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow by webhook slug %q: %w", slug, err)
	}

	return workflowRowToDomain(row)
}

func (p *Postgres) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	query, _, err := p.goqu.From(p.tableWorkflows).
		Select(workflowColumns...).
		Order(goqu.I("name").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list workflows query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var result []domain.Workflow
	for rows.Next() {
		var row workflowRow
		if err := rows.Scan(&row.ID, &row.Name, &row.Description, &row.WebhookSlug, &row.Graph, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow row: %w", err)
		}
		wf, err := workflowRowToDomain(row)
		if err != nil {
			return nil, err
		}
		result = append(result, *wf)
	}

	return result, rows.Err()
}

func (p *Postgres) CreateWorkflow(ctx context.Context, w *domain.Workflow) error {
	graphJSON, err := json.Marshal(w.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	if w.ID == "" {
		w.ID = newID()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	query, _, err := p.goqu.Insert(p.tableWorkflows).Rows(
		goqu.Record{
			"id":           w.ID,
			"name":         w.Name,
			"description":  w.Description,
			"webhook_slug": nullableSlug(w.WebhookSlug),
			"graph":        graphJSON,
			"created_at":   now,
			"updated_at":   now,
		},
	).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert workflow query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}

	return nil
}

func (p *Postgres) UpdateWorkflow(ctx context.Context, w *domain.Workflow) error {
	graphJSON, err := json.Marshal(w.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	w.UpdatedAt = time.Now().UTC()

	query, _, err := p.goqu.Update(p.tableWorkflows).Set(
		goqu.Record{
			"name":         w.Name,
			"description":  w.Description,
			"webhook_slug": nullableSlug(w.WebhookSlug),
			"graph":        graphJSON,
			"updated_at":   w.UpdatedAt,
		},
	).Where(goqu.I("id").Eq(w.ID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build update workflow query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("update workflow %q: %w", w.ID, err)
	}

	return nil
}

func (p *Postgres) DeleteWorkflow(ctx context.Context, id string) error {
	query, _, err := p.goqu.Delete(p.tableWorkflows).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete workflow query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete workflow %q: %w", id, err)
	}
	return nil
}

func (p *Postgres) CreateWorkflowVersion(ctx context.Context, v *domain.WorkflowVersion) error {
	graphJSON, err := json.Marshal(v.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	if v.ID == "" {
		v.ID = newID()
	}
	v.CreatedAt = time.Now().UTC()

	query, _, err := p.goqu.Insert(p.tableWorkflowVersions).Rows(
		goqu.Record{
			"id":          v.ID,
			"workflow_id": v.WorkflowID,
			"graph":       graphJSON,
			"created_at":  v.CreatedAt,
		},
	).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert workflow version query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create workflow version: %w", err)
	}

	return nil
}

func (p *Postgres) GetWorkflowVersion(ctx context.Context, id string) (*domain.WorkflowVersion, error) {
	query, _, err := p.goqu.From(p.tableWorkflowVersions).
		Select("id", "workflow_id", "graph", "created_at").
		Where(goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get workflow version query: %w", err)
	}

	var id2, workflowID string
	var graph json.RawMessage
	var createdAt time.Time
	err = p.db.QueryRowContext(ctx, query).Scan(&id2, &workflowID, &graph, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow version %q: %w", id, err)
	}

	var g domain.Graph
	if err := json.Unmarshal(graph, &g); err != nil {
		return nil, fmt.Errorf("unmarshal graph for version %q: %w", id, err)
	}

	return &domain.WorkflowVersion{ID: id2, WorkflowID: workflowID, Graph: g, CreatedAt: createdAt}, nil
}

func workflowRowToDomain(row workflowRow) (*domain.Workflow, error) {
	var g domain.Graph
	if err := json.Unmarshal(row.Graph, &g); err != nil {
		return nil, fmt.Errorf("unmarshal graph for workflow %q: %w", row.ID, err)
	}

	slug := ""
	if row.WebhookSlug.Valid {
		slug = row.WebhookSlug.String
	}

	return &domain.Workflow{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		WebhookSlug: slug,
		Graph:       g,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func nullableSlug(slug string) any {
	if slug == "" {
		return nil
	}
	return slug
}
