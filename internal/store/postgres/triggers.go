package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/flowforge/engine/internal/domain"
)

type cronTriggerRow struct {
	ID         string         `db:"id"`
	WorkflowID string         `db:"workflow_id"`
	VersionID  sql.NullString `db:"version_id"`
	Schedule   string         `db:"schedule"`
	Enabled    bool           `db:"enabled"`
}

var cronTriggerColumns = []any{"id", "workflow_id", "version_id", "schedule", "enabled"}

func (p *Postgres) ListEnabledCronTriggers(ctx context.Context) ([]domain.CronTrigger, error) {
	query, _, err := p.goqu.From(p.tableCronTriggers).
		Select(cronTriggerColumns...).
		Where(goqu.I("enabled").Eq(true)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list enabled cron triggers query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enabled cron triggers: %w", err)
	}
	defer rows.Close()

	var result []domain.CronTrigger
	for rows.Next() {
		var row cronTriggerRow
		if err := rows.Scan(&row.ID, &row.WorkflowID, &row.VersionID, &row.Schedule, &row.Enabled); err != nil {
			return nil, fmt.Errorf("scan cron trigger row: %w", err)
		}
		result = append(result, cronTriggerRowToDomain(row))
	}

	return result, rows.Err()
}

func (p *Postgres) CreateCronTrigger(ctx context.Context, t *domain.CronTrigger) error {
	if t.ID == "" {
		t.ID = newID()
	}

	query, _, err := p.goqu.Insert(p.tableCronTriggers).Rows(
		goqu.Record{
			"id":          t.ID,
			"workflow_id": t.WorkflowID,
			"version_id":  nullableString(t.VersionID),
			"schedule":    t.Schedule,
			"enabled":     t.Enabled,
		},
	).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert cron trigger query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create cron trigger: %w", err)
	}

	return nil
}

func (p *Postgres) UpdateCronTrigger(ctx context.Context, t *domain.CronTrigger) error {
	query, _, err := p.goqu.Update(p.tableCronTriggers).Set(
		goqu.Record{
			"workflow_id": t.WorkflowID,
			"version_id":  nullableString(t.VersionID),
			"schedule":    t.Schedule,
			"enabled":     t.Enabled,
		},
	).Where(goqu.I("id").Eq(t.ID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build update cron trigger query: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("update cron trigger %q: %w", t.ID, err)
	}

	return nil
}

func (p *Postgres) DeleteCronTrigger(ctx context.Context, id string) error {
	query, _, err := p.goqu.Delete(p.tableCronTriggers).Where(goqu.I("id").Eq(id)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete cron trigger query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete cron trigger %q: %w", id, err)
	}
	return nil
}

func cronTriggerRowToDomain(row cronTriggerRow) domain.CronTrigger {
	return domain.CronTrigger{
		ID:         row.ID,
		WorkflowID: row.WorkflowID,
		VersionID:  scanNullableString(row.VersionID),
		Schedule:   row.Schedule,
		Enabled:    row.Enabled,
	}
}
