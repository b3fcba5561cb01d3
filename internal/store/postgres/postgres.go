// Package postgres implements domain.WorkflowStore, domain.TriggerStore,
// and domain.RunStore against PostgreSQL using goqu as a query builder:
// a single *sql.DB wrapped in a *goqu.Database, table identifiers
// resolved once at construction with a configurable prefix, and
// migrations run via rakunlabs/muz before the connection is handed back
// to the caller.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/oklog/ulid/v2"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/flowforge/engine/internal/config"
)

var (
	ConnMaxLifetime = 15 * time.Minute
	MaxIdleConns    = 3
	MaxOpenConns    = 3

	DefaultTablePrefix = "ff_"
)

// Postgres persists the engine's full domain model: workflows and their
// versions, cron triggers, runs, node runs, logs, file assets, and
// integration account credentials.
type Postgres struct {
	db   *sql.DB
	goqu *goqu.Database

	tableWorkflows         exp.IdentifierExpression
	tableWorkflowVersions  exp.IdentifierExpression
	tableCronTriggers      exp.IdentifierExpression
	tableRuns              exp.IdentifierExpression
	tableNodeRuns          exp.IdentifierExpression
	tableLogs              exp.IdentifierExpression
	tableFileAssets        exp.IdentifierExpression
	tableIntegrationAccts  exp.IdentifierExpression

	encKey []byte
}

func New(ctx context.Context, cfg *config.StorePostgres, encKey []byte) (*Postgres, error) {
	if cfg == nil {
		return nil, errors.New("postgres configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("postgres datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		tablePrefix = *cfg.TablePrefix
	}

	migrate := cfg.Migrate
	if migrate.Table == "" {
		migrate.Table = "migrations"
	}
	if migrate.Datasource == "" {
		migrate.Datasource = cfg.Datasource
	}
	if migrate.Schema == "" {
		migrate.Schema = cfg.Schema
	}
	migrate.Table = tablePrefix + migrate.Table
	if migrate.Values == nil {
		migrate.Values = make(map[string]string)
	}
	migrate.Values["TABLE_PREFIX"] = tablePrefix

	db, err := sql.Open("pgx", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := MigrateDB(ctx, &migrate, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store postgres: %w", err)
	}

	if cfg.Schema != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", cfg.Schema)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set search_path: %w", err)
		}
	}

	if cfg.ConnMaxLifetime != nil {
		ConnMaxLifetime = *cfg.ConnMaxLifetime
	}
	if cfg.MaxIdleConns != nil {
		MaxIdleConns = *cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns != nil {
		MaxOpenConns = *cfg.MaxOpenConns
	}

	db.SetConnMaxLifetime(ConnMaxLifetime)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetMaxOpenConns(MaxOpenConns)

	slog.Info("connected to store postgres")

	dbGoqu := goqu.New("postgres", db)

	return &Postgres{
		db:                    db,
		goqu:                  dbGoqu,
		tableWorkflows:        goqu.T(tablePrefix + "workflows"),
		tableWorkflowVersions: goqu.T(tablePrefix + "workflow_versions"),
		tableCronTriggers:     goqu.T(tablePrefix + "cron_triggers"),
		tableRuns:             goqu.T(tablePrefix + "runs"),
		tableNodeRuns:         goqu.T(tablePrefix + "node_runs"),
		tableLogs:             goqu.T(tablePrefix + "logs"),
		tableFileAssets:       goqu.T(tablePrefix + "file_assets"),
		tableIntegrationAccts: goqu.T(tablePrefix + "integration_accounts"),
		encKey:                encKey,
	}, nil
}

func (p *Postgres) Close() {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			slog.Error("close store postgres connection", "error", err)
		}
	}
}

func newID() string { return ulid.Make().String() }

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func scanNullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
