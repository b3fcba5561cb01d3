package store

import (
	"context"

	"github.com/flowforge/engine/internal/config"
	"github.com/flowforge/engine/internal/domain"
	"github.com/flowforge/engine/internal/store/memory"
	"github.com/flowforge/engine/internal/store/postgres"
)

// StorerClose combines the domain store interfaces with a Close method.
type StorerClose interface {
	domain.WorkflowStore
	domain.TriggerStore
	domain.RunStore
	Close()
}

// New creates a StorerClose based on the given store configuration. A
// Postgres datasource selects the durable backend; otherwise an in-memory
// store is used, suitable for local development and tests.
func New(ctx context.Context, cfg config.Store, encKey []byte) (StorerClose, error) {
	if cfg.Postgres != nil {
		return postgres.New(ctx, cfg.Postgres, encKey)
	}

	return memory.New(), nil
}
