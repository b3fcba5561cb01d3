package main

import (
	"context"
	"fmt"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/flowforge/engine/internal/blocks"
	_ "github.com/flowforge/engine/internal/blocks/agent"
	"github.com/flowforge/engine/internal/blocks/std"
	_ "github.com/flowforge/engine/internal/blocks/tool"
	"github.com/flowforge/engine/internal/cluster"
	"github.com/flowforge/engine/internal/config"
	"github.com/flowforge/engine/internal/crypto"
	"github.com/flowforge/engine/internal/engine"
	"github.com/flowforge/engine/internal/objectstore"
	"github.com/flowforge/engine/internal/provider"
	"github.com/flowforge/engine/internal/scheduler"
	"github.com/flowforge/engine/internal/server"
	"github.com/flowforge/engine/internal/store"
)

var (
	name    = "flowforge"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

// ///////////////////////////////////////////////////////////////////

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var encKey []byte
	if cfg.Store.EncryptionKey != "" {
		encKey, err = crypto.DeriveKey(cfg.Store.EncryptionKey)
		if err != nil {
			return fmt.Errorf("derive encryption key: %w", err)
		}
	}

	st, err := store.New(ctx, cfg.Store, encKey)
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	defer st.Close()

	objStore, err := objectstore.New(
		cfg.Store.ObjectStore.Dir,
		[]byte(cfg.Store.ObjectStore.SigningKey),
		cfg.Store.ObjectStore.BaseURL,
		cfg.Store.ObjectStore.URLTTL,
	)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	lookup, err := provider.NewLookup(cfg.Providers)
	if err != nil {
		return fmt.Errorf("build provider lookup: %w", err)
	}

	registry := blocks.Global()

	httpClient, err := std.NewOutboundClient(true)
	if err != nil {
		return fmt.Errorf("build outbound HTTP client: %w", err)
	}

	eng := engine.New(ctx, st, registry,
		engine.WithObjectStore(objStore),
		engine.WithProviderLookup(lookup),
		engine.WithHTTPClient(httpClient),
	)

	cl, err := cluster.New(cfg.Server.Alan)
	if err != nil {
		return fmt.Errorf("start cluster: %w", err)
	}
	if cl != nil {
		go func() {
			// Key rotation broadcasts are received here, but taking a new
			// key live would mean rebuilding the store's cipher mid-process;
			// out of scope until an operator-triggered rotation path exists.
			if err := cl.Start(ctx, func([]byte) {}); err != nil {
				logi.Ctx(ctx).Error("cluster peer discovery stopped", "error", err)
			}
		}()
		defer cl.Stop()
	}

	sched := scheduler.New(st, st, st, eng, cl)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := server.New(cfg.Server, st, st, st, eng, sched, registry)

	logi.Ctx(ctx).Info("starting server", "host", cfg.Server.Host, "port", cfg.Server.Port)

	return srv.Start(ctx)
}
