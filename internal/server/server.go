// Package server exposes the run/workflow HTTP surface over
// github.com/rakunlabs/ada: a single ada.Server wrapped in a Server
// struct, a fixed middleware chain (recover, server, cors, requestid,
// log, telemetry), an optional forwardauth gate in front of the API
// group.
package server

import (
	"context"
	"net"

	"github.com/rakunlabs/ada"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"
	"github.com/rakunlabs/logi"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/config"
	"github.com/flowforge/engine/internal/domain"
	"github.com/flowforge/engine/internal/engine"
	"github.com/flowforge/engine/internal/scheduler"
)

// Server wires the HTTP surface to the engine, the stores, and the block
// registry.
type Server struct {
	config config.Server

	server *ada.Server

	workflowStore domain.WorkflowStore
	triggerStore  domain.TriggerStore
	runStore      domain.RunStore

	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	registry  *blocks.Registry
}

func New(cfg config.Server, workflowStore domain.WorkflowStore, triggerStore domain.TriggerStore, runStore domain.RunStore, eng *engine.Engine, sched *scheduler.Scheduler, registry *blocks.Registry) *Server {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)

	s := &Server{
		config:        cfg,
		server:        mux,
		workflowStore: workflowStore,
		triggerStore:  triggerStore,
		runStore:      runStore,
		engine:        eng,
		scheduler:     sched,
		registry:      registry,
	}

	baseGroup := mux.Group(cfg.BasePath)

	if cfg.ForwardAuth != nil {
		logi.Ctx(context.Background()).Info("forward auth enabled", "url", cfg.ForwardAuth.Address)
		baseGroup.Use(mforwardauth.Middleware(mforwardauth.WithConfig(*cfg.ForwardAuth)))
	}

	apiGroup := baseGroup.Group("/api")

	apiGroup.POST("/workflows", s.CreateWorkflowAPI)
	apiGroup.GET("/workflows", s.ListWorkflowsAPI)
	apiGroup.GET("/workflows/*", s.GetWorkflowAPI)
	apiGroup.PUT("/workflows/*", s.UpdateWorkflowAPI)
	apiGroup.DELETE("/workflows/*", s.DeleteWorkflowAPI)

	apiGroup.POST("/validate-graph", s.ValidateGraphAPI)

	apiGroup.POST("/workflows/*/run", s.RunWorkflowAPI)

	apiGroup.POST("/hooks/*", s.WebhookAPI)

	apiGroup.GET("/runs/*/logs/stream", s.StreamRunLogsAPI)
	apiGroup.GET("/runs/*/logs", s.ListRunLogsAPI)
	apiGroup.GET("/runs/*", s.GetRunAPI)

	apiGroup.GET("/blocks", s.ListBlocksAPI)
	apiGroup.GET("/block-specs", s.ListBlocksAPI)

	return s
}

func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.config.Host, s.config.Port))
}
