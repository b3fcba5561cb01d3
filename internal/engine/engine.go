// Package engine executes a Run: it walks the workflow graph in
// topological order, builds each node's input from upstream outputs and
// the run's trigger payload, invokes the block registry, and persists a
// NodeRun per node. A node's failure halts the run immediately —
// completed upstream outputs are kept, the failing node's own output is
// discarded — matching execute_run()'s exact control flow: persist error,
// commit, log, then propagate the exception so the outer handler marks the
// run failed and stops the loop.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rakunlabs/logi"
	"github.com/worldline-go/klient"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/domain"
	"github.com/flowforge/engine/internal/graph"
	"github.com/flowforge/engine/internal/objectstore"
	"github.com/flowforge/engine/internal/provider"
)

// Engine runs workflow graphs against a RunStore. bgCtx is a long-lived
// context (cancelled only on process shutdown) that Dispatch derives
// background run contexts from, so a run outlives the request or cron
// tick that triggered it.
type Engine struct {
	store    domain.RunStore
	registry *blocks.Registry
	bgCtx    context.Context

	objStore   *objectstore.Store
	provider   provider.Lookup
	httpClient *klient.Client

	// tracker holds each in-flight run's cancel func, keyed by run ID.
	// Run-level cancellation has no HTTP surface yet, but the plumbing is
	// kept so an operator-level stop is at least possible in-process.
	tracker sync.Map // run ID -> context.CancelFunc
}

// Option configures optional capabilities an Engine injects into every
// node it runs. Expressed as functional options (rather than extra New
// parameters) so existing 3-arg call sites keep compiling unchanged.
type Option func(*Engine)

// WithObjectStore installs the object store file.save nodes write through.
func WithObjectStore(s *objectstore.Store) Option {
	return func(e *Engine) { e.objStore = s }
}

// WithProviderLookup installs the LLM provider resolver llm.simple and
// agent.react nodes call through.
func WithProviderLookup(l provider.Lookup) Option {
	return func(e *Engine) { e.provider = l }
}

// WithHTTPClient installs the shared outbound HTTP client http.request,
// web.get, and tool.http_request nodes call through.
func WithHTTPClient(c *klient.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// New creates an Engine backed by store and registry. bgCtx should be a
// context tied to process lifetime, not to any single request.
func New(bgCtx context.Context, store domain.RunStore, registry *blocks.Registry, opts ...Option) *Engine {
	e := &Engine{bgCtx: bgCtx, store: store, registry: registry}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// capabilities builds the run-scoped capability bundle for a single node:
// the HTTP client, object store, and provider lookup wired into this
// Engine, plus a tool runner that re-enters the registry and a log
// closure that appends through this run's log stream — the seam blocks
// reach infrastructure through instead of mutable package-level globals.
func (e *Engine) capabilities(ctx context.Context, runID, nodeID string) blocks.Capabilities {
	return blocks.Capabilities{
		HTTP:     e.httpClient,
		Store:    e.objStore,
		Provider: e.provider,
		ToolRunner: func(ctx context.Context, typeName string, in blocks.Input) (blocks.Output, error) {
			return e.registry.Run(ctx, typeName, in)
		},
		Log: func(message string, data map[string]any) {
			e.log(ctx, runID, nodeID, domain.LogInfo, message, data)
		},
	}
}

// Dispatch starts a run on its own goroutine against the engine's
// long-lived background context, independent of parentCtx's lifetime — a
// run must keep executing after the HTTP request or cron tick that
// triggered it returns. Only process shutdown stops it mid-run.
//
// Returns immediately; the run executes asynchronously. Use Execute
// directly for synchronous callers (tests, a "run and wait" CLI mode).
func (e *Engine) Dispatch(run *domain.Run, g domain.Graph) {
	ctx, cancel := context.WithCancel(e.bgCtx)
	e.tracker.Store(run.ID, cancel)

	go func() {
		defer func() {
			e.tracker.Delete(run.ID)
			cancel()
		}()
		if err := e.Execute(ctx, run, g); err != nil {
			logi.Ctx(e.bgCtx).Error("run execution ended with error", "run_id", run.ID, "error", err)
		}
	}()
}

// Cancel stops an in-flight run by ID, if one is tracked. Returns false if
// no such run is currently running (already finished, or never dispatched
// through this engine instance).
func (e *Engine) Cancel(runID string) bool {
	v, ok := e.tracker.Load(runID)
	if !ok {
		return false
	}
	v.(context.CancelFunc)()
	return true
}

// Execute runs a single Run to completion (success or failure) and
// persists every state transition along the way. A node failure is
// recorded on the Run/NodeRun records and also returned, wrapped with the
// node's ID and type; infrastructure failures (store unavailable, graph
// invalid) are returned as well.
func (e *Engine) Execute(ctx context.Context, run *domain.Run, g domain.Graph) error {
	now := time.Now()
	run.Status = domain.StatusRunning
	run.StartedAt = &now
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	order, err := graph.Toposort(g)
	if err != nil {
		return e.failRun(ctx, run, nil, fmt.Errorf("invalid graph: %w", err))
	}

	parents, _ := graph.ParentChildMaps(g)
	toolChildren := graph.ToolChildren(g)
	nodesByID := make(map[string]domain.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodesByID[n.ID] = n
	}

	var trigger map[string]any
	if len(run.TriggerPayload) > 0 {
		_ = json.Unmarshal(run.TriggerPayload, &trigger)
	}

	outputs := make(map[string]map[string]any, len(g.Nodes))

	for _, nodeID := range order {
		node, ok := nodesByID[nodeID]
		if !ok {
			continue
		}

		// Tool nodes are never scheduled in the main pass — they only run
		// when an owning agent node invokes them during its ReAct loop.
		if isToolType(node.Type) {
			e.log(ctx, run.ID, nodeID, domain.LogInfo, "skipping tool node in main execution pass", nil)
			continue
		}

		upstream := make(map[string]any, len(parents[nodeID]))
		for _, pid := range parents[nodeID] {
			if out, ok := outputs[pid]; ok {
				upstream[pid] = out
			}
		}

		var settings map[string]any
		if len(node.Settings) > 0 {
			_ = json.Unmarshal(node.Settings, &settings)
		}

		in := blocks.Input{
			Settings: settings,
			Upstream: upstream,
			Trigger:  trigger,
			NodeID:   nodeID,
			Caps:     e.capabilities(ctx, run.ID, nodeID),
		}

		if isAgentType(node.Type) {
			in.DerivedTools = e.resolveToolSpecs(nodesByID, toolChildren[nodeID])
		}

		nr := &domain.NodeRun{
			RunID:    run.ID,
			NodeID:   nodeID,
			NodeType: node.Type,
			Status:   domain.StatusRunning,
		}
		startedAt := time.Now()
		nr.StartedAt = &startedAt
		if err := e.store.CreateNodeRun(ctx, nr); err != nil {
			return e.failRun(ctx, run, outputs, fmt.Errorf("persist node run %q: %w", nodeID, err))
		}

		out, runErr := e.registry.Run(ctx, node.Type, in)

		finishedAt := time.Now()
		nr.FinishedAt = &finishedAt

		if runErr != nil {
			nr.Status = domain.StatusFailed
			nr.Error, _ = json.Marshal(map[string]any{"error": runErr.Error()})
			if uerr := e.store.UpdateNodeRun(ctx, nr); uerr != nil {
				logi.Ctx(ctx).Error("failed to persist node error", "node_id", nodeID, "error", uerr)
			}
			e.log(ctx, run.ID, nodeID, domain.LogError, fmt.Sprintf("node %s failed: %v", nodeID, runErr), nil)

			// Fail-stop: this node's failure halts the run. Outputs already
			// collected from earlier nodes are preserved in `outputs`, but
			// the run itself is marked failed and the loop stops here.
			return e.failRun(ctx, run, outputs, fmt.Errorf("node %q (%s): %w", nodeID, node.Type, runErr))
		}

		nr.Status = domain.StatusSucceeded
		nr.Output, _ = json.Marshal(out.Data)
		if err := e.store.UpdateNodeRun(ctx, nr); err != nil {
			return e.failRun(ctx, run, outputs, fmt.Errorf("persist node success %q: %w", nodeID, err))
		}
		e.log(ctx, run.ID, nodeID, domain.LogInfo, fmt.Sprintf("finished node %s", nodeID), nil)

		outputs[nodeID] = out.Data
	}

	return e.succeedRun(ctx, run, outputs)
}

func (e *Engine) resolveToolSpecs(nodesByID map[string]domain.Node, toolNodeIDs []string) []blocks.ToolSpec {
	specs := make([]blocks.ToolSpec, 0, len(toolNodeIDs))
	for _, id := range toolNodeIDs {
		n, ok := nodesByID[id]
		if !ok {
			continue
		}
		var settings map[string]any
		if len(n.Settings) > 0 {
			_ = json.Unmarshal(n.Settings, &settings)
		}
		specs = append(specs, blocks.ToolSpec{
			ID:          n.ID,
			Name:        toolName(n, settings),
			Type:        n.Type,
			Settings:    settings,
			InputSchema: blocks.GetMap(settings, "input_schema"),
		})
	}
	return specs
}

// toolName derives the name an agent addresses a tool by: an explicit
// "name" setting if present, otherwise the node ID.
func toolName(n domain.Node, settings map[string]any) string {
	if name := blocks.GetString(settings, "name", ""); name != "" {
		return name
	}
	return n.ID
}

func (e *Engine) succeedRun(ctx context.Context, run *domain.Run, outputs map[string]map[string]any) error {
	now := time.Now()
	run.Status = domain.StatusSucceeded
	run.FinishedAt = &now
	run.Outputs, _ = json.Marshal(outputs)
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark run succeeded: %w", err)
	}
	e.log(ctx, run.ID, "", domain.LogInfo, "run succeeded", nil)
	return nil
}

func (e *Engine) failRun(ctx context.Context, run *domain.Run, outputs map[string]map[string]any, cause error) error {
	now := time.Now()
	run.Status = domain.StatusFailed
	run.FinishedAt = &now
	run.Error = cause.Error()
	if len(outputs) > 0 {
		run.Outputs, _ = json.Marshal(outputs)
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		logi.Ctx(ctx).Error("failed to persist run failure", "run_id", run.ID, "error", err)
	}
	e.log(ctx, run.ID, "", domain.LogError, fmt.Sprintf("run failed: %v", cause), nil)
	return cause
}

func (e *Engine) log(ctx context.Context, runID, nodeID string, level domain.LogLevel, message string, data map[string]any) {
	entry := &domain.LogEntry{
		RunID:   runID,
		NodeID:  nodeID,
		Level:   level,
		Message: message,
		Ts:      time.Now(),
	}
	if data != nil {
		entry.Data, _ = json.Marshal(data)
	}
	if err := e.store.AppendLog(ctx, entry); err != nil {
		logi.Ctx(ctx).Error("failed to append log entry", "run_id", runID, "error", err)
	}
}

func isToolType(t string) bool {
	return len(t) >= 5 && t[:5] == "tool."
}

func isAgentType(t string) bool {
	return len(t) >= 6 && t[:6] == "agent."
}
