package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rakunlabs/logi"

	"github.com/flowforge/engine/internal/blocks"
	"github.com/flowforge/engine/internal/domain"
	"github.com/flowforge/engine/internal/graph"
)

// ─── Workflow CRUD API ───

type workflowsResponse struct {
	Workflows []domain.Workflow `json:"workflows"`
}

// ListWorkflowsAPI handles GET /api/workflows.
func (s *Server) ListWorkflowsAPI(w http.ResponseWriter, r *http.Request) {
	records, err := s.workflowStore.ListWorkflows(r.Context())
	if err != nil {
		logi.Ctx(r.Context()).Error("list workflows failed", "error", err)
		httpResponse(w, fmt.Sprintf("failed to list workflows: %v", err), http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []domain.Workflow{}
	}

	httpResponseJSON(w, workflowsResponse{Workflows: records}, http.StatusOK)
}

// GetWorkflowAPI handles GET /api/workflows/:id.
func (s *Server) GetWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "workflow id is required", http.StatusBadRequest)
		return
	}

	record, err := s.workflowStore.GetWorkflow(r.Context(), id)
	if err != nil {
		logi.Ctx(r.Context()).Error("get workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}
	if record == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", id), http.StatusNotFound)
		return
	}

	httpResponseJSON(w, record, http.StatusOK)
}

type createWorkflowRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	WebhookSlug string       `json:"webhook_slug"`
	Graph       domain.Graph `json:"graph"`
}

// CreateWorkflowAPI handles POST /api/workflows.
func (s *Server) CreateWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		httpResponse(w, "name is required", http.StatusBadRequest)
		return
	}
	if err := graph.Validate(req.Graph); err != nil {
		httpResponse(w, fmt.Sprintf("invalid graph: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.validateNodeSettings(req.Graph); err != nil {
		httpResponse(w, fmt.Sprintf("invalid graph: %v", err), http.StatusBadRequest)
		return
	}

	// Every workflow is webhook-invocable; an unset slug still gets one so
	// WebhookAPI always has something unguessable to key off of.
	slug := req.WebhookSlug
	if slug == "" {
		slug = uuid.NewString()
	}

	wf := &domain.Workflow{
		Name:        req.Name,
		Description: req.Description,
		WebhookSlug: slug,
		Graph:       req.Graph,
	}
	if err := s.workflowStore.CreateWorkflow(r.Context(), wf); err != nil {
		logi.Ctx(r.Context()).Error("create workflow failed", "name", req.Name, "error", err)
		httpResponse(w, fmt.Sprintf("failed to create workflow: %v", err), http.StatusInternalServerError)
		return
	}

	s.syncCronTriggers(r.Context(), wf)

	httpResponseJSON(w, map[string]any{"id": wf.ID}, http.StatusCreated)
}

// UpdateWorkflowAPI handles PUT /api/workflows/:id.
func (s *Server) UpdateWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "workflow id is required", http.StatusBadRequest)
		return
	}

	existing, err := s.workflowStore.GetWorkflow(r.Context(), id)
	if err != nil {
		logi.Ctx(r.Context()).Error("get workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}
	if existing == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", id), http.StatusNotFound)
		return
	}

	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := graph.Validate(req.Graph); err != nil {
		httpResponse(w, fmt.Sprintf("invalid graph: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.validateNodeSettings(req.Graph); err != nil {
		httpResponse(w, fmt.Sprintf("invalid graph: %v", err), http.StatusBadRequest)
		return
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.WebhookSlug = req.WebhookSlug
	existing.Graph = req.Graph

	if err := s.workflowStore.UpdateWorkflow(r.Context(), existing); err != nil {
		logi.Ctx(r.Context()).Error("update workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to update workflow: %v", err), http.StatusInternalServerError)
		return
	}

	s.syncCronTriggers(r.Context(), existing)

	httpResponseJSON(w, map[string]any{"updated": true}, http.StatusOK)
}

// DeleteWorkflowAPI handles DELETE /api/workflows/:id.
func (s *Server) DeleteWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "workflow id is required", http.StatusBadRequest)
		return
	}

	if err := s.workflowStore.DeleteWorkflow(r.Context(), id); err != nil {
		logi.Ctx(r.Context()).Error("delete workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to delete workflow: %v", err), http.StatusInternalServerError)
		return
	}

	httpResponseJSON(w, map[string]any{"deleted": true}, http.StatusOK)
}

// ValidateGraphAPI handles POST /api/validate-graph.
func (s *Server) ValidateGraphAPI(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Graph domain.Graph `json:"graph"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := graph.Validate(req.Graph); err != nil {
		httpResponse(w, fmt.Sprintf("invalid graph: %v", err), http.StatusBadRequest)
		return
	}

	for _, n := range req.Graph.Nodes {
		if !s.registry.Has(n.Type) {
			httpResponse(w, fmt.Sprintf("unknown node type %q (node %q)", n.Type, n.ID), http.StatusBadRequest)
			return
		}
	}
	if err := s.validateNodeSettings(req.Graph); err != nil {
		httpResponse(w, fmt.Sprintf("invalid graph: %v", err), http.StatusBadRequest)
		return
	}

	httpResponseJSON(w, map[string]any{"valid": true}, http.StatusOK)
}

// validateNodeSettings checks that every node's type is registered and that
// its settings match the type's declared SettingsSchema, raising the same
// InvalidGraph response a structural graph.Validate failure does.
func (s *Server) validateNodeSettings(g domain.Graph) error {
	for _, n := range g.Nodes {
		if !s.registry.Has(n.Type) {
			return fmt.Errorf("unknown node type %q (node %q)", n.Type, n.ID)
		}
		var settings map[string]any
		if len(n.Settings) > 0 {
			if err := json.Unmarshal(n.Settings, &settings); err != nil {
				return fmt.Errorf("node %q: invalid settings: %w", n.ID, err)
			}
		}
		if err := s.registry.ValidateSettings(n.Type, settings); err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
	}
	return nil
}

// syncCronTriggers keeps the CronTrigger store in sync with a workflow's
// trigger.cron nodes, following the same sync-on-save pattern elsewhere
// in this codebase:
// a workflow's trigger nodes are the source of truth, the trigger table is
// a derived index the scheduler reloads from. Non-fatal — the workflow is saved
// either way; failures here only delay the next cron pickup.
func (s *Server) syncCronTriggers(ctx context.Context, wf *domain.Workflow) {
	if s.triggerStore == nil {
		return
	}

	existing, err := s.triggerStore.ListEnabledCronTriggers(ctx)
	if err != nil {
		logi.Ctx(ctx).Error("list cron triggers for sync failed", "workflow_id", wf.ID, "error", err)
		return
	}

	byNodeSchedule := make(map[string]bool)
	for _, n := range wf.Graph.Nodes {
		if n.Type != "trigger.cron" {
			continue
		}
		var settings map[string]any
		if len(n.Settings) > 0 {
			_ = json.Unmarshal(n.Settings, &settings)
		}
		schedule := blocks.GetString(settings, "schedule", "")
		if schedule == "" {
			continue
		}
		byNodeSchedule[schedule] = true
	}

	present := make(map[string]bool)
	for _, t := range existing {
		if t.WorkflowID != wf.ID {
			continue
		}
		present[t.Schedule] = true
		if !byNodeSchedule[t.Schedule] {
			if err := s.triggerStore.DeleteCronTrigger(ctx, t.ID); err != nil {
				logi.Ctx(ctx).Error("delete stale cron trigger failed", "id", t.ID, "error", err)
			}
		}
	}

	for schedule := range byNodeSchedule {
		if present[schedule] {
			continue
		}
		t := &domain.CronTrigger{WorkflowID: wf.ID, Schedule: schedule, Enabled: true}
		if err := s.triggerStore.CreateCronTrigger(ctx, t); err != nil {
			logi.Ctx(ctx).Error("create cron trigger failed", "workflow_id", wf.ID, "schedule", schedule, "error", err)
		}
	}

	if s.scheduler != nil {
		if err := s.scheduler.Reload(); err != nil {
			logi.Ctx(ctx).Error("reload scheduler after trigger sync failed", "error", err)
		}
	}
}
