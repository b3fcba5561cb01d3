package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rakunlabs/logi"

	"github.com/flowforge/engine/internal/domain"
)

// ─── Run trigger & read API ───

type runRequest struct {
	StartInput map[string]any `json:"start_input"`
}

// RunWorkflowAPI handles POST /api/workflows/:id/run — a manual trigger.
func (s *Server) RunWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "workflow id is required", http.StatusBadRequest)
		return
	}

	wf, err := s.workflowStore.GetWorkflow(r.Context(), id)
	if err != nil {
		logi.Ctx(r.Context()).Error("get workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}
	if wf == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", id), http.StatusNotFound)
		return
	}

	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	payload, _ := json.Marshal(req.StartInput)

	run := &domain.Run{
		WorkflowID:     wf.ID,
		TriggerType:    "manual",
		TriggerPayload: payload,
	}
	if err := s.dispatchRun(r.Context(), run, wf.Graph); err != nil {
		httpResponse(w, fmt.Sprintf("failed to start run: %v", err), http.StatusInternalServerError)
		return
	}

	httpResponseJSON(w, map[string]any{"id": run.ID}, http.StatusAccepted)
}

type webhookRequest struct {
	Payload map[string]any `json:"payload"`
}

// WebhookAPI handles POST /api/hooks/:slug.
func (s *Server) WebhookAPI(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		httpResponse(w, "webhook slug is required", http.StatusBadRequest)
		return
	}

	wf, err := s.workflowStore.GetWorkflowByWebhookSlug(r.Context(), slug)
	if err != nil {
		logi.Ctx(r.Context()).Error("get workflow by webhook slug failed", "slug", slug, "error", err)
		httpResponse(w, fmt.Sprintf("failed to resolve webhook: %v", err), http.StatusInternalServerError)
		return
	}
	if wf == nil {
		httpResponse(w, fmt.Sprintf("no workflow bound to webhook %q", slug), http.StatusNotFound)
		return
	}

	var req webhookRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	payload, _ := json.Marshal(req.Payload)

	run := &domain.Run{
		WorkflowID:     wf.ID,
		TriggerType:    "webhook",
		TriggerPayload: payload,
	}
	if err := s.dispatchRun(r.Context(), run, wf.Graph); err != nil {
		httpResponse(w, fmt.Sprintf("failed to start run: %v", err), http.StatusInternalServerError)
		return
	}

	httpResponseJSON(w, map[string]any{"id": run.ID}, http.StatusAccepted)
}

// dispatchRun persists the new Run row, then hands it to the engine on its
// own background goroutine — the engine keeps running after this request
// returns.
func (s *Server) dispatchRun(ctx context.Context, run *domain.Run, g domain.Graph) error {
	if err := s.runStore.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	s.engine.Dispatch(run, g)
	return nil
}

// GetRunAPI handles GET /api/runs/:id.
func (s *Server) GetRunAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "run id is required", http.StatusBadRequest)
		return
	}

	run, err := s.runStore.GetRun(r.Context(), id)
	if err != nil {
		logi.Ctx(r.Context()).Error("get run failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get run: %v", err), http.StatusInternalServerError)
		return
	}
	if run == nil {
		httpResponse(w, fmt.Sprintf("run %q not found", id), http.StatusNotFound)
		return
	}

	httpResponseJSON(w, run, http.StatusOK)
}

// ListRunLogsAPI handles GET /api/runs/:id/logs?after_id=N.
func (s *Server) ListRunLogsAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "run id is required", http.StatusBadRequest)
		return
	}

	var afterID int64
	if v := r.URL.Query().Get("after_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpResponse(w, "after_id must be an integer", http.StatusBadRequest)
			return
		}
		afterID = parsed
	}

	logs, err := s.runStore.ListLogs(r.Context(), id, afterID, 0)
	if err != nil {
		logi.Ctx(r.Context()).Error("list run logs failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to list logs: %v", err), http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []domain.LogEntry{}
	}

	httpResponseJSON(w, logs, http.StatusOK)
}

// StreamRunLogsAPI handles GET /api/runs/:id/logs/stream — server-sent
// events of newly appended log entries, polling the store on a short
// interval since the run executor and this HTTP server may be different
// processes sharing only the database.
func (s *Server) StreamRunLogsAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "run id is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpResponse(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var afterID int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logs, err := s.runStore.ListLogs(ctx, id, afterID, 0)
			if err != nil {
				logi.Ctx(ctx).Error("stream run logs failed", "id", id, "error", err)
				continue
			}

			for _, entry := range logs {
				afterID = entry.ID
				writeSSELogEvent(w, entry)
			}
			if len(logs) > 0 {
				flusher.Flush()
			}

			run, err := s.runStore.GetRun(ctx, id)
			if err == nil && run != nil && run.Status != domain.StatusPending && run.Status != domain.StatusRunning {
				writeSSEStatusEvent(w, run)
				flusher.Flush()
				return
			}
		}
	}
}

func writeSSELogEvent(w http.ResponseWriter, entry domain.LogEntry) {
	body, _ := json.Marshal(map[string]any{
		"type":    "log",
		"id":      entry.ID,
		"node_id": entry.NodeID,
		"level":   entry.Level,
		"message": entry.Message,
		"data":    entry.Data,
		"ts":      entry.Ts,
	})
	fmt.Fprintf(w, "data: %s\n\n", body)
}

func writeSSEStatusEvent(w http.ResponseWriter, run *domain.Run) {
	body, _ := json.Marshal(map[string]any{
		"type":   "status",
		"id":     run.ID,
		"status": run.Status,
	})
	fmt.Fprintf(w, "data: %s\n\n", body)
}
