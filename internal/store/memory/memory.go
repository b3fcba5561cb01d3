// Package memory implements domain.WorkflowStore, domain.TriggerStore and
// domain.RunStore in process memory: a single mutex-guarded struct of
// maps, sorted slices returned from List* methods, data that does not
// survive process restart. Used for tests and zero-config local runs.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/flowforge/engine/internal/domain"
)

// Memory is an in-memory implementation of the store interfaces. Data does
// not survive process restarts.
type Memory struct {
	mu sync.RWMutex

	workflows        map[string]domain.Workflow
	workflowVersions map[string]domain.WorkflowVersion // id -> version
	cronTriggers     map[string]domain.CronTrigger

	runs      map[string]domain.Run
	nodeRuns  map[string][]domain.NodeRun // run_id -> node runs, insertion order
	logs      []domain.LogEntry
	nextLogID int64

	fileAssets          map[string][]domain.FileAsset // run_id -> assets
	integrationAccounts map[string]domain.IntegrationAccount
}

func New() *Memory {
	slog.Info("using in-memory store (data will not persist across restarts)")

	return &Memory{
		workflows:           make(map[string]domain.Workflow),
		workflowVersions:    make(map[string]domain.WorkflowVersion),
		cronTriggers:        make(map[string]domain.CronTrigger),
		runs:                make(map[string]domain.Run),
		nodeRuns:            make(map[string][]domain.NodeRun),
		fileAssets:          make(map[string][]domain.FileAsset),
		integrationAccounts: make(map[string]domain.IntegrationAccount),
		nextLogID:           1,
	}
}

func (m *Memory) Close() {}

func newID() string { return ulid.Make().String() }

// ─── Workflow ───

func (m *Memory) GetWorkflow(_ context.Context, id string) (*domain.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workflows[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *Memory) GetWorkflowByWebhookSlug(_ context.Context, slug string) (*domain.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.workflows {
		if w.WebhookSlug == slug {
			wCopy := w
			return &wCopy, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListWorkflows(_ context.Context) ([]domain.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Workflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

func (m *Memory) CreateWorkflow(_ context.Context, w *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.ID == "" {
		w.ID = newID()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	m.workflows[w.ID] = *w

	return nil
}

func (m *Memory) UpdateWorkflow(_ context.Context, w *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workflows[w.ID]; !ok {
		return errors.New("workflow not found")
	}

	w.UpdatedAt = time.Now().UTC()
	m.workflows[w.ID] = *w

	return nil
}

func (m *Memory) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.workflows, id)

	return nil
}

func (m *Memory) CreateWorkflowVersion(_ context.Context, v *domain.WorkflowVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v.ID == "" {
		v.ID = newID()
	}
	v.CreatedAt = time.Now().UTC()

	m.workflowVersions[v.ID] = *v

	return nil
}

func (m *Memory) GetWorkflowVersion(_ context.Context, id string) (*domain.WorkflowVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.workflowVersions[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// ─── CronTrigger ───

func (m *Memory) ListEnabledCronTriggers(_ context.Context) ([]domain.CronTrigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.CronTrigger
	for _, t := range m.cronTriggers {
		if t.Enabled {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

func (m *Memory) CreateCronTrigger(_ context.Context, t *domain.CronTrigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = newID()
	}
	m.cronTriggers[t.ID] = *t

	return nil
}

func (m *Memory) UpdateCronTrigger(_ context.Context, t *domain.CronTrigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cronTriggers[t.ID]; !ok {
		return errors.New("cron trigger not found")
	}
	m.cronTriggers[t.ID] = *t

	return nil
}

func (m *Memory) DeleteCronTrigger(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cronTriggers, id)

	return nil
}

// ─── Run ───

func (m *Memory) CreateRun(_ context.Context, r *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = newID()
	}
	r.CreatedAt = time.Now().UTC()
	if r.Status == "" {
		r.Status = domain.StatusPending
	}

	m.runs[r.ID] = *r

	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) ListRuns(_ context.Context, workflowID string, limit int) ([]domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	result := make([]domain.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if workflowID != "" && r.WorkflowID != workflowID {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (m *Memory) UpdateRun(_ context.Context, r *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[r.ID]; !ok {
		return errors.New("run not found")
	}
	m.runs[r.ID] = *r

	return nil
}

// ─── NodeRun ───

func (m *Memory) CreateNodeRun(_ context.Context, nr *domain.NodeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if nr.ID == "" {
		nr.ID = newID()
	}
	m.nodeRuns[nr.RunID] = append(m.nodeRuns[nr.RunID], *nr)

	return nil
}

func (m *Memory) UpdateNodeRun(_ context.Context, nr *domain.NodeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := m.nodeRuns[nr.RunID]
	for i, existing := range runs {
		if existing.NodeID == nr.NodeID {
			runs[i] = *nr
			return nil
		}
	}

	return errors.New("node run not found")
}

func (m *Memory) ListNodeRuns(_ context.Context, runID string) ([]domain.NodeRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := m.nodeRuns[runID]
	result := make([]domain.NodeRun, len(runs))
	copy(result, runs)

	return result, nil
}

// ─── LogEntry ───

func (m *Memory) AppendLog(_ context.Context, entry *domain.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	entry.ID = m.nextLogID
	m.nextLogID++

	m.logs = append(m.logs, *entry)

	return nil
}

func (m *Memory) ListLogs(_ context.Context, runID string, afterID int64, limit int) ([]domain.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 200
	}

	var result []domain.LogEntry
	for _, e := range m.logs {
		if e.RunID != runID || e.ID <= afterID {
			continue
		}
		result = append(result, e)
		if len(result) >= limit {
			break
		}
	}

	return result, nil
}

// ─── FileAsset ───

func (m *Memory) CreateFileAsset(_ context.Context, f *domain.FileAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.ID == "" {
		f.ID = newID()
	}
	f.CreatedAt = time.Now().UTC()

	m.fileAssets[f.RunID] = append(m.fileAssets[f.RunID], *f)

	return nil
}

func (m *Memory) ListFileAssets(_ context.Context, runID string) ([]domain.FileAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	assets := m.fileAssets[runID]
	result := make([]domain.FileAsset, len(assets))
	copy(result, assets)

	return result, nil
}

// ─── IntegrationAccount ───

func (m *Memory) CreateIntegrationAccount(_ context.Context, a *domain.IntegrationAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = newID()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	m.integrationAccounts[a.ID] = *a

	return nil
}

func (m *Memory) GetIntegrationAccount(_ context.Context, userID, toolkit string) (*domain.IntegrationAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.integrationAccounts {
		if a.UserID == userID && a.Toolkit == toolkit {
			aCopy := a
			return &aCopy, nil
		}
	}

	return nil, nil
}

func (m *Memory) ListIntegrationAccounts(_ context.Context, userID string) ([]domain.IntegrationAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.IntegrationAccount
	for _, a := range m.integrationAccounts {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Toolkit < result[j].Toolkit })

	return result, nil
}

func (m *Memory) DeleteIntegrationAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.integrationAccounts, id)

	return nil
}
