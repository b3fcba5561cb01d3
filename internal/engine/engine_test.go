package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/flowforge/engine/internal/blocks"
	_ "github.com/flowforge/engine/internal/blocks/std"
	"github.com/flowforge/engine/internal/domain"
	"github.com/flowforge/engine/internal/engine"
)

func init() {
	blocks.Register("test.boom", func(map[string]any) (blocks.Block, error) {
		return boomBlock{}, nil
	})
}

type boomBlock struct{}

func (boomBlock) Kind() blocks.Kind                { return blocks.KindExecutor }
func (boomBlock) ToolCompatible() bool              { return false }
func (boomBlock) Extras() map[string]any            { return nil }
func (boomBlock) SettingsSchema() map[string]any    { return nil }
func (boomBlock) Run(context.Context, blocks.Input) (blocks.Output, error) {
	return blocks.Output{}, blocks.DependencyError(errors.New("boom"))
}

// memStore is a minimal in-memory domain.RunStore sufficient for exercising
// the engine's state transitions in tests.
type memStore struct {
	mu       sync.Mutex
	runs     map[string]*domain.Run
	nodeRuns []domain.NodeRun
	logs     []domain.LogEntry
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*domain.Run)}
}

func (s *memStore) CreateRun(_ context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
	return nil
}

func (s *memStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func (s *memStore) ListRuns(context.Context, string, int) ([]domain.Run, error) { return nil, nil }

func (s *memStore) UpdateRun(_ context.Context, r *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
	return nil
}

func (s *memStore) CreateNodeRun(_ context.Context, nr *domain.NodeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeRuns = append(s.nodeRuns, *nr)
	return nil
}

func (s *memStore) UpdateNodeRun(_ context.Context, nr *domain.NodeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.nodeRuns {
		if s.nodeRuns[i].NodeID == nr.NodeID && s.nodeRuns[i].RunID == nr.RunID {
			s.nodeRuns[i] = *nr
			return nil
		}
	}
	return nil
}

func (s *memStore) ListNodeRuns(_ context.Context, runID string) ([]domain.NodeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NodeRun
	for _, nr := range s.nodeRuns {
		if nr.RunID == runID {
			out = append(out, nr)
		}
	}
	return out, nil
}

func (s *memStore) AppendLog(_ context.Context, entry *domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.logs) + 1)
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *memStore) ListLogs(_ context.Context, runID string, afterID int64, limit int) ([]domain.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LogEntry
	for _, l := range s.logs {
		if l.RunID == runID && l.ID > afterID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) CreateFileAsset(context.Context, *domain.FileAsset) error { return nil }
func (s *memStore) ListFileAssets(context.Context, string) ([]domain.FileAsset, error) {
	return nil, nil
}

func (s *memStore) CreateIntegrationAccount(context.Context, *domain.IntegrationAccount) error {
	return nil
}
func (s *memStore) GetIntegrationAccount(context.Context, string, string) (*domain.IntegrationAccount, error) {
	return nil, errors.New("not found")
}
func (s *memStore) ListIntegrationAccounts(context.Context, string) ([]domain.IntegrationAccount, error) {
	return nil, nil
}
func (s *memStore) DeleteIntegrationAccount(context.Context, string) error { return nil }

func TestExecuteRunsNodesInOrderAndSucceeds(t *testing.T) {
	store := newMemStore()
	e := engine.New(context.Background(), store, blocks.Global())

	g := domain.Graph{
		Nodes: []domain.Node{
			{ID: "start1", Type: "start"},
			{ID: "show1", Type: "show"},
		},
		Edges: []domain.Edge{{ID: "e1", FromNode: "start1", ToNode: "show1"}},
	}
	run := &domain.Run{ID: "run1", WorkflowID: "wf1", Status: domain.StatusPending}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := e.Execute(context.Background(), run, g); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if run.Status != domain.StatusSucceeded {
		t.Fatalf("status = %v, want succeeded", run.Status)
	}

	nodeRuns, _ := store.ListNodeRuns(context.Background(), "run1")
	if len(nodeRuns) != 2 {
		t.Fatalf("expected 2 node runs, got %d", len(nodeRuns))
	}
	for _, nr := range nodeRuns {
		if nr.Status != domain.StatusSucceeded {
			t.Fatalf("node %s status = %v, want succeeded", nr.NodeID, nr.Status)
		}
	}
}

func TestExecuteStopsRunOnNodeFailure(t *testing.T) {
	store := newMemStore()
	e := engine.New(context.Background(), store, blocks.Global())

	g := domain.Graph{
		Nodes: []domain.Node{
			{ID: "start1", Type: "start"},
			{ID: "boom1", Type: "test.boom"},
			{ID: "show1", Type: "show"},
		},
		Edges: []domain.Edge{
			{ID: "e1", FromNode: "start1", ToNode: "boom1"},
			{ID: "e2", FromNode: "boom1", ToNode: "show1"},
		},
	}
	run := &domain.Run{ID: "run2", WorkflowID: "wf1", Status: domain.StatusPending}
	_ = store.CreateRun(context.Background(), run)

	err := e.Execute(context.Background(), run, g)
	if err == nil {
		t.Fatal("expected execute to return the node's error")
	}
	if run.Status != domain.StatusFailed {
		t.Fatalf("status = %v, want failed", run.Status)
	}

	nodeRuns, _ := store.ListNodeRuns(context.Background(), "run2")
	if len(nodeRuns) != 2 {
		t.Fatalf("expected 2 node runs (show1 never scheduled), got %d", len(nodeRuns))
	}

	var outputs map[string]map[string]any
	if err := json.Unmarshal(run.Outputs, &outputs); err != nil {
		t.Fatalf("unmarshal run outputs: %v", err)
	}
	if _, ok := outputs["start1"]; !ok {
		t.Fatalf("expected start1's output to survive the later node's failure, got %v", outputs)
	}
}

func TestExecuteSkipsToolKindNodesInMainPass(t *testing.T) {
	store := newMemStore()
	e := engine.New(context.Background(), store, blocks.Global())

	g := domain.Graph{
		Nodes: []domain.Node{
			{ID: "start1", Type: "start"},
			{ID: "calc1", Type: "tool.calculator"},
		},
		Edges: []domain.Edge{
			{ID: "e1", FromNode: "start1", ToNode: "calc1", Kind: domain.EdgeTool},
		},
	}
	run := &domain.Run{ID: "run3", WorkflowID: "wf1", Status: domain.StatusPending}
	_ = store.CreateRun(context.Background(), run)

	if err := e.Execute(context.Background(), run, g); err != nil {
		t.Fatalf("execute: %v", err)
	}

	nodeRuns, _ := store.ListNodeRuns(context.Background(), "run3")
	if len(nodeRuns) != 1 {
		t.Fatalf("expected only start1 to be scheduled, got %d node runs", len(nodeRuns))
	}
}
