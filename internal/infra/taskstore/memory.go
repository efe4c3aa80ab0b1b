package taskstore

import (
	"context"
	"sync"
	"time"

	domain "github.com/reportchat/reportchat/internal/domain/tasks"
)

// Memory is a process-local task repository. Tasks live only as long as the
// process; a restart forgets them all, which status polling reports as not
// found.
type Memory struct {
	mu    sync.RWMutex
	tasks map[domain.TaskID]*domain.AnalysisTask
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[domain.TaskID]*domain.AnalysisTask)}
}

func (m *Memory) Save(ctx context.Context, t *domain.AnalysisTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) Get(ctx context.Context, id domain.TaskID) (*domain.AnalysisTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id domain.TaskID, status domain.Status, message string) error {
	return m.update(id, func(t *domain.AnalysisTask) {
		t.Status = status
		t.Message = message
	})
}

func (m *Memory) UpdateResult(ctx context.Context, id domain.TaskID, result domain.Result, message string) error {
	return m.update(id, func(t *domain.AnalysisTask) {
		t.Status = domain.StatusCompleted
		t.Result = result
		t.ErrorDetail = ""
		t.Message = message
	})
}

func (m *Memory) UpdateFailure(ctx context.Context, id domain.TaskID, detail, message string) error {
	return m.update(id, func(t *domain.AnalysisTask) {
		t.Status = domain.StatusFailed
		t.Result = domain.Result{}
		t.ErrorDetail = detail
		t.Message = message
	})
}

func (m *Memory) update(id domain.TaskID, fn func(*domain.AnalysisTask)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	fn(t)
	t.UpdatedAt = time.Now()
	return nil
}
