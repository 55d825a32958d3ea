package syncer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/git-metrics/internal/domain"
)

// TaskTracker holds the in-memory sync task table, one slot per repository.
// Task state does not survive a restart; completed and failed entries stay
// visible until overwritten by the next run.
type TaskTracker struct {
	mu    sync.Mutex
	tasks map[int64]*domain.SyncTask
}

// NewTaskTracker creates an empty task tracker
func NewTaskTracker() *TaskTracker {
	return &TaskTracker{tasks: make(map[int64]*domain.SyncTask)}
}

// TryStart atomically claims the sync slot for a repository. It returns the
// new task and true, or the currently running task and false when a sync is
// already in flight.
func (t *TaskTracker) TryStart(repoID int64) (*domain.SyncTask, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.tasks[repoID]; ok && existing.Status == domain.SyncRunning {
		out := *existing
		return &out, false
	}

	now := time.Now().UTC()
	task := &domain.SyncTask{
		TaskID:    uuid.New().String(),
		RepoID:    repoID,
		Status:    domain.SyncRunning,
		Progress:  0,
		StartedAt: now,
		UpdatedAt: now,
	}
	t.tasks[repoID] = task

	out := *task
	return &out, true
}

// Update advances the progress and message of a running task
func (t *TaskTracker) Update(repoID int64, progress int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[repoID]
	if !ok {
		return
	}
	task.Progress = progress
	task.Message = message
	task.UpdatedAt = time.Now().UTC()
}

// Complete marks a task as finished
func (t *TaskTracker) Complete(repoID int64, message string, commitsProcessed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[repoID]
	if !ok {
		return
	}
	task.Status = domain.SyncCompleted
	task.Progress = 100
	task.Message = message
	task.CommitsProcessed = commitsProcessed
	task.UpdatedAt = time.Now().UTC()
}

// Fail marks a task as failed
func (t *TaskTracker) Fail(repoID int64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[repoID]
	if !ok {
		return
	}
	task.Status = domain.SyncError
	task.Message = message
	task.UpdatedAt = time.Now().UTC()
}

// Get returns a copy of the task for a repository, or nil when no sync has
// been started since the process came up.
func (t *TaskTracker) Get(repoID int64) *domain.SyncTask {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[repoID]
	if !ok {
		return nil
	}
	out := *task
	return &out
}
