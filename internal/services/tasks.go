package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Task is a lifecycle operation running in the background.
type Task struct {
	ID         string
	Operation  string
	Server     string
	mu         sync.Mutex
	state      TaskState
	err        error
	createdAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

// TaskSnapshot is a point-in-time copy of a task, safe to serialize.
type TaskSnapshot struct {
	ID         string     `json:"id"`
	Operation  string     `json:"operation"`
	Server     string     `json:"server"`
	State      TaskState  `json:"state"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done and returns the task's error.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := TaskSnapshot{
		ID:        t.ID,
		Operation: t.Operation,
		Server:    t.Server,
		State:     t.state,
		CreatedAt: t.createdAt,
	}
	if t.err != nil {
		snap.Error = t.err.Error()
	}
	if !t.finishedAt.IsZero() {
		finished := t.finishedAt
		snap.FinishedAt = &finished
	}
	return snap
}

func (t *Task) setState(state TaskState, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	t.err = err
	if state == TaskSucceeded || state == TaskFailed {
		t.finishedAt = time.Now().UTC()
	}
}

// TaskRunner runs lifecycle operations on background goroutines so callers can
// return immediately and poll or wait.
type TaskRunner struct {
	ctx       context.Context
	logger    *zap.Logger
	retention time.Duration
	mu        sync.Mutex
	tasks     map[string]*Task
	wg        sync.WaitGroup
}

// NewTaskRunner creates a runner whose tasks run under ctx. Finished tasks are
// forgotten after retention.
func NewTaskRunner(ctx context.Context, logger *zap.Logger, retention time.Duration) *TaskRunner {
	return &TaskRunner{
		ctx:       ctx,
		logger:    logger,
		retention: retention,
		tasks:     make(map[string]*Task),
	}
}

func (r *TaskRunner) Submit(operation, server string, fn func(ctx context.Context) error) *Task {
	task := &Task{
		ID:        uuid.NewString(),
		Operation: operation,
		Server:    server,
		state:     TaskPending,
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.pruneLocked()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(task.done)

		task.setState(TaskRunning, nil)
		logger := r.logger.With(zap.String("task", task.ID),
			zap.String("operation", operation), zap.String("server", server))

		if err := fn(r.ctx); err != nil {
			logger.Warn("task failed", zap.Error(err))
			task.setState(TaskFailed, err)
			return
		}
		logger.Info("task succeeded")
		task.setState(TaskSucceeded, nil)
	}()

	return task
}

func (r *TaskRunner) Get(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	return task, ok
}

// Wait blocks until every submitted task has finished.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}

func (r *TaskRunner) pruneLocked() {
	if r.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.retention)
	for id, task := range r.tasks {
		task.mu.Lock()
		expired := !task.finishedAt.IsZero() && task.finishedAt.Before(cutoff)
		task.mu.Unlock()
		if expired {
			delete(r.tasks, id)
		}
	}
}
