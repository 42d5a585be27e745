package download

import (
	"fmt"
	"sync"
	"time"
)

// TaskRegistry provides thread-safe storage of tasks for status reporting.
// It is a pure state container; all download logic lives in the Manager.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string // insertion order for stable snapshots
}

// NewTaskRegistry creates a TaskRegistry with the given initial capacity.
func NewTaskRegistry(capacity int) *TaskRegistry {
	if capacity <= 0 {
		capacity = 128
	}
	return &TaskRegistry{
		tasks: make(map[string]*Task, capacity),
		order: make([]string, 0, capacity),
	}
}

// Add registers a task. Returns an error if the ID is already present.
func (r *TaskRegistry) Add(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.ID]; exists {
		return fmt.Errorf("task with id %s already exists", t.ID)
	}
	r.tasks[t.ID] = t
	r.order = append(r.order, t.ID)
	return nil
}

// Get retrieves a copy of a single task by ID, or nil if absent.
func (r *TaskRegistry) Get(id string) *Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tasks[id]; ok {
		cp := *t
		return &cp
	}
	return nil
}

// Update atomically mutates a task through fn and bumps its update time.
func (r *TaskRegistry) Update(id string, fn func(*Task)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task with id %s not found", id)
	}
	fn(t)
	t.updatedAt = time.Now()
	return nil
}

// Snapshot returns copies of all tasks in enqueue order.
// If id is non-empty, returns at most that single task.
func (r *TaskRegistry) Snapshot(id string) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id != "" {
		if t, ok := r.tasks[id]; ok {
			cp := *t
			return []*Task{&cp}
		}
		return []*Task{}
	}
	out := make([]*Task, 0, len(r.order))
	for _, tid := range r.order {
		cp := *r.tasks[tid]
		out = append(out, &cp)
	}
	return out
}

// SetProgress overwrites a task's progress value.
func (r *TaskRegistry) SetProgress(id string, progress float64) error {
	return r.Update(id, func(t *Task) {
		t.Progress = progress
	})
}

// SetStatus updates status and the optional error message.
func (r *TaskRegistry) SetStatus(id string, status Status, errMsg string) error {
	return r.Update(id, func(t *Task) {
		t.Status = status
		t.Error = errMsg
	})
}

// Attach binds a database row ID to a task for persistence updates.
func (r *TaskRegistry) Attach(id string, dbID int64) error {
	return r.Update(id, func(t *Task) {
		t.DBID = dbID
	})
}

// SetMeta fills in probed metadata, skipping zero values.
func (r *TaskRegistry) SetMeta(id, title string, duration int64, thumbnail string) error {
	return r.Update(id, func(t *Task) {
		if title != "" {
			t.Title = title
		}
		if duration > 0 {
			t.Duration = duration
		}
		if thumbnail != "" {
			t.ThumbnailURL = thumbnail
		}
	})
}

// Size returns the number of registered tasks.
func (r *TaskRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
