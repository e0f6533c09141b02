// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Task is one registered unit of scheduled work. Handlers must be
// idempotent: the lease bounds overlap across replicas but cannot
// eliminate it entirely during takeover windows.
type Task struct {
	Name           string
	Schedule       Schedule
	Handler        func(ctx context.Context) error
	MaxRunDuration time.Duration
}

// Registry holds the task set for one process. Registration happens at
// startup; the runner reads it afterwards.
type Registry struct {
	mu          sync.Mutex
	lockTimeout time.Duration
	tasks       map[string]Task
}

// NewRegistry creates a registry that enforces MaxRunDuration against
// the given lease timeout.
func NewRegistry(lockTimeout time.Duration) *Registry {
	return &Registry{
		lockTimeout: lockTimeout,
		tasks:       make(map[string]Task),
	}
}

// Register adds a task. Duplicate names and tasks whose MaxRunDuration
// reaches the lease timeout are rejected.
func (r *Registry) Register(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	if t.Schedule == nil {
		return fmt.Errorf("task %q: schedule must not be nil", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("task %q: handler must not be nil", t.Name)
	}
	if t.MaxRunDuration <= 0 {
		return fmt.Errorf("task %q: max run duration must be positive", t.Name)
	}
	if t.MaxRunDuration >= r.lockTimeout {
		return fmt.Errorf("task %q: max run duration %s must stay below lock timeout %s",
			t.Name, t.MaxRunDuration, r.lockTimeout)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.Name]; exists {
		return fmt.Errorf("task %q already registered", t.Name)
	}
	r.tasks[t.Name] = t
	return nil
}

// Tasks returns the registered tasks sorted by name.
func (r *Registry) Tasks() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the task with the given name.
func (r *Registry) Lookup(name string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[name]
	return t, ok
}
