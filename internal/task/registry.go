package task

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/supervisr/internal/history"
	"github.com/loykin/supervisr/internal/logger"
	"github.com/loykin/supervisr/internal/metrics"
	"github.com/loykin/supervisr/internal/store"
)

// Registry is a name-keyed collection of tasks with centralized lifecycle
// operations. Map mutations are serialized by one registry mutex; the
// per-task operations they delegate to run outside it, so a slow handshake
// or stop window on one task never blocks lookups or other tasks.
//
// Registries are explicitly constructed and explicitly closed; there is no
// package-wide instance.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task

	st    store.Store
	sinks []history.Sink
	log   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
		log:   logger.Get("registry"),
	}
}

// SetStore configures durable task-state persistence. It ensures the schema
// and keeps the store for subsequent lifecycle writes. Passing nil clears it.
func (r *Registry) SetStore(s store.Store) error {
	r.mu.Lock()
	r.st = s
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.EnsureSchema(context.Background())
}

// SetHistorySinks configures external lifecycle-event sinks (PostgreSQL,
// ClickHouse, ...). Passing none clears the list.
func (r *Registry) SetHistorySinks(sinks ...history.Sink) {
	r.mu.Lock()
	r.sinks = append([]history.Sink(nil), sinks...)
	r.mu.Unlock()
}

// Create constructs a task, binds the worker spec to it, and inserts it
// under spec.Name. False when the name is taken or binding fails; the
// existing task is left untouched.
func (r *Registry) Create(spec Spec) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[spec.Name]; ok {
		return false
	}
	t := New()
	t.onCrash = func(info Info) {
		metrics.IncCrash(info.Name)
		metrics.SetRunning(info.Name, false)
		r.record(history.EventCrash, info)
	}
	if !t.Set(spec) {
		t.Close()
		return false
	}
	r.tasks[spec.Name] = t
	r.log.Info("task created", "name", spec.Name)
	return true
}

// Start delegates to the named task's Start. False for unknown names.
func (r *Registry) Start(name string, timeout time.Duration) bool {
	t := r.get(name)
	if t == nil {
		return false
	}
	began := time.Now()
	ok := t.Start(timeout)
	if ok {
		metrics.IncStart(name)
		metrics.ObserveStartDuration(name, time.Since(began))
		metrics.SetRunning(name, true)
		r.record(history.EventStart, t.Info())
	} else {
		metrics.IncStartFailure(name)
	}
	return ok
}

// Stop delegates to the named task's Stop. False for unknown names.
func (r *Registry) Stop(name string) bool {
	t := r.get(name)
	if t == nil {
		return false
	}
	ok := t.Stop()
	if ok {
		metrics.IncStop(name)
		metrics.SetRunning(name, false)
		r.record(history.EventStop, t.Info())
	}
	return ok
}

// Restart delegates to the named task's Restart. False for unknown names.
func (r *Registry) Restart(name string, timeout time.Duration) bool {
	t := r.get(name)
	if t == nil {
		return false
	}
	ok := t.Restart(timeout)
	if ok {
		metrics.IncRestart(name)
		metrics.SetRunning(name, true)
		r.record(history.EventStart, t.Info())
	}
	return ok
}

// Remove stops the named task, releases it, and deletes the entry.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[name]
	if !ok {
		return false
	}
	t.Stop()
	t.Close()
	delete(r.tasks, name)
	r.log.Info("task removed", "name", name)
	return true
}

// Info returns the named task's snapshot, nil for unknown names.
func (r *Registry) Info(name string) *Info {
	t := r.get(name)
	if t == nil {
		return nil
	}
	info := t.Info()
	return &info
}

// List returns all registered task names.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	return names
}

// AllInfo returns a snapshot of every registered task.
func (r *Registry) AllInfo() map[string]Info {
	r.mu.Lock()
	tasks := make(map[string]*Task, len(r.tasks))
	for name, t := range r.tasks {
		tasks[name] = t
	}
	r.mu.Unlock()
	out := make(map[string]Info, len(tasks))
	for name, t := range tasks {
		out[name] = t.Info()
	}
	return out
}

// StopAll stops every task. Not short-circuiting: every task is attempted,
// and the result is false when any individual Stop reported false.
func (r *Registry) StopAll() bool {
	r.mu.Lock()
	tasks := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.mu.Unlock()
	ok := true
	for _, t := range tasks {
		name := t.Name()
		if t.Stop() {
			metrics.IncStop(name)
			metrics.SetRunning(name, false)
			r.record(history.EventStop, t.Info())
		} else {
			ok = false
		}
	}
	return ok
}

// Close is the registry's scoped teardown: best-effort stop of every task
// and release of every watcher. The registry is unusable afterward.
func (r *Registry) Close() {
	r.StopAll()
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = make(map[string]*Task)
	r.mu.Unlock()
	for _, t := range tasks {
		t.Close()
	}
}

func (r *Registry) get(name string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[name]
}

// record persists a lifecycle event to the store and history sinks.
// Best-effort everywhere: failures land in the log, never in the caller.
func (r *Registry) record(typ history.EventType, info Info) {
	r.mu.Lock()
	st := r.st
	sinks := append([]history.Sink(nil), r.sinks...)
	r.mu.Unlock()
	if st == nil && len(sinks) == 0 {
		return
	}
	rec := store.Record{
		Name:      info.Name,
		PID:       info.PID,
		Status:    string(info.Status),
		Running:   info.Alive,
		StartedAt: info.StartedAt,
	}
	if !info.StoppedAt.IsZero() {
		rec.StoppedAt = sql.NullTime{Time: info.StoppedAt, Valid: true}
	}
	if info.ExitError != "" {
		rec.ExitErr = sql.NullString{String: info.ExitError, Valid: true}
	}
	ctx := context.Background()
	if st != nil {
		if err := st.UpsertStatus(ctx, rec); err != nil {
			r.log.Debug("store write failed", "name", info.Name, "error", err)
		}
	}
	evt := history.Event{Type: typ, OccurredAt: time.Now().UTC(), Record: rec}
	for _, s := range sinks {
		if err := s.Send(ctx, evt); err != nil {
			r.log.Debug("history sink write failed", "name", info.Name, "error", err)
		}
	}
}
