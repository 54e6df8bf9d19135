// Package supervisr supervises worker processes and provides keyed mutual
// exclusion. It is a thin facade over the internal packages, offering a
// stable API for embedding.
package supervisr

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/supervisr/internal/config"
	"github.com/loykin/supervisr/internal/history"
	hfactory "github.com/loykin/supervisr/internal/history/factory"
	"github.com/loykin/supervisr/internal/keylock"
	"github.com/loykin/supervisr/internal/metrics"
	iapi "github.com/loykin/supervisr/internal/server"
	"github.com/loykin/supervisr/internal/store"
	sfactory "github.com/loykin/supervisr/internal/store/factory"
	"github.com/loykin/supervisr/internal/task"
)

// Re-exported core types; aliases make conversions zero-cost.

type Spec = task.Spec

type Info = task.Info

type Status = task.Status

const (
	StatusReady   = task.StatusReady
	StatusRunning = task.StatusRunning
	StatusStopped = task.StatusStopped
)

// Registry is the public handle on a task registry. Construct with New,
// release with Close.
type Registry struct{ inner *task.Registry }

func New() *Registry { return &Registry{inner: task.NewRegistry()} }

func (r *Registry) Create(spec Spec) bool { return r.inner.Create(spec) }
func (r *Registry) Start(name string, timeout time.Duration) bool {
	return r.inner.Start(name, timeout)
}
func (r *Registry) Stop(name string) bool { return r.inner.Stop(name) }
func (r *Registry) Restart(name string, timeout time.Duration) bool {
	return r.inner.Restart(name, timeout)
}
func (r *Registry) Remove(name string) bool     { return r.inner.Remove(name) }
func (r *Registry) Info(name string) *Info      { return r.inner.Info(name) }
func (r *Registry) List() []string              { return r.inner.List() }
func (r *Registry) AllInfo() map[string]Info    { return r.inner.AllInfo() }
func (r *Registry) StopAll() bool               { return r.inner.StopAll() }
func (r *Registry) SetStore(s Store) error      { return r.inner.SetStore(s) }
func (r *Registry) SetHistorySinks(s ...HistorySink) {
	r.inner.SetHistorySinks(s...)
}
func (r *Registry) Close() { r.inner.Close() }

// Keyed lock facade.

type KeyedLockManager = keylock.Manager

type ScopedLock = keylock.ScopedLock

// NewKeyedThreadLocks returns a keyed lock manager scoped to this process.
func NewKeyedThreadLocks() *KeyedLockManager { return keylock.NewThreadManager() }

// NewKeyedFileLocks returns a keyed lock manager backed by advisory lock
// files under dir, excluding any process on this host.
func NewKeyedFileLocks(dir string) (*KeyedLockManager, error) {
	return keylock.NewFileManager(dir)
}

// Persistence facade.

type Store = store.Store

type HistorySink = history.Sink

// NewStoreFromDSN opens a task-state store (sqlite path or postgres DSN).
func NewStoreFromDSN(dsn string) (Store, error) { return sfactory.NewFromDSN(dsn) }

// NewHistorySinkFromDSN opens a lifecycle-event sink (postgres or clickhouse DSN).
func NewHistorySinkFromDSN(dsn string) (HistorySink, error) {
	return hfactory.NewSinkFromDSN(dsn)
}

// Config facade.

type Config = cfg.Config

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the control API for reg.
func NewHTTPServer(addr, basePath string, reg *Registry) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, reg.inner)
}

// NewHTTPHandler returns the control API as a mountable http.Handler.
func NewHTTPHandler(basePath string, reg *Registry) http.Handler {
	return iapi.NewRouter(reg.inner, basePath).Handler()
}

// Metrics helpers.

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics on addr in the caller's goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
