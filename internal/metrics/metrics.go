package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register;
// the helper functions below no-op until that happens.
var (
	regOK atomic.Bool

	taskStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "task",
			Name:      "starts_total",
			Help:      "Number of confirmed task starts.",
		}, []string{"name"},
	)
	taskStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "task",
			Name:      "start_failures_total",
			Help:      "Number of starts that failed or timed out on the ready handshake.",
		}, []string{"name"},
	)
	taskStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "task",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or forced).",
		}, []string{"name"},
	)
	taskRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "task",
			Name:      "restarts_total",
			Help:      "Number of restarts.",
		}, []string{"name"},
	)
	taskCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "task",
			Name:      "crashes_total",
			Help:      "Number of worker deaths detected by the watcher.",
		}, []string{"name"},
	)
	taskRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "supervisr",
			Subsystem: "task",
			Name:      "running",
			Help:      "Whether the task is currently running (1) or not (0).",
		}, []string{"name"},
	)
	startDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "supervisr",
			Subsystem: "task",
			Name:      "start_duration_seconds",
			Help:      "Time from spawn to confirmed ready handshake.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"name"},
	)
	lockAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supervisr",
			Subsystem: "keylock",
			Name:      "acquisitions_total",
			Help:      "Number of keyed lock acquisitions per backend.",
		}, []string{"backend"},
	)
	lockHoldDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "supervisr",
			Subsystem: "keylock",
			Name:      "hold_duration_seconds",
			Help:      "Time a keyed lock was held, per backend.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}, []string{"backend"},
	)
)

// Register registers all collectors with the provided registerer. Safe to
// call multiple times; calls after a success are no-ops and collectors
// already present in the registry are kept.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		taskStarts, taskStartFailures, taskStops, taskRestarts,
		taskCrashes, taskRunning, startDuration,
		lockAcquisitions, lockHoldDuration,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. Wiring it into a server is the caller's job.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(name string) {
	if regOK.Load() {
		taskStarts.WithLabelValues(name).Inc()
	}
}

func IncStartFailure(name string) {
	if regOK.Load() {
		taskStartFailures.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		taskStops.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		taskRestarts.WithLabelValues(name).Inc()
	}
}

func IncCrash(name string) {
	if regOK.Load() {
		taskCrashes.WithLabelValues(name).Inc()
	}
}

func SetRunning(name string, running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1.0
		}
		taskRunning.WithLabelValues(name).Set(v)
	}
}

func ObserveStartDuration(name string, d time.Duration) {
	if regOK.Load() {
		startDuration.WithLabelValues(name).Observe(d.Seconds())
	}
}

func IncLockAcquire(backend string) {
	if regOK.Load() {
		lockAcquisitions.WithLabelValues(backend).Inc()
	}
}

func ObserveLockHold(backend string, d time.Duration) {
	if regOK.Load() {
		lockHoldDuration.WithLabelValues(backend).Observe(d.Seconds())
	}
}
