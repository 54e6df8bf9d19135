package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersNoopBeforeRegister(t *testing.T) {
	// must not panic or record anything
	IncStart("x")
	IncStop("x")
	SetRunning("x", true)
	IncLockAcquire("thread")
}

func TestRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// repeated registration is a no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	IncStart("api")
	IncStart("api")
	IncStartFailure("api")
	IncStop("api")
	IncRestart("api")
	IncCrash("api")
	SetRunning("api", true)
	IncLockAcquire("file")

	if got := testutil.ToFloat64(taskStarts.WithLabelValues("api")); got != 2 {
		t.Fatalf("starts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(taskStartFailures.WithLabelValues("api")); got != 1 {
		t.Fatalf("start failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(taskRunning.WithLabelValues("api")); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	SetRunning("api", false)
	if got := testutil.ToFloat64(taskRunning.WithLabelValues("api")); got != 0 {
		t.Fatalf("running gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(lockAcquisitions.WithLabelValues("file")); got != 1 {
		t.Fatalf("lock acquisitions = %v, want 1", got)
	}
}

func TestHandlerServes(t *testing.T) {
	if Handler() == nil {
		t.Fatalf("nil metrics handler")
	}
}
