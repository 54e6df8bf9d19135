package supervisr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"
)

const workerCmd = `sh -c 'touch "$SUPERVISR_READY_FILE"; while [ ! -e "$SUPERVISR_STOP_FILE" ]; do sleep 0.05; done'`

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh on Unix-like systems")
	}
}

func TestRegistryFacadeLifecycle(t *testing.T) {
	requireUnix(t)
	reg := New()
	defer reg.Close()

	if !reg.Create(Spec{Name: "web", Command: workerCmd, RuntimeDir: t.TempDir()}) {
		t.Fatalf("Create failed")
	}
	if !reg.Start("web", 5*time.Second) {
		t.Fatalf("Start failed")
	}
	info := reg.Info("web")
	if info == nil || info.Status != StatusRunning || !info.Alive {
		t.Fatalf("info = %+v", info)
	}
	if !reg.Stop("web") {
		t.Fatalf("Stop failed")
	}
	if !reg.Remove("web") {
		t.Fatalf("Remove failed")
	}
	if reg.Info("web") != nil {
		t.Fatalf("removed task still visible")
	}
}

func TestKeyedLockFacades(t *testing.T) {
	locks := NewKeyedThreadLocks()
	guard, err := locks.Lock("k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := guard.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	guard.Release()

	fileLocks, err := NewKeyedFileLocks(t.TempDir())
	if err != nil {
		t.Fatalf("NewKeyedFileLocks: %v", err)
	}
	fg, err := fileLocks.Lock("k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := fg.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	fg.Release()
}

func TestHTTPHandlerMountable(t *testing.T) {
	reg := New()
	defer reg.Close()
	srv := httptest.NewServer(NewHTTPHandler("/api", reg))
	defer srv.Close()

	if !reg.Create(Spec{Name: "a", Command: "sleep 1", RuntimeDir: t.TempDir()}) {
		t.Fatalf("Create failed")
	}
	resp, err := http.Get(srv.URL + "/api/tasks")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var all map[string]Info
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 1 || all["a"].Name != "a" {
		t.Fatalf("list = %+v", all)
	}
}

func TestStoreFromDSNSQLite(t *testing.T) {
	st, err := NewStoreFromDSN("sqlite://" + t.TempDir() + "/state.db")
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	defer func() { _ = st.Close() }()

	reg := New()
	defer reg.Close()
	if err := reg.SetStore(st); err != nil {
		t.Fatalf("SetStore: %v", err)
	}
}

func TestRegisterMetricsDefault(t *testing.T) {
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("RegisterMetricsDefault: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("repeated registration: %v", err)
	}
}
