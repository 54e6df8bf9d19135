package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/loykin/supervisr/internal/task"
)

const workerCmd = `sh -c 'touch "$SUPERVISR_READY_FILE"; while [ ! -e "$SUPERVISR_STOP_FILE" ]; do sleep 0.05; done'`

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh on Unix-like systems")
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *task.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := task.NewRegistry()
	t.Cleanup(reg.Close)
	srv := httptest.NewServer(NewRouter(reg, "/api").Handler())
	t.Cleanup(srv.Close)
	return srv, reg
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestCreateValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing name", map[string]string{"command": "sleep 1"}, http.StatusBadRequest},
		{"missing command", map[string]string{"name": "x"}, http.StatusBadRequest},
		{"traversal in name", map[string]string{"name": "../etc", "command": "sleep 1"}, http.StatusBadRequest},
		{"name with slash", map[string]string{"name": "a/b", "command": "sleep 1"}, http.StatusBadRequest},
		{"relative workdir", map[string]string{"name": "x", "command": "sleep 1", "work_dir": "rel/dir"}, http.StatusBadRequest},
		{"valid", map[string]string{"name": "ok", "command": "sleep 1"}, http.StatusOK},
	}
	for _, tc := range cases {
		resp := postJSON(t, srv.URL+"/api/tasks", tc.body)
		_ = resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}
}

func TestCreateDuplicateConflicts(t *testing.T) {
	srv, _ := newTestServer(t)
	body := map[string]string{"name": "dup", "command": "sleep 1"}
	resp := postJSON(t, srv.URL+"/api/tasks", body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first create: %d", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/api/tasks", body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create: %d, want 409", resp.StatusCode)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	requireUnix(t)
	srv, _ := newTestServer(t)
	resp := postJSON(t, srv.URL+"/api/tasks", map[string]string{"name": "web", "command": workerCmd})
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/tasks/web/start?timeout=5s", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: %d", resp.StatusCode)
	}

	var info task.Info
	getResp, err := http.Get(srv.URL + "/api/tasks/web")
	if err != nil {
		t.Fatalf("GET info: %v", err)
	}
	if err := json.NewDecoder(getResp.Body).Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	_ = getResp.Body.Close()
	if !info.Alive || info.Status != task.StatusRunning || info.PID <= 0 {
		t.Fatalf("info after start: %+v", info)
	}

	resp = postJSON(t, srv.URL+"/api/tasks/web/restart?timeout=5s", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restart: %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/tasks/web/stop", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: %d", resp.StatusCode)
	}

	// stop again: process gone, conflicting state
	resp = postJSON(t, srv.URL+"/api/tasks/web/stop", nil)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second stop: %d, want 409", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/tasks/web", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	_ = delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", delResp.StatusCode)
	}
}

func TestUnknownTaskIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, op := range []string{"start", "stop", "restart"} {
		resp := postJSON(t, fmt.Sprintf("%s/api/tasks/ghost/%s", srv.URL, op), nil)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s on unknown task: %d, want 404", op, resp.StatusCode)
		}
	}
	resp, err := http.Get(srv.URL + "/api/tasks/ghost")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("info on unknown task: %d, want 404", resp.StatusCode)
	}
}

func TestListSnapshots(t *testing.T) {
	srv, reg := newTestServer(t)
	if !reg.Create(task.Spec{Name: "a", Command: "sleep 1", RuntimeDir: t.TempDir()}) {
		t.Fatalf("Create failed")
	}
	resp, err := http.Get(srv.URL + "/api/tasks")
	if err != nil {
		t.Fatalf("GET list: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	var all map[string]task.Info
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(all) != 1 || all["a"].Status != task.StatusReady {
		t.Fatalf("list = %+v", all)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"/":     "",
		"api":   "/api",
		"/api":  "/api",
		"/api/": "/api",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSafeName(t *testing.T) {
	for _, ok := range []string{"web", "web-1", "a.b_c"} {
		if !isSafeName(ok) {
			t.Fatalf("%q rejected", ok)
		}
	}
	for _, bad := range []string{"", "a/b", "..", "a..b", "sp ace", "tab\t"} {
		if isSafeName(bad) {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	for _, ok := range []string{"", "/var/log", "/a"} {
		if !isSafeAbsPath(ok) {
			t.Fatalf("%q rejected", ok)
		}
	}
	for _, bad := range []string{"rel", "./x", "/a/../b"} {
		if isSafeAbsPath(bad) {
			t.Fatalf("%q accepted", bad)
		}
	}
}
