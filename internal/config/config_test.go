package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "supervisr.toml", `
lock_dir = "/var/lock/supervisr"

[server]
listen = ":9090"
base_path = "/api"
metrics_listen = ":9091"

[store]
enabled = true
dsn = "sqlite:///var/lib/supervisr/state.db"

[history]
sinks = ["postgres://u:p@localhost/audit"]

[log]
dir = "/var/log/supervisr"
max_size_mb = 5

[[tasks]]
name = "web"
command = "sleep 1"
auto_start = true
start_timeout = "5s"

[[tasks]]
name = "batch"
command = "sleep 2"

  [tasks.log]
  dir = "/var/log/batch"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":9090" || cfg.Server.MetricsListen != ":9091" {
		t.Fatalf("server config: %+v", cfg.Server)
	}
	if !cfg.Store.Enabled || !strings.HasPrefix(cfg.Store.DSN, "sqlite://") {
		t.Fatalf("store config: %+v", cfg.Store)
	}
	if len(cfg.History.Sinks) != 1 {
		t.Fatalf("history sinks: %+v", cfg.History)
	}
	if cfg.LockDir != "/var/lock/supervisr" {
		t.Fatalf("lock dir: %q", cfg.LockDir)
	}

	specs := cfg.Specs()
	if len(specs) != 2 {
		t.Fatalf("Specs len = %d", len(specs))
	}
	if specs[0].Name != "web" || specs[0].StartTimeout != 5*time.Second {
		t.Fatalf("web spec: %+v", specs[0])
	}
	// global log settings apply where a task has none of its own
	if specs[0].Log.Dir != "/var/log/supervisr" || specs[0].Log.MaxSizeMB != 5 {
		t.Fatalf("global log fallback not applied: %+v", specs[0].Log)
	}
	if specs[1].Log.Dir != "/var/log/batch" {
		t.Fatalf("per-task log override lost: %+v", specs[1].Log)
	}

	auto := cfg.AutoStartNames()
	if len(auto) != 1 || auto[0] != "web" {
		t.Fatalf("AutoStartNames = %v", auto)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "supervisr.yaml", `
server:
  listen: ":8088"
tasks:
  - name: one
    command: "sleep 1"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":8088" || len(cfg.Tasks) != 1 {
		t.Fatalf("yaml config: %+v", cfg)
	}
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writeConfig(t, "dup.toml", `
[[tasks]]
name = "same"
command = "sleep 1"

[[tasks]]
name = "same"
command = "sleep 2"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("duplicate names not rejected: %v", err)
	}
}

func TestLoadRejectsIncompleteTasks(t *testing.T) {
	noName := writeConfig(t, "noname.toml", `
[[tasks]]
command = "sleep 1"
`)
	if _, err := Load(noName); err == nil {
		t.Fatalf("empty task name accepted")
	}
	noCmd := writeConfig(t, "nocmd.toml", `
[[tasks]]
name = "idle"
`)
	if _, err := Load(noCmd); err == nil {
		t.Fatalf("task without command accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
