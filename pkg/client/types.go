package client

import "time"

// TaskSpec mirrors the daemon's task spec for create requests.
type TaskSpec struct {
	Name         string        `json:"name"`
	Command      string        `json:"command"`
	WorkDir      string        `json:"work_dir,omitempty"`
	Env          []string      `json:"env,omitempty"`
	RuntimeDir   string        `json:"runtime_dir,omitempty"`
	StartTimeout time.Duration `json:"start_timeout,omitempty"`
	Log          *TaskLog      `json:"log,omitempty"`
}

// TaskLog mirrors the daemon's worker log settings.
type TaskLog struct {
	Dir        string `json:"dir,omitempty"`
	StdoutPath string `json:"stdout_path,omitempty"`
	StderrPath string `json:"stderr_path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// TaskInfo mirrors the daemon's task snapshot.
type TaskInfo struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	PID       int       `json:"pid"`
	Alive     bool      `json:"alive"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitError string    `json:"exit_error,omitempty"`
}
