package task

import (
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/supervisr/internal/logger"
)

// Environment variables injected into every worker. The worker must create
// the ready file once initialized and exit promptly after the stop file
// appears; see the package documentation for the full contract.
const (
	EnvReadyFile = "SUPERVISR_READY_FILE"
	EnvStopFile  = "SUPERVISR_STOP_FILE"
)

// Spec describes a worker to be supervised. Command is an opaque payload
// owned by the caller; it is executed as a shell command line.
type Spec struct {
	Name         string        `json:"name" mapstructure:"name"`
	Command      string        `json:"command" mapstructure:"command"`
	WorkDir      string        `json:"work_dir" mapstructure:"work_dir"`
	Env          []string      `json:"env" mapstructure:"env"`
	RuntimeDir   string        `json:"runtime_dir" mapstructure:"runtime_dir"` // flag-file dir; temp dir when empty
	StartTimeout time.Duration `json:"start_timeout" mapstructure:"start_timeout"`
	Log          logger.Config `json:"log" mapstructure:"log"`
}

// BuildCommand constructs an *exec.Cmd for the spec's command line. Shell
// metacharacters route through /bin/sh -c; a plain argv form is split and
// executed directly.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}
