package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults applied when a Config field is zero.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where a supervised worker's stdout/stderr go.
// If StdoutPath/StderrPath are empty and Dir is set, files are
// Dir/<name>.stdout.log and Dir/<name>.stderr.log. Rotation follows
// lumberjack semantics.
type Config struct {
	Dir        string `json:"dir" mapstructure:"dir"`
	StdoutPath string `json:"stdout_path" mapstructure:"stdout_path"`
	StderrPath string `json:"stderr_path" mapstructure:"stderr_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Writers returns rotating io.WriteClosers for the named worker's stdout and
// stderr. Either writer may be nil when no destination is configured for it.
func (c Config) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = c.newRotating(stdout)
	}
	if stderr != "" {
		errW = c.newRotating(stderr)
	}
	return outW, errW, nil
}

func (c Config) newRotating(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Component logger factory. Loggers are cached per component name so every
// subsystem asking for e.g. "task" or "keylock" shares one instance.

var (
	mu      sync.Mutex
	cache   = map[string]*slog.Logger{}
	base    *slog.Logger
	baseSet bool
)

// SetDefault installs the process-wide base logger used by Get and drops the
// component cache. Passing nil resets to a colored text handler on stderr.
func SetDefault(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	baseSet = l != nil
	cache = map[string]*slog.Logger{}
}

// Get returns a logger tagged with the given component name. Instances are
// cached; repeated calls with the same name return the same logger.
func Get(name string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := cache[name]; ok {
		return l
	}
	if !baseSet {
		base = slog.New(NewColorTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
		baseSet = true
	}
	l := base.With("component", name)
	cache[name] = l
	return l
}
