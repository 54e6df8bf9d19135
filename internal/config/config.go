package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/supervisr/internal/logger"
	"github.com/loykin/supervisr/internal/task"
)

// Config is the daemon's top-level file configuration (TOML or YAML,
// selected by extension).
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	History HistoryConfig `mapstructure:"history"`
	LockDir string        `mapstructure:"lock_dir"`
	Log     *LogConfig    `mapstructure:"log"`
	Tasks   []TaskConfig  `mapstructure:"tasks"`
}

type ServerConfig struct {
	Listen        string `mapstructure:"listen"`
	BasePath      string `mapstructure:"base_path"`
	MetricsListen string `mapstructure:"metrics_listen"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

type HistoryConfig struct {
	Sinks []string `mapstructure:"sinks"` // DSNs, see history/factory
}

type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Stdout     string `mapstructure:"stdout"`
	Stderr     string `mapstructure:"stderr"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type TaskConfig struct {
	Name         string        `mapstructure:"name"`
	Command      string        `mapstructure:"command"`
	WorkDir      string        `mapstructure:"work_dir"`
	Env          []string      `mapstructure:"env"`
	RuntimeDir   string        `mapstructure:"runtime_dir"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	AutoStart    bool          `mapstructure:"auto_start"`
	Log          *LogConfig    `mapstructure:"log"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.Name == "" {
			return fmt.Errorf("task with empty name")
		}
		if t.Command == "" {
			return fmt.Errorf("task %s has no command", t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("duplicate task name %s", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}

// Specs converts the configured tasks into task.Spec values, applying the
// global log settings where a task has none of its own.
func (c *Config) Specs() []task.Spec {
	specs := make([]task.Spec, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		lc := t.Log
		if lc == nil {
			lc = c.Log
		}
		spec := task.Spec{
			Name:         t.Name,
			Command:      t.Command,
			WorkDir:      t.WorkDir,
			Env:          t.Env,
			RuntimeDir:   t.RuntimeDir,
			StartTimeout: t.StartTimeout,
		}
		if lc != nil {
			spec.Log = logger.Config{
				Dir:        lc.Dir,
				StdoutPath: lc.Stdout,
				StderrPath: lc.Stderr,
				MaxSizeMB:  lc.MaxSizeMB,
				MaxBackups: lc.MaxBackups,
				MaxAgeDays: lc.MaxAgeDays,
				Compress:   lc.Compress,
			}
		}
		specs = append(specs, spec)
	}
	return specs
}

// AutoStartNames returns the names of tasks marked auto_start.
func (c *Config) AutoStartNames() []string {
	var names []string
	for _, t := range c.Tasks {
		if t.AutoStart {
			names = append(names, t.Name)
		}
	}
	return names
}
