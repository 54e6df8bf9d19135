package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/supervisr"
)

func newServeCmd() *cobra.Command {
	var f ServeFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervising daemon",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(f)
		},
	}
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "config file (TOML or YAML)")
	cmd.Flags().StringVar(&f.Listen, "listen", ":8080", "control API listen address")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "/api", "control API base path")
	cmd.Flags().StringVar(&f.Metrics, "metrics-listen", "", "Prometheus listen address (disabled when empty)")
	return cmd
}

func runServe(f ServeFlags) error {
	reg := supervisr.New()
	defer reg.Close()

	listen, basePath, metricsAddr := f.Listen, f.BasePath, f.Metrics
	var autoStart []string
	var startTimeouts map[string]time.Duration

	if f.ConfigPath != "" {
		cfg, err := supervisr.LoadConfig(f.ConfigPath)
		if err != nil {
			return err
		}
		if cfg.Server.Listen != "" {
			listen = cfg.Server.Listen
		}
		if cfg.Server.BasePath != "" {
			basePath = cfg.Server.BasePath
		}
		if cfg.Server.MetricsListen != "" {
			metricsAddr = cfg.Server.MetricsListen
		}
		if cfg.Store.Enabled {
			st, err := supervisr.NewStoreFromDSN(cfg.Store.DSN)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()
			if err := reg.SetStore(st); err != nil {
				return fmt.Errorf("store schema: %w", err)
			}
		}
		if len(cfg.History.Sinks) > 0 {
			sinks := make([]supervisr.HistorySink, 0, len(cfg.History.Sinks))
			for _, dsn := range cfg.History.Sinks {
				s, err := supervisr.NewHistorySinkFromDSN(dsn)
				if err != nil {
					return fmt.Errorf("open history sink: %w", err)
				}
				defer func() { _ = s.Close() }()
				sinks = append(sinks, s)
			}
			reg.SetHistorySinks(sinks...)
		}
		startTimeouts = make(map[string]time.Duration)
		for _, spec := range cfg.Specs() {
			if !reg.Create(spec) {
				return fmt.Errorf("create task %s failed", spec.Name)
			}
			startTimeouts[spec.Name] = spec.StartTimeout
		}
		autoStart = cfg.AutoStartNames()
	}

	if err := supervisr.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if metricsAddr != "" {
		go func() { _ = supervisr.ServeMetrics(metricsAddr) }()
	}

	srv, err := supervisr.NewHTTPServer(listen, basePath, reg)
	if err != nil {
		return err
	}

	for _, name := range autoStart {
		if !reg.Start(name, startTimeouts[name]) {
			_, _ = fmt.Fprintf(os.Stderr, "auto-start failed: %s\n", name)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	return nil
}
