package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/supervisr/pkg/client"
)

const defaultAPIUrl = "http://127.0.0.1:8080/api"

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "supervisr",
		Short:         "Supervise worker processes with start handshakes and keyed locks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newCreateCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newRestartCmd())
	root.AddCommand(newRemoveCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newListCmd())
	return root
}

func apiClient(f APIFlags) *client.Client {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	return client.New(cfg)
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", defaultAPIUrl, "daemon API base URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 0, "API request timeout")
}

func newCreateCmd() *cobra.Command {
	var f CreateFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new task with the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreate(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.Name, "name", "", "task name (required)")
	cmd.Flags().StringVar(&f.Command, "command", "", "worker command line (required)")
	cmd.Flags().StringVar(&f.WorkDir, "workdir", "", "worker working directory")
	cmd.Flags().StringVar(&f.LogDir, "log-dir", "", "directory for worker stdout/stderr logs")
	cmd.Flags().DurationVar(&f.StartTimeout, "start-timeout", 0, "ready handshake timeout")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("command")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func runCreate(ctx context.Context, f CreateFlags) error {
	spec := client.TaskSpec{
		Name:         f.Name,
		Command:      f.Command,
		WorkDir:      f.WorkDir,
		StartTimeout: f.StartTimeout,
	}
	if f.LogDir != "" {
		spec.Log = &client.TaskLog{Dir: f.LogDir}
	}
	return apiClient(f.APIFlags).Create(ctx, spec)
}

func newStartCmd() *cobra.Command {
	var f TaskFlags
	cmd := &cobra.Command{
		Use:   "start NAME",
		Short: "Start a registered task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			return apiClient(f.APIFlags).Start(cmd.Context(), f.Name, f.Timeout)
		},
	}
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "ready handshake timeout")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newStopCmd() *cobra.Command {
	var f TaskFlags
	cmd := &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			return apiClient(f.APIFlags).Stop(cmd.Context(), f.Name)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newRestartCmd() *cobra.Command {
	var f TaskFlags
	cmd := &cobra.Command{
		Use:   "restart NAME",
		Short: "Restart a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			return apiClient(f.APIFlags).Restart(cmd.Context(), f.Name, f.Timeout)
		},
	}
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "ready handshake timeout")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var f TaskFlags
	cmd := &cobra.Command{
		Use:   "remove NAME",
		Short: "Stop and unregister a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Name = args[0]
			return apiClient(f.APIFlags).Remove(cmd.Context(), f.Name)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newStatusCmd() *cobra.Command {
	var f TaskFlags
	cmd := &cobra.Command{
		Use:   "status NAME",
		Short: "Show one task's snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := apiClient(f.APIFlags).Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func newListCmd() *cobra.Command {
	var f TaskFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show snapshots of every task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := apiClient(f.APIFlags).List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(all)
		},
	}
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
