package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetvault/assetvault/pkg/backup"
	"github.com/assetvault/assetvault/pkg/config"
	"github.com/assetvault/assetvault/pkg/metrics"
)

func newLogsCmd(opts *globalOptions) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Load the data directory and show recent log entries",
		Long: `Loads every metadata document (migrating legacy revisions and taking the
load-time backup) and prints the last log entries kept in memory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			printEntries(a.stdout, a.log.Recent(n))
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "lines", "n", 50, "Number of entries (0 = all buffered)")
	return cmd
}

func newPrefsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect the preferences document",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the preferences document (current revision)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			prefs, err := config.ResolveDataDir(&cfg.Storage)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(prefs)
		},
	})
	return cmd
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create a config file or print its schema",
	}

	var (
		force bool
		path  string
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = opts.configPath
			}
			if path == "" {
				written, err := config.InitConfig(force)
				if err != nil {
					return err
				}
				path = written
			} else if err := config.InitConfigToPath(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	initCmd.Flags().StringVarP(&path, "path", "p", "", "Destination (default: --config or the default location)")

	var output string
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.Schema()
			if err != nil {
				return err
			}
			if output == "" {
				_, err := cmd.OutOrStdout().Write(append(schema, '\n'))
				return err
			}
			if err := os.WriteFile(output, schema, 0644); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", output)
			return nil
		},
	}
	schemaCmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")

	cmd.AddCommand(initCmd, schemaCmd)
	return cmd
}

func newMetricsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve Prometheus metrics",
	}

	var port int
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics and run scheduled backups until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg.Metrics.Enabled = true
			if port != 0 {
				cfg.Metrics.Port = port
			}

			// Metrics must be initialized before the stores are built
			a := &app{opts: opts, stdout: cmd.OutOrStdout(), stderr: cmd.ErrOrStderr(), cfg: cfg}
			if a.log, err = config.CreateLogger(&cfg.Logging); err != nil {
				return err
			}
			if err := a.open(cmd.Context()); err != nil {
				_ = a.Close()
				return err
			}
			defer a.Close()

			var sched *backup.Scheduler
			if sched, err = config.CreateBackupScheduler(&cfg.Backup, a.store, a.log); err != nil {
				return err
			}
			if sched != nil {
				sched.Start()
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					_ = sched.Stop(stopCtx)
				}()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(a.stdout, "Serving metrics on :%d/metrics (enabled=%v)\n", a.metrics.Server.Port(), metrics.IsEnabled())
			return a.metrics.Server.Start(ctx)
		},
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "Listen port (default: metrics.port)")

	cmd.AddCommand(serveCmd)
	return cmd
}
