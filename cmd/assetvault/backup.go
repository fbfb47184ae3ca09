package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/assetvault/assetvault/pkg/config"
)

func newBackupCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot, list or schedule metadata backups",
		Long: `Without a subcommand, takes a snapshot of the metadata documents now.
Snapshots live under <data-dir>/metadata/backups and are rotated to
backup.keep entries; backup.s3 mirrors each new snapshot to a bucket.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.store.Backups().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintln(a.stdout, "Nothing to back up")
				return nil
			}
			fmt.Fprintf(a.stdout, "Snapshot written to %s\n", res.Path)
			for _, p := range res.Pruned {
				fmt.Fprintf(a.stdout, "  pruned %s\n", p)
			}
			return nil
		},
	}

	cmd.AddCommand(newBackupListCmd(opts), newBackupScheduleCmd(opts))
	return cmd
}

func newBackupListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.store.Backups().List()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(a.stdout, name)
			}
			return nil
		},
	}
}

func newBackupScheduleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run backups on backup.schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := config.CreateBackupScheduler(&a.cfg.Backup, a.store, a.log)
			if err != nil {
				return err
			}
			if sched == nil {
				return fmt.Errorf("backup.schedule is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched.Start()
			fmt.Fprintf(a.stdout, "Backing up %s on %q; press Ctrl-C to stop\n", a.store.Root(), a.cfg.Backup.Schedule)
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return sched.Stop(stopCtx)
		},
	}
}
