package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/assetvault/assetvault/internal/logger"
	"github.com/assetvault/assetvault/internal/ratelimiter"
	"github.com/assetvault/assetvault/pkg/config"
	"github.com/assetvault/assetvault/pkg/fsguard"
	"github.com/assetvault/assetvault/pkg/preferences"
	"github.com/assetvault/assetvault/pkg/storage"
	"github.com/assetvault/assetvault/pkg/task"
)

// app is the wiring shared by commands that touch the data directory.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *config.MetricsResult
	prefs   preferences.Preferences
	store   *storage.Storage
	tasks   *task.Runner

	opts   *globalOptions
	stdout io.Writer
	stderr io.Writer
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(opts.logLevel)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openApp loads configuration, opens the data directory and loads every
// store. Callers must Close the app.
func openApp(cmd *cobra.Command, opts *globalOptions) (*app, error) {
	ctx := cmd.Context()

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	log, err := config.CreateLogger(&cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		opts:   opts,
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	}

	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	a.metrics = config.InitializeMetrics(&a.cfg.Metrics, a.log)

	prefs, err := config.ResolveDataDir(&a.cfg.Storage)
	if err != nil {
		return err
	}
	if a.opts.dataDir != "" {
		prefs.DataDirPath = a.opts.dataDir
	}
	a.prefs = prefs

	a.store, err = config.CreateStorage(ctx, a.cfg, prefs.DataDirPath, a.log, a.metrics)
	if err != nil {
		return err
	}
	if err := a.store.LoadAll(ctx); err != nil {
		return fmt.Errorf("failed to load %s: %w", a.store.Root(), err)
	}

	a.tasks = config.CreateTaskRunner(&a.cfg.Tasks, a.log, a.metrics)
	return nil
}

// Close stops background tasks, releases the data directory, prints the
// requested log tail and flushes the logger.
func (a *app) Close() error {
	var errs []error

	if a.tasks != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		errs = append(errs, a.tasks.Shutdown(ctx))
		cancel()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}

	if a.opts.tailLogs > 0 {
		printEntries(a.stderr, a.log.Recent(a.opts.tailLogs))
	}

	errs = append(errs, a.log.Close())
	return errors.Join(errs...)
}

func printEntries(w io.Writer, entries []logger.Entry) {
	for _, e := range entries {
		fmt.Fprintln(w, e.String())
	}
}

// runTask runs work on the task runner with a progress bar, aborting it on
// interrupt. It returns once the work has actually stopped.
func (a *app) runTask(ctx context.Context, name string, work func(ctx context.Context, progress fsguard.ProgressFunc) error) error {
	bar := newProgressBar(a.stderr, name, a.opts.noProgress)
	defer bar.Finish()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	finished := make(chan struct{})
	id := a.tasks.Submit(context.Background(), name, func(ctx context.Context) error {
		return work(ctx, ratelimiter.Progress(bar.Update, progressUpdatesPerSecond))
	}, func(uuid.UUID, task.Status, string) {
		close(finished)
	})

	select {
	case <-finished:
	case <-sigCtx.Done():
		if st, _ := a.tasks.Abort(id); st == task.StatusCancelled {
			fmt.Fprintf(a.stderr, "\nCancelling %s...\n", name)
		}
	}

	status, err := a.tasks.Wait(context.Background(), id)
	if err != nil {
		return err
	}

	switch status {
	case task.StatusCompleted:
		return nil
	case task.StatusCancelled:
		return fmt.Errorf("%s cancelled", name)
	default:
		msg, _, _ := a.tasks.Error(id)
		return fmt.Errorf("%s failed: %s", name, msg)
	}
}
