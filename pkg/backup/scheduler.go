package backup

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/assetvault/assetvault/internal/logger"
)

// Scheduler runs a job on a cron schedule. Overlapping runs are skipped
// rather than queued, and a panicking job is logged instead of crashing the
// process.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
}

// NewScheduler registers job under spec (standard five-field cron syntax or
// a descriptor such as "@daily").
func NewScheduler(spec string, job func(ctx context.Context) error, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "backup-scheduler")

	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		),
		cron.WithLogger(cl),
	)

	_, err := c.AddFunc(spec, func() {
		if err := job(context.Background()); err != nil {
			log.Error("Scheduled backup failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Start begins running the job in the background.
func (s *Scheduler) Start() {
	s.log.Info("Backup scheduler started")
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job to finish or for ctx to
// expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("Backup scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug("%s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error("%s: %v %v", msg, err, keysAndValues)
}
