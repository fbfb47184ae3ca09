// Package task runs long operations (migration, import, export, backups) in
// the background and tracks their outcome.
//
// Every submitted task gets a fresh identifier and starts Running. It then
// moves exactly once to Completed, Failed or Cancelled, and the status
// callback given at submission is invoked exactly once, for that transition.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/assetvault/assetvault/internal/logger"
	"github.com/assetvault/assetvault/pkg/metrics"
	"github.com/assetvault/assetvault/pkg/vaulterr"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Func is the work of a task. It should return promptly once ctx is done.
type Func func(ctx context.Context) error

// StatusFunc observes a task's terminal transition. message is the failure
// message for StatusFailed and empty otherwise.
type StatusFunc func(id uuid.UUID, status Status, message string)

// Info is a point-in-time view of a task.
type Info struct {
	ID       uuid.UUID
	Name     string
	Status   Status
	Error    string
	Started  time.Time
	Finished time.Time
}

// Options configures a Runner. Zero values are valid.
type Options struct {
	// MaxConcurrent bounds how many tasks execute at once; 0 means no limit.
	// Tasks over the limit stay Running while they wait for a slot.
	MaxConcurrent int

	// Log receives task lifecycle messages (default: logger.Nop())
	Log *logger.Logger

	// Metrics records submissions and outcomes (default: no-op)
	Metrics metrics.TaskMetrics
}

type entry struct {
	name     string
	cancel   context.CancelFunc
	onStatus StatusFunc
	done     chan struct{}

	// guarded by Runner.mu
	status   Status
	message  string
	started  time.Time
	finished time.Time
}

// Runner is a registry of cancellable background tasks.
//
// Thread Safety:
// All methods are safe for concurrent use. Status callbacks run on the
// task's goroutine (or the caller of Abort) without any Runner lock held, so
// they may call back into the Runner.
type Runner struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*entry
	slots   chan struct{}
	wg      sync.WaitGroup
	log     *logger.Logger
	metrics metrics.TaskMetrics
}

// NewRunner creates an empty Runner.
func NewRunner(opts Options) *Runner {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopTaskMetrics()
	}

	r := &Runner{
		tasks:   make(map[uuid.UUID]*entry),
		log:     opts.Log.With("component", "tasks"),
		metrics: opts.Metrics,
	}
	if opts.MaxConcurrent > 0 {
		r.slots = make(chan struct{}, opts.MaxConcurrent)
	}
	return r
}

// Submit starts fn in its own goroutine and returns the task identifier.
//
// Parameters:
//   - ctx: Parent context; cancelling it cancels the task
//   - name: Human-readable label used in logs and Info
//   - fn: The work
//   - onStatus: Terminal transition observer (may be nil)
func (r *Runner) Submit(ctx context.Context, name string, fn Func, onStatus StatusFunc) uuid.UUID {
	id := uuid.New()
	taskCtx, cancel := context.WithCancel(ctx)

	e := &entry{
		name:     name,
		cancel:   cancel,
		onStatus: onStatus,
		done:     make(chan struct{}),
		status:   StatusRunning,
		started:  time.Now(),
	}

	r.mu.Lock()
	r.tasks[id] = e
	r.mu.Unlock()

	r.metrics.RecordSubmitted()
	r.log.Debug("Task %s (%s) submitted", id, name)

	r.wg.Add(1)
	go r.run(taskCtx, id, e, fn)
	return id
}

func (r *Runner) run(ctx context.Context, id uuid.UUID, e *entry, fn Func) {
	defer r.wg.Done()
	defer close(e.done)
	defer e.cancel()

	if r.slots != nil {
		select {
		case r.slots <- struct{}{}:
			defer func() { <-r.slots }()
		case <-ctx.Done():
			r.finish(id, e, StatusCancelled, "")
			return
		}
	}

	err := call(ctx, fn)
	switch {
	case err == nil:
		r.finish(id, e, StatusCompleted, "")
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		r.finish(id, e, StatusCancelled, "")
	default:
		r.finish(id, e, StatusFailed, err.Error())
	}
}

// call runs fn, turning a panic into an error.
func call(ctx context.Context, fn Func) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx)
}

// finish records the terminal transition unless one already happened, and
// notifies the observer. It reports whether this call made the transition.
func (r *Runner) finish(id uuid.UUID, e *entry, status Status, message string) bool {
	r.mu.Lock()
	if e.status.Terminal() {
		r.mu.Unlock()
		return false
	}
	e.status = status
	e.message = message
	e.finished = time.Now()
	elapsed := e.finished.Sub(e.started)
	r.mu.Unlock()

	r.metrics.RecordFinished(string(status), elapsed)
	if status == StatusFailed {
		r.log.Warn("Task %s (%s) failed after %s: %s", id, e.name, elapsed, message)
	} else {
		r.log.Info("Task %s (%s) %s after %s", id, e.name, status, elapsed)
	}

	if e.onStatus != nil {
		e.onStatus(id, status, message)
	}
	return true
}

func (r *Runner) lookup(op string, id uuid.UUID) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return nil, vaulterr.NotFound(op+" task", id.String())
	}
	return e, nil
}

// Abort requests cancellation of a running task and marks it Cancelled right
// away; the work itself stops at its next cancellation check. Aborting a task
// that already finished changes nothing and returns its final status.
func (r *Runner) Abort(id uuid.UUID) (Status, error) {
	e, err := r.lookup("abort", id)
	if err != nil {
		return "", err
	}

	if r.finish(id, e, StatusCancelled, "") {
		e.cancel()
		return StatusCancelled, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return e.status, nil
}

// Status returns the current status of a task.
func (r *Runner) Status(id uuid.UUID) (Status, error) {
	e, err := r.lookup("status", id)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.status, nil
}

// Error returns the failure message of a task. The boolean is false unless
// the task failed.
func (r *Runner) Error(id uuid.UUID) (string, bool, error) {
	e, err := r.lookup("error", id)
	if err != nil {
		return "", false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.message, e.status == StatusFailed, nil
}

// Info returns a snapshot of one task.
func (r *Runner) Info(id uuid.UUID) (Info, error) {
	e, err := r.lookup("info", id)
	if err != nil {
		return Info{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.info(id), nil
}

func (e *entry) info(id uuid.UUID) Info {
	return Info{
		ID:       id,
		Name:     e.name,
		Status:   e.status,
		Error:    e.message,
		Started:  e.started,
		Finished: e.finished,
	}
}

// List returns every known task, oldest first.
func (r *Runner) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.tasks))
	for id, e := range r.tasks {
		out = append(out, e.info(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Wait blocks until the task's goroutine has returned or ctx is done, and
// returns the task's status at that point.
func (r *Runner) Wait(ctx context.Context, id uuid.UUID) (Status, error) {
	e, err := r.lookup("wait", id)
	if err != nil {
		return "", err
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return r.Status(id)
}

// Forget drops a finished task from the registry. Later queries for it fail
// with NotFound. Forgetting a running task is a Conflict.
func (r *Runner) Forget(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return vaulterr.NotFound("forget task", id.String())
	}
	if !e.status.Terminal() {
		return vaulterr.Conflictf("forget task", id.String(), "task is still running")
	}
	delete(r.tasks, id)
	return nil
}

// Shutdown aborts every running task and waits for their goroutines to
// return, or for ctx to be done.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]uuid.UUID, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_, _ = r.Abort(id)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
