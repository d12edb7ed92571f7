// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runner executes batches of conversion jobs on a fixed pool of
// workers. It reports progress in completion order, supports cooperative
// cancellation per batch or for everything at once, bounds each job with a
// timeout, and consults an optional content cache so unchanged inputs are
// not converted again.
//
// A running conversion is never interrupted. When a job times out it is
// reported as failed and the batch moves on, but the worker that owns it
// stays busy until the conversion function returns.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/mdconv/internal/events"
	"github.com/pdiddy/mdconv/internal/logging"
	"github.com/pdiddy/mdconv/pkg/types"
)

var (
	// ErrClosed is returned when submitting to a runner that has been shut down.
	ErrClosed = errors.New("runner is shut down")

	// ErrJobTimeout marks a job that exceeded the configured timeout.
	ErrJobTimeout = errors.New("conversion timed out")

	// ErrNoConverter is returned when a batch is submitted without a
	// conversion function.
	ErrNoConverter = errors.New("no conversion function")
)

// ConvertFunc converts one job. A non-nil error (or a panic) marks the job
// as failed. ctx is cancelled when the batch is cancelled or the job's
// timeout expires; honouring it is optional.
type ConvertFunc func(ctx context.Context, job types.ConversionJob) error

// ProgressFunc is called after each job resolves, in completion order.
// Returning false cancels the batch.
type ProgressFunc func(completed, total int, current string) bool

// Cache is the subset of the content cache the runner uses.
type Cache interface {
	IsValid(input, output string) bool
	Record(input, output string, options map[string]string) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier publishes batch and job events to n.
func WithNotifier(n *events.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithCache skips jobs whose output is still valid and records successful
// conversions.
func WithCache(c Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithLogger sets the logger. The runner adds component=runner.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// Runner owns a fixed pool of workers shared by every batch submitted to it.
type Runner struct {
	cfg      types.RunnerConfig
	notifier *events.Notifier
	cache    Cache
	logger   *slog.Logger

	work        chan *task
	workers     sync.WaitGroup
	dispatchers sync.WaitGroup
	aggregators sync.WaitGroup

	mu      sync.Mutex
	active  map[uint64]*task
	batches map[string]*Batch
	nextID  uint64
	closed  bool

	shutdownOnce sync.Once
}

// New starts a runner with cfg.Workers workers. Zero values in cfg take the
// defaults (4 workers, 30s timeout); negative values are rejected.
func New(cfg types.RunnerConfig, opts ...Option) (*Runner, error) {
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must be positive, got %d", types.ErrInvalidConfig, cfg.Workers)
	}
	if cfg.JobTimeout < 0 {
		return nil, fmt.Errorf("%w: job timeout must be positive, got %s", types.ErrInvalidConfig, cfg.JobTimeout)
	}
	if cfg.Workers == 0 {
		cfg.Workers = types.DefaultWorkers
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = types.DefaultJobTimeout
	}

	r := &Runner{
		cfg:     cfg,
		logger:  logging.Discard(),
		work:    make(chan *task),
		active:  make(map[uint64]*task),
		batches: make(map[string]*Batch),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "runner"))

	for i := 0; i < cfg.Workers; i++ {
		r.workers.Add(1)
		go r.worker()
	}
	r.logger.Debug("runner started", slog.Int("workers", cfg.Workers), slog.Duration("job_timeout", cfg.JobTimeout))
	return r, nil
}

// Submit queues jobs as a new batch and returns immediately. The batch is
// cancelled when ctx is done.
func (r *Runner) Submit(ctx context.Context, jobs []types.ConversionJob, convert ConvertFunc) (*Batch, error) {
	return r.submit(ctx, jobs, convert, nil)
}

// RunBatch submits jobs and waits for the batch to finish. onProgress may
// be nil. Per-job failures are reported in the result, never as an error.
func (r *Runner) RunBatch(ctx context.Context, jobs []types.ConversionJob, convert ConvertFunc, onProgress ProgressFunc) (types.BatchResult, error) {
	b, err := r.submit(ctx, jobs, convert, onProgress)
	if err != nil {
		return types.BatchResult{}, err
	}
	return b.Wait(), nil
}

func (r *Runner) submit(ctx context.Context, jobs []types.ConversionJob, convert ConvertFunc, onProgress ProgressFunc) (*Batch, error) {
	if convert == nil {
		return nil, ErrNoConverter
	}

	b := newBatch(ctx, r, uuid.NewString(), len(jobs), convert, onProgress)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	for i, job := range jobs {
		job.Index = i
		r.nextID++
		t := &task{id: r.nextID, job: job, batch: b}
		b.tasks = append(b.tasks, t)
		r.active[t.id] = t
	}
	r.batches[b.id] = b
	r.dispatchers.Add(1)
	r.aggregators.Add(1)
	r.mu.Unlock()

	b.stopParent = context.AfterFunc(ctx, func() { b.Cancel() })

	r.logger.Info("batch started", slog.String("batch", b.id), slog.Int("jobs", len(jobs)))
	r.notifier.Publish(events.Event{Kind: events.KindBatchStart, BatchID: b.id, Total: len(jobs)})

	go b.dispatch()
	go b.aggregate()
	return b, nil
}

// CancelAll cancels every active batch. Pending jobs resolve as cancelled
// at once; running jobs are left to finish or time out. Calling it again
// has no further effect on already cancelled batches.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	batches := make([]*Batch, 0, len(r.batches))
	for _, b := range r.batches {
		batches = append(batches, b)
	}
	r.mu.Unlock()

	cancelled := 0
	for _, b := range batches {
		cancelled += b.Cancel()
	}
	r.logger.Info("cancel requested", slog.Int("batches", len(batches)), slog.Int("cancelled_jobs", cancelled))
	r.notifier.Publish(events.Event{Kind: events.KindCancelRequested, Cancelled: cancelled})
}

// ActiveCount returns the number of jobs queued or running and not yet
// resolved, across all batches.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Busy reports whether any job is unresolved.
func (r *Runner) Busy() bool {
	return r.ActiveCount() > 0
}

// Shutdown stops accepting batches and releases the pool. With wait set it
// blocks until every submitted job has resolved and every worker has
// exited; otherwise it cancels all batches first and returns without
// waiting for running conversions. Further calls do nothing.
func (r *Runner) Shutdown(wait bool) {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		if !wait {
			r.CancelAll()
		}
		r.dispatchers.Wait()
		close(r.work)
		if wait {
			r.workers.Wait()
			r.aggregators.Wait()
		}

		r.logger.Info("runner shut down", slog.Bool("waited", wait))
		r.notifier.Publish(events.Event{Kind: events.KindRunnerShutdown})
	})
}

func (r *Runner) release(t *task) {
	r.mu.Lock()
	delete(r.active, t.id)
	r.mu.Unlock()
}

func (r *Runner) forget(b *Batch) {
	r.mu.Lock()
	delete(r.batches, b.id)
	r.mu.Unlock()
}

func (r *Runner) worker() {
	defer r.workers.Done()
	for t := range r.work {
		r.execute(t)
	}
}

func (r *Runner) execute(t *task) {
	b := t.batch
	if b.ctx.Err() != nil {
		b.Cancel()
		return
	}
	if !t.transition(types.StatePending, types.StateRunning) {
		return
	}

	log := r.logger.With(slog.String("batch", b.id), slog.String("input", t.job.Input))
	log.Debug("job started")

	start := time.Now()
	timeout := r.cfg.JobTimeout
	jobCtx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()

	timer := time.AfterFunc(timeout, func() {
		if t.transition(types.StateRunning, types.StateFailed) {
			err := fmt.Errorf("%w after %s", ErrJobTimeout, timeout)
			log.Warn("job timed out", slog.Duration("timeout", timeout))
			b.resolve(t, t.result(types.OutcomeFailure, "", err, time.Since(start)))
		}
	})

	err := invoke(jobCtx, b.convert, t.job)
	timer.Stop()
	elapsed := time.Since(start)

	// The parent context may be done before its AfterFunc has marked the
	// batch cancelled. Mark it here so this result is omitted, not failed.
	if b.ctx.Err() != nil {
		b.Cancel()
	}

	if err != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrJobTimeout) {
			err = fmt.Errorf("%w after %s: %w", ErrJobTimeout, timeout, err)
		}
		if t.transition(types.StateRunning, types.StateFailed) {
			log.Debug("job failed", slog.String("error", err.Error()), slog.Duration("elapsed", elapsed))
			b.resolve(t, t.result(types.OutcomeFailure, "", err, elapsed))
		}
		return
	}

	if t.transition(types.StateRunning, types.StateCompleted) {
		if r.cache != nil {
			if err := r.cache.Record(t.job.Input, t.job.Output, t.job.Options); err != nil {
				log.Warn("cache update failed", slog.String("error", err.Error()))
			}
		}
		log.Debug("job completed", slog.Duration("elapsed", elapsed))
		b.resolve(t, t.result(types.OutcomeSuccess, "converted", nil, elapsed))
		return
	}
	log.Debug("late result dropped", slog.String("state", t.load().String()))
}

func invoke(ctx context.Context, fn ConvertFunc, job types.ConversionJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("conversion panicked: %v", p)
		}
	}()
	return fn(ctx, job)
}
