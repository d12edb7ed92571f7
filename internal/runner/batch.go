// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runner

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pdiddy/mdconv/internal/events"
	"github.com/pdiddy/mdconv/pkg/types"
)

// Batch is a handle on a submitted set of jobs.
type Batch struct {
	id         string
	runner     *Runner
	tasks      []*task
	convert    ConvertFunc
	onProgress ProgressFunc

	ctx        context.Context
	cancelCtx  context.CancelFunc
	stopParent func() bool

	// results has room for one message per task, so resolving never blocks.
	results    chan types.JobResult
	cancelled  atomic.Bool
	completed  atomic.Int64

	started time.Time
	done    chan struct{}
	result  types.BatchResult
}

func newBatch(parent context.Context, r *Runner, id string, total int, convert ConvertFunc, onProgress ProgressFunc) *Batch {
	ctx, cancel := context.WithCancel(parent)
	return &Batch{
		id:         id,
		runner:     r,
		tasks:      make([]*task, 0, total),
		convert:    convert,
		onProgress: onProgress,
		ctx:        ctx,
		cancelCtx:  cancel,
		results:    make(chan types.JobResult, total),
		started:    time.Now(),
		done:       make(chan struct{}),
	}
}

// ID returns the batch identifier.
func (b *Batch) ID() string { return b.id }

// Done is closed once every job in the batch is accounted for.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Wait blocks until the batch finishes and returns its result.
func (b *Batch) Wait() types.BatchResult {
	<-b.done
	return b.result
}

// Cancel stops dispatching, resolves every pending job as cancelled, and
// returns how many jobs it cancelled. Running jobs are left alone. Results
// that arrive after cancellation are listed as omitted.
func (b *Batch) Cancel() int {
	select {
	case <-b.done:
		return 0
	default:
	}

	if !b.cancelled.CompareAndSwap(false, true) {
		return 0
	}
	b.cancelCtx()

	n := 0
	for _, t := range b.tasks {
		if t.transition(types.StatePending, types.StateCancelled) {
			b.resolve(t, t.result(types.OutcomeCancelled, "cancelled", nil, 0))
			n++
		}
	}
	b.runner.logger.Info("batch cancelled", slog.String("batch", b.id), slog.Int("pending_cancelled", n))
	// Listeners may call back into Cancel or CancelAll; the flag above
	// makes those calls return at once.
	b.runner.notifier.Publish(events.Event{
		Kind:      events.KindBatchCancelled,
		BatchID:   b.id,
		Completed: int(b.completed.Load()),
		Total:     len(b.tasks),
		Cancelled: n,
	})
	return n
}

func (b *Batch) resolve(t *task, res types.JobResult) {
	b.runner.release(t)
	b.results <- res
}

// dispatch feeds tasks to the pool in submission order. Cache hits are
// resolved here without ever reaching a worker.
func (b *Batch) dispatch() {
	r := b.runner
	defer r.dispatchers.Done()

	for _, t := range b.tasks {
		if b.ctx.Err() != nil {
			b.Cancel()
			return
		}
		if r.cache != nil && r.cache.IsValid(t.job.Input, t.job.Output) {
			if t.transition(types.StatePending, types.StateCompleted) {
				res := t.result(types.OutcomeSuccess, "cached", nil, 0)
				res.Cached = true
				b.resolve(t, res)
			}
			continue
		}
		select {
		case r.work <- t:
		case <-b.ctx.Done():
			b.Cancel()
			return
		}
	}
}

// aggregate is the only reader of results and the only writer of the
// batch result.
func (b *Batch) aggregate() {
	r := b.runner
	defer r.aggregators.Done()
	defer close(b.done)

	total := len(b.tasks)
	b.result = types.BatchResult{
		BatchID:   b.id,
		Total:     total,
		StartedAt: b.started,
		Successes: []types.SuccessItem{},
		Errors:    []types.ErrorItem{},
	}

	for i := 0; i < total; i++ {
		b.record(<-b.results)
	}

	b.stopParent()
	r.forget(b)
	cancelled := b.cancelled.Load()
	b.cancelCtx()

	b.result.Cancelled = cancelled
	b.result.Elapsed = time.Since(b.started)

	r.logger.Info("batch finished",
		slog.String("batch", b.id),
		slog.Int("succeeded", len(b.result.Successes)),
		slog.Int("failed", len(b.result.Errors)),
		slog.Int("omitted", len(b.result.Omitted)),
		slog.Bool("cancelled", cancelled),
		slog.Duration("elapsed", b.result.Elapsed))

	if !cancelled {
		r.notifier.Publish(events.Event{
			Kind:      events.KindBatchComplete,
			BatchID:   b.id,
			Total:     total,
			Succeeded: len(b.result.Successes),
			Failed:    len(b.result.Errors),
		})
	}
}

func (b *Batch) record(res types.JobResult) {
	if res.Outcome == types.OutcomeCancelled || b.cancelled.Load() {
		b.result.Omitted = append(b.result.Omitted, res.Job.Input)
		return
	}

	ev := events.Event{
		Kind:    events.KindItemComplete,
		BatchID: b.id,
		Input:   res.Job.Input,
		Output:  res.Job.Output,
		Cached:  res.Cached,
	}
	if res.Outcome == types.OutcomeSuccess {
		b.result.Successes = append(b.result.Successes, types.SuccessItem{
			Input:   res.Job.Input,
			Output:  res.Job.Output,
			Message: res.Message,
			Cached:  res.Cached,
			Elapsed: res.Elapsed,
		})
		ev.Success = true
		ev.Message = res.Message
	} else {
		b.result.Errors = append(b.result.Errors, types.ErrorItem{Input: res.Job.Input, Error: res.Err})
		ev.Err = res.Err
	}

	completed := int(b.completed.Add(1))
	total := len(b.tasks)
	r := b.runner
	r.notifier.Publish(ev)
	r.notifier.Publish(events.Event{
		Kind:      events.KindItemProgress,
		BatchID:   b.id,
		Completed: completed,
		Total:     total,
		Input:     res.Job.Input,
	})

	if b.onProgress != nil && !b.onProgress(completed, total, res.Job.Input) {
		b.Cancel()
	}
}
