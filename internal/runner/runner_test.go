// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/mdconv/internal/events"
	"github.com/pdiddy/mdconv/pkg/types"
)

func makeJobs(n int) []types.ConversionJob {
	jobs := make([]types.ConversionJob, n)
	for i := range jobs {
		jobs[i] = types.ConversionJob{
			Input:  fmt.Sprintf("in/%d.pdf", i+1),
			Output: fmt.Sprintf("out/%d.md", i+1),
		}
	}
	return jobs
}

func newRunner(t *testing.T, workers int, timeout time.Duration, opts ...Option) *Runner {
	t.Helper()
	r, err := New(types.RunnerConfig{Workers: workers, JobTimeout: timeout}, opts...)
	require.NoError(t, err)
	return r
}

func succeed(context.Context, types.ConversionJob) error { return nil }

func assertAccounted(t *testing.T, res types.BatchResult) {
	t.Helper()
	assert.Equal(t, res.Total, res.Resolved(), "every job must be accounted for: %+v", res)
}

// fakeCache answers IsValid from a fixed set and counts Record calls.
type fakeCache struct {
	mu      sync.Mutex
	valid   map[string]bool
	records []string
	err     error
}

func (c *fakeCache) IsValid(input, _ string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid[input]
}

func (c *fakeCache) Record(input, _ string, _ map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, input)
	return c.err
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     types.RunnerConfig
		wantErr bool
	}{
		{name: "defaults", cfg: types.RunnerConfig{}},
		{name: "explicit", cfg: types.RunnerConfig{Workers: 2, JobTimeout: time.Second}},
		{name: "negative workers", cfg: types.RunnerConfig{Workers: -1}, wantErr: true},
		{name: "negative timeout", cfg: types.RunnerConfig{JobTimeout: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Positive(t, r.cfg.Workers)
			assert.Positive(t, r.cfg.JobTimeout)
			r.Shutdown(true)
		})
	}
}

// Five jobs on two workers, all succeed.
func TestRunBatch_AllSucceed(t *testing.T) {
	r := newRunner(t, 2, time.Second)
	defer r.Shutdown(true)

	var progress []int
	res, err := r.RunBatch(context.Background(), makeJobs(5), succeed, func(completed, total int, _ string) bool {
		assert.Equal(t, 5, total)
		progress = append(progress, completed)
		return true
	})
	require.NoError(t, err)

	assert.Len(t, res.Successes, 5)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Omitted)
	assert.False(t, res.Cancelled)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, progress)
	assertAccounted(t, res)
	assert.Equal(t, 0, r.ActiveCount())
}

// The second job fails; the rest still succeed.
func TestRunBatch_OneFailure(t *testing.T) {
	r := newRunner(t, 2, time.Second)
	defer r.Shutdown(true)

	jobs := makeJobs(5)
	res, err := r.RunBatch(context.Background(), jobs, func(_ context.Context, job types.ConversionJob) error {
		if job.Index == 1 {
			return errors.New("unreadable document")
		}
		return nil
	}, nil)
	require.NoError(t, err)

	assert.Len(t, res.Successes, 4)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, jobs[1].Input, res.Errors[0].Input)
	assert.Contains(t, res.Errors[0].Error, "unreadable document")
	assert.True(t, res.HasFailures())
	assertAccounted(t, res)
}

func TestRunBatch_PanicIsFailure(t *testing.T) {
	r := newRunner(t, 1, time.Second)
	defer r.Shutdown(true)

	res, err := r.RunBatch(context.Background(), makeJobs(2), func(_ context.Context, job types.ConversionJob) error {
		if job.Index == 0 {
			panic("converter bug")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error, "converter bug")
	assert.Len(t, res.Successes, 1)
}

// Progress returns false after the second completion; jobs not yet started
// never run.
func TestRunBatch_ProgressCancels(t *testing.T) {
	n := events.NewNotifier(nil)
	gate := make(chan struct{})
	var gateOnce sync.Once
	openGate := func() { gateOnce.Do(func() { close(gate) }) }
	defer openGate()
	n.Subscribe(events.ListenerFunc(func(ev events.Event) error {
		if ev.Kind == events.KindBatchCancelled {
			openGate()
		}
		return nil
	}))

	r := newRunner(t, 1, 5*time.Second, WithNotifier(n))
	defer r.Shutdown(true)

	var mu sync.Mutex
	ran := map[int]bool{}
	convert := func(_ context.Context, job types.ConversionJob) error {
		mu.Lock()
		ran[job.Index] = true
		mu.Unlock()
		if job.Index == 2 {
			select {
			case <-gate:
			case <-time.After(5 * time.Second):
			}
		}
		return nil
	}

	res, err := r.RunBatch(context.Background(), makeJobs(4), convert, func(completed, _ int, _ string) bool {
		return completed < 2
	})
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Len(t, res.Successes, 2)
	assert.Empty(t, res.Errors)
	assert.NotEmpty(t, res.Omitted)
	assertAccounted(t, res)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, ran[3], "the fourth job must never start")
}

// One job hangs past the timeout; it is reported as a failure while the
// rest of the batch completes.
func TestRunBatch_Timeout(t *testing.T) {
	r := newRunner(t, 2, 50*time.Millisecond)
	release := make(chan struct{})
	defer func() {
		close(release)
		r.Shutdown(true)
	}()

	jobs := makeJobs(3)
	res, err := r.RunBatch(context.Background(), jobs, func(_ context.Context, job types.ConversionJob) error {
		if job.Index == 0 {
			<-release
		}
		return nil
	}, nil)
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, jobs[0].Input, res.Errors[0].Input)
	assert.Contains(t, res.Errors[0].Error, ErrJobTimeout.Error())
	assert.Len(t, res.Successes, 2)
	assert.False(t, res.Cancelled)
	assertAccounted(t, res)
	assert.Equal(t, 0, r.ActiveCount(), "a timed-out job is resolved even while its worker is busy")
}

func TestRunBatch_CooperativeTimeoutIsTimeoutError(t *testing.T) {
	r := newRunner(t, 1, 20*time.Millisecond)
	defer r.Shutdown(true)

	res, err := r.RunBatch(context.Background(), makeJobs(1), func(ctx context.Context, _ types.ConversionJob) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error, ErrJobTimeout.Error())
}

func TestRunBatch_CacheHitsSkipConversion(t *testing.T) {
	jobs := makeJobs(3)
	c := &fakeCache{valid: map[string]bool{jobs[0].Input: true, jobs[2].Input: true}}
	r := newRunner(t, 2, time.Second, WithCache(c))
	defer r.Shutdown(true)

	var calls atomic.Int32
	res, err := r.RunBatch(context.Background(), jobs, func(context.Context, types.ConversionJob) error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, res.Successes, 3)
	assert.Equal(t, 2, res.CachedCount())
	assert.Equal(t, []string{jobs[1].Input}, c.records, "only converted jobs are recorded")
}

func TestRunBatch_CacheRecordFailureIsNotFatal(t *testing.T) {
	c := &fakeCache{valid: map[string]bool{}, err: errors.New("disk full")}
	r := newRunner(t, 1, time.Second, WithCache(c))
	defer r.Shutdown(true)

	res, err := r.RunBatch(context.Background(), makeJobs(2), succeed, nil)
	require.NoError(t, err)
	assert.Len(t, res.Successes, 2)
	assert.Empty(t, res.Errors)
}

func TestRunBatch_FailedJobsAreNotCached(t *testing.T) {
	c := &fakeCache{valid: map[string]bool{}}
	r := newRunner(t, 1, time.Second, WithCache(c))
	defer r.Shutdown(true)

	_, err := r.RunBatch(context.Background(), makeJobs(2), func(context.Context, types.ConversionJob) error {
		return errors.New("bad input")
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, c.records)
}

func TestRunBatch_Empty(t *testing.T) {
	r := newRunner(t, 1, time.Second)
	defer r.Shutdown(true)

	res, err := r.RunBatch(context.Background(), nil, succeed, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.False(t, res.Cancelled)
	assertAccounted(t, res)
}

func TestRunBatch_NoConverter(t *testing.T) {
	r := newRunner(t, 1, time.Second)
	defer r.Shutdown(true)

	_, err := r.RunBatch(context.Background(), makeJobs(1), nil, nil)
	assert.ErrorIs(t, err, ErrNoConverter)
}

func TestRunBatch_ContextCancelledBeforeSubmit(t *testing.T) {
	r := newRunner(t, 2, time.Second)
	defer r.Shutdown(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	res, err := r.RunBatch(ctx, makeJobs(4), func(context.Context, types.ConversionJob) error {
		calls.Add(1)
		return nil
	}, nil)
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Len(t, res.Omitted, 4)
	assert.Equal(t, int32(0), calls.Load())
	assertAccounted(t, res)
}

func TestCancelAll(t *testing.T) {
	n := events.NewNotifier(nil)
	stream := n.Stream(64)
	defer stream.Close()

	r := newRunner(t, 1, 5*time.Second, WithNotifier(n))
	defer r.Shutdown(true)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	b, err := r.Submit(context.Background(), makeJobs(5), func(_ context.Context, job types.ConversionJob) error {
		calls.Add(1)
		if job.Index == 0 {
			close(started)
			<-release
		}
		return nil
	})
	require.NoError(t, err)

	<-started
	assert.True(t, r.Busy())
	assert.Equal(t, 5, r.ActiveCount())

	r.CancelAll()
	r.CancelAll()
	assert.Equal(t, 1, r.ActiveCount(), "only the running job remains")
	close(release)

	res := b.Wait()
	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Successes, "a result arriving after cancellation is discarded")
	assert.Len(t, res.Omitted, 5)
	assert.Equal(t, int32(1), calls.Load())
	assertAccounted(t, res)
	assert.False(t, r.Busy())

	var cancelledEvents, requested int
	var requestedCounts []int
	for {
		select {
		case ev := <-stream.C():
			switch ev.Kind {
			case events.KindBatchCancelled:
				cancelledEvents++
			case events.KindCancelRequested:
				requested++
				requestedCounts = append(requestedCounts, ev.Cancelled)
			case events.KindBatchComplete:
				t.Fatal("a cancelled batch must not report completion")
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, cancelledEvents)
	assert.Equal(t, 2, requested)
	assert.Equal(t, []int{4, 0}, requestedCounts)
}

func TestEvents_Sequence(t *testing.T) {
	n := events.NewNotifier(nil)
	stream := n.Stream(64)
	defer stream.Close()

	r := newRunner(t, 2, time.Second, WithNotifier(n))
	res, err := r.RunBatch(context.Background(), makeJobs(3), succeed, nil)
	require.NoError(t, err)
	r.Shutdown(true)

	var kinds []events.Kind
	var progress []int
	for len(stream.C()) > 0 {
		ev := <-stream.C()
		kinds = append(kinds, ev.Kind)
		if ev.Kind == events.KindItemProgress {
			assert.Equal(t, res.BatchID, ev.BatchID)
			progress = append(progress, ev.Completed)
		}
	}

	require.NotEmpty(t, kinds)
	assert.Equal(t, events.KindBatchStart, kinds[0])
	assert.Equal(t, events.KindRunnerShutdown, kinds[len(kinds)-1])
	assert.Equal(t, events.KindBatchComplete, kinds[len(kinds)-2])
	assert.Equal(t, []int{1, 2, 3}, progress)
}

func TestConcurrentBatchesShareThePool(t *testing.T) {
	r := newRunner(t, 3, time.Second)
	defer r.Shutdown(true)

	var running, peak atomic.Int32
	convert := func(context.Context, types.ConversionJob) error {
		now := running.Add(1)
		for {
			p := peak.Load()
			if now <= p || peak.CompareAndSwap(p, now) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	results := make([]types.BatchResult, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.RunBatch(context.Background(), makeJobs(5), convert, nil)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, res := range results {
		assert.Len(t, res.Successes, 5)
		assertAccounted(t, res)
		ids[res.BatchID] = true
	}
	assert.Len(t, ids, 4, "batch IDs are unique")
	assert.LessOrEqual(t, peak.Load(), int32(3), "never more conversions than workers")
}

func TestShutdown(t *testing.T) {
	r := newRunner(t, 2, time.Second)

	var calls atomic.Int32
	b, err := r.Submit(context.Background(), makeJobs(4), func(context.Context, types.ConversionJob) error {
		calls.Add(1)
		time.Sleep(time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	r.Shutdown(true)
	r.Shutdown(true)

	select {
	case <-b.Done():
	default:
		t.Fatal("waiting shutdown returns only after submitted batches finish")
	}
	assert.Equal(t, int32(4), calls.Load())
	assert.Len(t, b.Wait().Successes, 4)

	_, err = r.Submit(context.Background(), makeJobs(1), succeed)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShutdown_NoWaitCancels(t *testing.T) {
	r := newRunner(t, 1, 5*time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	b, err := r.Submit(context.Background(), makeJobs(3), func(_ context.Context, job types.ConversionJob) error {
		if job.Index == 0 {
			close(started)
			<-release
		}
		return nil
	})
	require.NoError(t, err)
	<-started

	r.Shutdown(false)
	close(release)

	res := b.Wait()
	assert.True(t, res.Cancelled)
	assert.Len(t, res.Omitted, 3)
	assertAccounted(t, res)
}

// A listener that reacts to batch-cancelled by cancelling everything must
// not block the batch from finishing.
func TestCancelAll_FromCancelledListener(t *testing.T) {
	n := events.NewNotifier(nil)
	var r *Runner
	n.Subscribe(events.ListenerFunc(func(ev events.Event) error {
		if ev.Kind == events.KindBatchCancelled {
			r.CancelAll()
		}
		return nil
	}))
	r = newRunner(t, 1, 5*time.Second, WithNotifier(n))

	type outcome struct {
		res types.BatchResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.RunBatch(context.Background(), makeJobs(4), succeed, func(completed, _ int, _ string) bool {
			return completed < 1
		})
		done <- outcome{res, err}
	}()

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.True(t, got.res.Cancelled)
		assert.Len(t, got.res.Successes, 1)
		assertAccounted(t, got.res)
	case <-time.After(3 * time.Second):
		t.Fatal("RunBatch did not return after a listener called CancelAll")
	}
	r.Shutdown(true)
	assert.Equal(t, 0, r.ActiveCount())
}

// A running job that returns because the caller's context was cancelled is
// omitted, never reported as a failure.
func TestRunBatch_ParentCancelWhileRunningIsOmitted(t *testing.T) {
	r := newRunner(t, 1, 5*time.Second)
	defer r.Shutdown(true)

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		jobs := makeJobs(1)

		b, err := r.Submit(ctx, jobs, func(ctx context.Context, _ types.ConversionJob) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
		require.NoError(t, err)

		<-started
		cancel()
		res := b.Wait()

		require.True(t, res.Cancelled, "run %d", i)
		require.Empty(t, res.Errors, "run %d: %+v", i, res.Errors)
		require.Equal(t, []string{jobs[0].Input}, res.Omitted, "run %d", i)
	}
}
