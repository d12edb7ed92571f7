// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package runner

import (
	"sync/atomic"
	"time"

	"github.com/pdiddy/mdconv/pkg/types"
)

// task is the runner's view of one job. Its state only moves forward, by
// compare-and-swap, so whichever party wins a transition into a terminal
// state (worker, timer, or cancellation sweep) is the one that reports the
// result.
type task struct {
	id    uint64
	job   types.ConversionJob
	batch *Batch
	state atomic.Int32
}

func (t *task) load() types.JobState {
	return types.JobState(t.state.Load())
}

func (t *task) transition(from, to types.JobState) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

func (t *task) result(outcome types.Outcome, message string, err error, elapsed time.Duration) types.JobResult {
	res := types.JobResult{
		Job:     t.job,
		Outcome: outcome,
		Message: message,
		Elapsed: elapsed,
	}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}
