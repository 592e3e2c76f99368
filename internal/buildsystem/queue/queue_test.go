package queue_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/anvil/internal/buildsystem/queue"
)

func TestQueue_RunsEveryJobExactlyOnce(t *testing.T) {
	q := queue.New(4)
	defer q.Close()

	const jobs = 100
	var counts [jobs]atomic.Int32
	for i := 0; i < jobs; i++ {
		q.AddJob(queue.Job{Run: func(queue.Context) {
			counts[i].Add(1)
		}})
	}
	q.WaitIdle()

	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), "job %d", i)
	}
}

func TestQueue_SerialModePreservesOrder(t *testing.T) {
	q := queue.New(1)
	defer q.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 20; i++ {
		q.AddJob(queue.Job{Run: func(queue.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}})
	}
	q.WaitIdle()

	require.Len(t, order, 20)
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestQueue_LaneIDsAreBounded(t *testing.T) {
	const lanes = 3
	q := queue.New(lanes)
	defer q.Close()

	var bad atomic.Int32
	for i := 0; i < 50; i++ {
		q.AddJob(queue.Job{Run: func(ctx queue.Context) {
			if ctx.LaneID() < 0 || ctx.LaneID() >= lanes {
				bad.Add(1)
			}
		}})
	}
	q.WaitIdle()
	assert.Equal(t, int32(0), bad.Load())
}

func TestQueue_CancelIsObservable(t *testing.T) {
	q := queue.New(2)
	defer q.Close()

	q.Cancel()

	var skipped atomic.Int32
	for i := 0; i < 10; i++ {
		q.AddJob(queue.Job{Run: func(ctx queue.Context) {
			// Jobs still run after cancellation, but observe the flag.
			if ctx.Cancelled() {
				skipped.Add(1)
			}
		}})
	}
	q.WaitIdle()
	assert.Equal(t, int32(10), skipped.Load())
}

func TestQueue_WaitIdleBlocksUntilDrained(t *testing.T) {
	q := queue.New(2)
	defer q.Close()

	release := make(chan struct{})
	var done atomic.Int32
	for i := 0; i < 4; i++ {
		q.AddJob(queue.Job{Run: func(queue.Context) {
			<-release
			done.Add(1)
		}})
	}

	close(release)
	q.WaitIdle()
	assert.Equal(t, int32(4), done.Load())
}

func TestQueue_CloseDrainsPendingJobs(t *testing.T) {
	q := queue.New(1)

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		q.AddJob(queue.Job{Run: func(queue.Context) {
			done.Add(1)
		}})
	}
	q.Close()
	assert.Equal(t, int32(10), done.Load())
}

func TestQueue_DefaultLaneCount(t *testing.T) {
	// The default configuration must still run work.
	q := queue.New(0)
	defer q.Close()

	var ran atomic.Bool
	q.AddJob(queue.Job{Run: func(queue.Context) { ran.Store(true) }})
	q.WaitIdle()
	assert.True(t, ran.Load())
}
