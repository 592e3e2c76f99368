// Package queue implements the lane-based execution queue that runs command
// bodies on a fixed pool of worker goroutines.
package queue

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// maxDefaultLanes bounds the default lane count on large machines.
const maxDefaultLanes = 32

// Context is passed to every job body.
type Context interface {
	// LaneID identifies the worker lane running the job.
	LaneID() int
	// Cancelled reports whether the queue has been cancelled; jobs should
	// observe the flag and exit early.
	Cancelled() bool
}

// Job is one unit of work. Owner identifies the submitting command for
// diagnostics; Run does the work.
type Job struct {
	Owner any
	Run   func(ctx Context)
}

// Queue is a fixed pool of worker lanes draining a shared FIFO. Jobs run
// exactly once, in dequeue order; there is no per-owner fairness.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []Job
	closed bool

	inflight  int
	idleCond  *sync.Cond
	cancelled atomic.Bool

	lanes errgroup.Group
}

// New creates a queue with the given number of lanes; lanes < 1 selects the
// default of min(NumCPU+2, 32). Serial execution is lanes == 1.
func New(lanes int) *Queue {
	if lanes < 1 {
		lanes = runtime.NumCPU() + 2
		if lanes > maxDefaultLanes {
			lanes = maxDefaultLanes
		}
	}

	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	q.idleCond = sync.NewCond(&q.mu)
	for i := 0; i < lanes; i++ {
		q.lanes.Go(func() error {
			q.runLane(i)
			return nil
		})
	}
	return q
}

type laneContext struct {
	q    *Queue
	lane int
}

func (c laneContext) LaneID() int     { return c.lane }
func (c laneContext) Cancelled() bool { return c.q.cancelled.Load() }

func (q *Queue) runLane(lane int) {
	for {
		q.mu.Lock()
		for len(q.jobs) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.inflight++
		q.mu.Unlock()

		job.Run(laneContext{q: q, lane: lane})

		q.mu.Lock()
		q.inflight--
		if q.inflight == 0 && len(q.jobs) == 0 {
			q.idleCond.Broadcast()
		}
		q.mu.Unlock()
	}
}

// AddJob enqueues a job. It never blocks; the job runs when a lane frees up.
// Adding a job after Close is a programmer error.
func (q *Queue) AddJob(job Job) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		panic("queue: AddJob after Close")
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	q.cond.Signal()
}

// Cancel marks the queue cancelled. Queued jobs still execute, but observe
// the flag through their context and are expected to exit early.
func (q *Queue) Cancel() {
	q.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (q *Queue) Cancelled() bool {
	return q.cancelled.Load()
}

// WaitIdle blocks until no job is queued or running.
func (q *Queue) WaitIdle() {
	q.mu.Lock()
	for q.inflight != 0 || len(q.jobs) != 0 {
		q.idleCond.Wait()
	}
	q.mu.Unlock()
}

// Close drains the queue and stops the lanes. The queue cannot be reused.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	_ = q.lanes.Wait()
}
