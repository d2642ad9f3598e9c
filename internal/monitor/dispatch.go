// internal/monitor/dispatch.go
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/proctord/internal/types"
)

// Task is one inbound unit of work bound to a call: typically feature
// extraction followed by a monitor handler.
type Task struct {
	CallID types.CallID
	Fn     func(ctx context.Context)
}

// Dispatcher manages per-call lanes with a global concurrency semaphore.
// Each call gets its own FIFO channel (lane) so events within a call are
// processed in arrival order, while the semaphore bounds the total number
// of concurrent workers so CPU-bound feature extraction for one call never
// starves the others.
type Dispatcher struct {
	lanes     map[types.CallID]chan *Task
	semaphore *semaphore.Weighted
	active    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewDispatcher creates a Dispatcher allowing up to maxConcurrent tasks to
// execute simultaneously across all call lanes.
func NewDispatcher(maxConcurrent int64) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Dispatcher{
		lanes:     make(map[types.CallID]chan *Task),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the dispatcher's context. Must be called before Enqueue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)
}

// Stop cancels the dispatcher context, closes all lanes, and waits for
// in-flight tasks to finish.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Lock()
	for _, lane := range d.lanes {
		close(lane)
	}
	d.lanes = make(map[types.CallID]chan *Task)
	d.mu.Unlock()
	d.wg.Wait()
}

// Enqueue adds a Task to the call's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (d *Dispatcher) Enqueue(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	lane, exists := d.lanes[task.CallID]
	if !exists {
		lane = make(chan *Task, 100)
		d.lanes[task.CallID] = lane
		d.wg.Add(1)
		go d.processLane(lane)
	}

	select {
	case lane <- task:
		return nil
	default:
		return fmt.Errorf("dispatch queue full for call %s", task.CallID)
	}
}

// processLane drains a single call lane, acquiring a semaphore slot before
// running the task synchronously. Strict FIFO within a call, bounded
// parallelism across calls.
func (d *Dispatcher) processLane(lane chan *Task) {
	defer d.wg.Done()
	for {
		select {
		case task, ok := <-lane:
			if !ok {
				return
			}
			if err := d.semaphore.Acquire(d.ctx, 1); err != nil {
				return
			}
			d.active.Add(1)
			task.Fn(d.ctx)
			d.active.Add(-1)
			d.semaphore.Release(1)
		case <-d.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until no tasks are actively executing, or the timeout
// expires. Returns true if idle, false if timed out.
func (d *Dispatcher) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if d.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
