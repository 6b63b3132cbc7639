// Package worker implements the bounded-queue worker base (spec §4.2,
// C2), generalized from the teacher's ChainDataFetcher request loop
// (datasync/chaindatafetcher/chaindata_fetcher.go: chainCh/reqCh,
// Start/Stop, handleRequest goroutines guarded by started/stopped
// booleans and a dedicated WaitGroup).
package worker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/venantvr/rsi-correlation/log"
)

// Task is one unit of work submitted to a worker's queue.
type Task func()

// Base is a single-goroutine FIFO task runner fed by a bounded
// channel, matching spec §4.2's "bounded queue, single active task"
// contract. Agents (datafetcher, rsi, db, display) each
// embed a Base rather than rolling their own goroutine/channel pair.
type Base struct {
	name     string
	queue    chan Task
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopped  bool
	inFlight int32
	logger   *log.Logger
}

// New constructs a Base with the given name (used in log lines) and
// bounded queue capacity.
func New(name string, capacity int) *Base {
	return &Base{
		name:   name,
		queue:  make(chan Task, capacity),
		stopCh: make(chan struct{}),
		logger: log.NewModuleLogger(name),
	}
}

// Start launches the single consumer goroutine. Calling Start twice is
// a no-op, mirroring the teacher's idempotent startFetching guard.
func (b *Base) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	b.wg.Add(1)
	go b.run()
}

func (b *Base) run() {
	defer b.wg.Done()
	for {
		select {
		case task, ok := <-b.queue:
			if !ok {
				return
			}
			b.execute(task)
		case <-b.stopCh:
			b.drain()
			return
		}
	}
}

func (b *Base) drain() {
	for {
		select {
		case task := <-b.queue:
			b.execute(task)
		default:
			return
		}
	}
}

func (b *Base) execute(task Task) {
	atomic.AddInt32(&b.inFlight, 1)
	defer atomic.AddInt32(&b.inFlight, -1)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("task panicked", "recovered", r)
		}
	}()
	task()
}

// Submit enqueues a task. It blocks if the queue is full, applying
// natural backpressure to producers (spec §5).
func (b *Base) Submit(task Task) {
	b.queue <- task
}

// TrySubmit enqueues a task without blocking, returning false if the
// queue is currently full.
func (b *Base) TrySubmit(task Task) bool {
	select {
	case b.queue <- task:
		return true
	default:
		return false
	}
}

// WaitForQueueCompletion blocks until the queue is empty AND no task is
// currently executing, or timeout elapses, returning an error in the
// latter case. Used by the orchestrator's shutdown sequence (spec §4.3)
// to confirm an agent has drained before closing dependent resources.
func (b *Base) WaitForQueueCompletion(timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if len(b.queue) == 0 && atomic.LoadInt32(&b.inFlight) == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("%s: queue did not drain within %s", b.name, timeout)
		}
	}
}

// Stop signals the consumer goroutine to drain remaining tasks and
// exit, then waits for it to finish. Calling Stop twice is a no-op.
func (b *Base) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()
	close(b.stopCh)
	b.wg.Wait()
	b.logger.Info("worker stopped")
}

// QueueLen reports the number of tasks currently buffered, for
// metrics and tests.
func (b *Base) QueueLen() int {
	return len(b.queue)
}
