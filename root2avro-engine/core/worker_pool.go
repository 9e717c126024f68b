package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VanDung-dev/root2avro/root2avro-engine/data"
	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

// ErrPoolClosed is returned when submitting to a pool that no longer
// accepts rows.
var ErrPoolClosed = errors.New("worker pool is shut down")

// ProjectFunc turns one row into one record.
type ProjectFunc func(row tree.Row) (data.Record, error)

// Task is one row waiting for projection. The row is owned by the task.
type Task struct {
	Row       tree.Row
	CreatedAt time.Time
}

// NewTask creates a task for a row snapshot.
func NewTask(row tree.Row) *Task {
	return &Task{Row: row, CreatedAt: time.Now()}
}

// Result is the outcome of projecting one row.
type Result struct {
	Entry    int64
	Record   data.Record
	Error    error
	Duration time.Duration
	WorkerID int
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Name        string  `json:"name"`
	Workers     int     `json:"workers"`
	Active      int64   `json:"active"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// WorkerPool projects rows on a fixed set of goroutines. Rows are
// independent, so results come back in completion order and carry their
// entry number.
type WorkerPool struct {
	name       string
	workers    int
	project    ProjectFunc
	taskChan   chan *Task
	resultChan chan *Result
	wg         sync.WaitGroup

	active    int64
	completed int64
	failed    int64

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewWorkerPool starts a pool with the given number of workers. The pool
// stops when ctx is cancelled.
func NewWorkerPool(ctx context.Context, name string, workers int, project ProjectFunc) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		name:       name,
		workers:    workers,
		project:    project,
		taskChan:   make(chan *Task, workers*16),
		resultChan: make(chan *Result, workers*16),
		ctx:        ctx,
		cancel:     cancel,
		running:    true,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskChan:
			if !ok {
				return
			}
			if !p.sendResult(p.processTask(id, task)) {
				return
			}
		}
	}
}

func (p *WorkerPool) processTask(workerID int, task *Task) (result *Result) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	start := time.Now()
	result = &Result{
		Entry:    task.Row.Entry,
		WorkerID: workerID,
	}

	// A panicking projection fails its row, not the pool.
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("panic projecting entry %d: %s", task.Row.Entry, panicToString(r))
			result.Duration = time.Since(start)
			atomic.AddInt64(&p.failed, 1)
		}
	}()

	rec, err := p.project(task.Row)
	result.Record = rec
	result.Error = err
	result.Duration = time.Since(start)

	if err == nil {
		atomic.AddInt64(&p.completed, 1)
	} else {
		atomic.AddInt64(&p.failed, 1)
	}
	return result
}

func panicToString(r interface{}) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// sendResult blocks until the result is taken or the pool is cancelled.
// Results are never dropped: a dropped row would stall the sequencer.
func (p *WorkerPool) sendResult(result *Result) bool {
	select {
	case p.resultChan <- result:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Submit queues a task, waiting for room in the queue.
func (p *WorkerPool) Submit(ctx context.Context, task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolClosed
	}

	select {
	case p.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrPoolClosed
	}
}

// Results returns the channel of projected rows. It is closed once the pool
// is drained or shut down.
func (p *WorkerPool) Results() <-chan *Result {
	return p.resultChan
}

// GetStats returns current worker pool statistics.
func (p *WorkerPool) GetStats() PoolStats {
	completed := atomic.LoadInt64(&p.completed)
	failed := atomic.LoadInt64(&p.failed)
	total := completed + failed

	var successRate float64
	if total > 0 {
		successRate = float64(completed) / float64(total) * 100
	}

	return PoolStats{
		Name:        p.name,
		Workers:     p.workers,
		Active:      atomic.LoadInt64(&p.active),
		Completed:   completed,
		Failed:      failed,
		Pending:     len(p.taskChan),
		SuccessRate: successRate,
	}
}

// Drain stops accepting tasks, lets the workers finish the queued ones and
// closes the result channel.
func (p *WorkerPool) Drain() {
	if !p.stop() {
		return
	}
	close(p.taskChan)
	p.wg.Wait()
	close(p.resultChan)
	p.cancel()
}

// Shutdown abandons queued tasks and stops the workers.
func (p *WorkerPool) Shutdown() {
	// Cancel first so that a blocked Submit releases the lock.
	p.cancel()
	if !p.stop() {
		return
	}
	close(p.taskChan)
	p.wg.Wait()
	close(p.resultChan)
}

func (p *WorkerPool) stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	p.running = false
	return true
}

// IsRunning returns true if the pool is still accepting tasks.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
