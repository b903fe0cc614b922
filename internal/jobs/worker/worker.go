package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

var (
	// ErrQueueFull is returned by Submit when every slot is busy and the
	// backlog is at capacity.
	ErrQueueFull = errors.New("job queue full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("worker pool stopped")
)

// Task is one unit of background work. The context is cancelled when the
// pool is stopped with a deadline that expires.
type Task struct {
	ID  string
	Run func(ctx context.Context) error
}

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	log   *logger.Logger
	queue chan Task

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPool starts concurrency workers with room for backlog queued tasks.
func NewPool(baseLog *logger.Logger, concurrency, backlog int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	if backlog < 0 {
		backlog = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		log:    baseLog.With("component", "JobWorker"),
		queue:  make(chan Task, backlog),
		ctx:    ctx,
		cancel: cancel,
	}
	p.log.Info("Starting job worker pool", "concurrency", concurrency, "backlog", backlog)
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.runLoop(i + 1)
	}
	return p
}

// Submit enqueues t without blocking.
func (p *Pool) Submit(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %q has no Run func", t.ID)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new tasks, lets queued and running ones finish, and cancels
// them if ctx expires first.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) runLoop(workerID int) {
	defer p.wg.Done()
	for t := range p.queue {
		p.runTask(workerID, t)
	}
	p.log.Debug("Worker loop stopped", "worker_id", workerID)
}

func (p *Pool) runTask(workerID int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Job task panic", "worker_id", workerID, "task_id", t.ID, "panic", r)
		}
	}()
	if err := t.Run(p.ctx); err != nil {
		p.log.Warn("Job task failed", "worker_id", workerID, "task_id", t.ID, "error", err)
	}
}
