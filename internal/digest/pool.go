package digest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/muilab/notigpt/internal/logger"
)

// DefaultWorkers bounds the number of chunk calls in flight.
const DefaultWorkers = 4

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// WorkerPool runs jobs on a fixed set of goroutines started at construction.
// All pipeline runs share one pool, so at most size jobs run at a time.
type WorkerPool struct {
	size      int
	jobs      chan func()
	shutdown  chan struct{}
	workers   sync.WaitGroup
	closeOnce sync.Once
	logger    *logger.Logger
}

// NewWorkerPool starts size workers. A non-positive size selects DefaultWorkers.
func NewWorkerPool(size int, logger *logger.Logger) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkers
	}

	p := &WorkerPool{
		size:     size,
		jobs:     make(chan func()),
		shutdown: make(chan struct{}),
		logger:   logger,
	}

	for i := 0; i < size; i++ {
		p.workers.Add(1)
		go p.worker()
	}

	logger.Info("digest worker pool started", slog.Int("worker_pool_size", size))

	return p
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

func (p *WorkerPool) worker() {
	defer p.workers.Done()

	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.shutdown:
			return
		}
	}
}

// Submit blocks until a worker takes job. A job that was taken always runs;
// a job that was not taken is never run and Submit returns an error.
func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	select {
	case <-p.shutdown:
		return ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.shutdown:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the workers after their current jobs finish.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		close(p.shutdown)
		p.workers.Wait()
		p.logger.Info("digest worker pool shutdown complete")
	})
}
