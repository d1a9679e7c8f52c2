package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrClosed    = errors.New("dispatcher is shut down")
	ErrQueueFull = errors.New("dispatcher queue is full")
)

// Job is one unit of post-commit work (voucher generation, guardian
// notification). Jobs run on the dispatcher's own context, never on the
// context of the request that queued them.
type Job struct {
	ID   uuid.UUID
	Name string
	Run  func(ctx context.Context) error
}

type Options struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Dispatcher runs jobs on a fixed pool of goroutines fed by a bounded queue.
type Dispatcher struct {
	log  *zap.Logger
	opts Options

	mu     sync.RWMutex
	closed bool
	jobs   chan Job

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewDispatcher(log *zap.Logger, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	return &Dispatcher{
		log:  log,
		opts: opts,
		jobs: make(chan Job, opts.QueueSize),
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.loop(ctx, i)
	}
	d.log.Info("👷 Side-effect workers started", zap.Int("workers", d.opts.Workers), zap.Int("queue", d.opts.QueueSize))
}

// Submit queues a job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no Run func", job.Name)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When ctx
// expires first, running jobs are cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if d.cancel != nil {
			d.cancel()
		}
		return nil
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		return fmt.Errorf("drain side-effect queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) loop(ctx context.Context, n int) {
	defer d.wg.Done()
	for job := range d.jobs {
		d.process(ctx, job, n)
	}
}

func (d *Dispatcher) process(ctx context.Context, job Job, n int) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Worker: job panicked", zap.String("job", job.Name), zap.Stringer("job_id", job.ID), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		d.log.Error("Worker: job failed",
			zap.String("job", job.Name),
			zap.Stringer("job_id", job.ID),
			zap.Int("worker", n),
			zap.Error(err),
		)
		return
	}
	d.log.Debug("Worker: job done",
		zap.String("job", job.Name),
		zap.Stringer("job_id", job.ID),
		zap.Duration("took", time.Since(start)),
	)
}
