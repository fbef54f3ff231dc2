package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff step; each further attempt doubles it up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// TaskTimeLimit bounds a single handler call. Zero disables the limit.
	TaskTimeLimit time.Duration
	// Retryable decides whether a failed job is redelivered. Nil retries every failure.
	Retryable func(error) bool
	Logger    *zap.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines.
type Queue struct {
	name    string
	handler Handler

	workers       int
	bufferSize    int
	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	taskTimeLimit time.Duration
	retryable     func(error) bool
	logger        *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	running   map[string]context.CancelFunc
	cancelled map[string]bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = cfg.RetryDelay * 32
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(error) bool { return true }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:          name,
		handler:       handler,
		workers:       cfg.Workers,
		bufferSize:    cfg.BufferSize,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		maxRetryDelay: cfg.MaxRetryDelay,
		taskTimeLimit: cfg.TaskTimeLimit,
		retryable:     cfg.Retryable,
		logger:        cfg.Logger,
		jobs:          make(chan Job, cfg.BufferSize),
		running:       make(map[string]context.CancelFunc),
		cancelled:     make(map[string]bool),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue pushes a job onto the queue.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

// Cancel stops the job with id. A running job has its context cancelled; a
// queued or backing-off job is dropped when it would next run. It reports
// whether the job was running.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled[id] = true
	if stop, ok := q.running[id]; ok {
		stop()
		return true
	}
	return false
}

// Running reports whether a handler is currently processing id.
func (q *Queue) Running(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.running[id]
	return ok
}

// Backoff returns the delay before the given retry attempt (1-based).
func (q *Queue) Backoff(attempt int) time.Duration {
	delay := q.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.maxRetryDelay {
			return q.maxRetryDelay
		}
	}
	return delay
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if q.dropCancelled(job.ID) {
				q.logger.Sugar().Infow("skipping cancelled job", "queue", q.name, "job_id", job.ID, "worker", workerID)
				continue
			}
			if err := q.run(job); err != nil {
				q.handleFailure(job, err)
			} else {
				q.dropCancelled(job.ID)
			}
		}
	}
}

func (q *Queue) run(job Job) error {
	ctx, stop := context.WithCancel(q.ctx)
	if q.taskTimeLimit > 0 {
		ctx, stop = context.WithTimeout(q.ctx, q.taskTimeLimit)
	}
	q.mu.Lock()
	q.running[job.ID] = stop
	q.mu.Unlock()

	defer func() {
		stop()
		q.mu.Lock()
		delete(q.running, job.ID)
		q.mu.Unlock()
	}()
	return q.handler(ctx, job)
}

func (q *Queue) dropCancelled(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancelled[id] {
		delete(q.cancelled, id)
		return true
	}
	return false
}

func (q *Queue) handleFailure(job Job, err error) {
	if q.dropCancelled(job.ID) {
		q.logger.Sugar().Infow("job cancelled", "queue", q.name, "job_id", job.ID, "type", job.Type)
		return
	}
	if !q.retryable(err) {
		q.logger.Sugar().Errorw("job failed permanently", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		return
	}
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Sugar().Errorw("job exceeded retries", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		return
	}
	delay := q.Backoff(job.Attempt)
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "delay", delay, "error", err)

	go func(j Job) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}
