// Package workers runs jobs on a fixed set of goroutines. It supports
// queuing with back pressure, rate limiting, retries of transient failures
// and graceful shutdown, and reports to the logging and metrics packages.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/metrics"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for metrics and logging.
	Type() string
}

// Result represents the result of executing a job.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Duration time.Duration
	Retries  int
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// MaxRetries is the maximum number of retries for retryable failures.
	MaxRetries int
	// RetryDelay is the delay between retries.
	RetryDelay time.Duration
	// ShutdownTimeout is how long Shutdown lets queued jobs drain before
	// cancelling the ones still running.
	ShutdownTimeout time.Duration
	// RateLimit is the maximum number of jobs per second (0 = no limit).
	RateLimit int
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            4,
		QueueSize:       64,
		MaxRetries:      2,
		RetryDelay:      500 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool manages a pool of worker goroutines.
type Pool struct {
	config          Config
	jobs            chan *envelope
	results         chan Result
	externalResults chan Result
	workers         []*worker
	wg              sync.WaitGroup
	ctx             context.Context
	cancel          context.CancelFunc
	done            chan struct{}
	rateLimiter     *time.Ticker
	startOnce       sync.Once

	mu     sync.RWMutex
	closed bool
}

// envelope carries a job and, for Do, the channel its caller waits on.
type envelope struct {
	job   Job
	reply chan Result
}

type worker struct {
	id   int
	pool *Pool
}

// ErrPoolClosed is returned by Submit and Do after Shutdown.
var ErrPoolClosed = errors.NewServiceError(errors.CodeServiceUnavailable, "workers", "pool is shut down")

// ErrQueueFull is returned when no queue slot is free.
var ErrQueueFull = errors.NewServiceError(errors.CodeServiceUnavailable, "workers", "job queue is full")

// New creates a new worker pool with the given configuration.
func New(config Config) *Pool {
	if config.Size <= 0 {
		config.Size = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		config:          config,
		jobs:            make(chan *envelope, config.QueueSize),
		results:         make(chan Result, config.QueueSize),
		externalResults: make(chan Result, config.QueueSize),
		workers:         make([]*worker, config.Size),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	if config.RateLimit > 0 {
		interval := time.Second / time.Duration(config.RateLimit)
		pool.rateLimiter = time.NewTicker(interval)
	}

	for i := 0; i < config.Size; i++ {
		pool.workers[i] = &worker{id: i, pool: pool}
	}

	return pool
}

// Start launches the workers. Calling it again has no effect.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		logging.Info("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize,
			"rate_limit", p.config.RateLimit)

		for _, w := range p.workers {
			p.wg.Add(1)
			go w.run()
		}
		go p.processResults()

		metrics.GetGlobalMetrics().SetWorkers(p.config.Size)
	})
}

// Submit queues a job without waiting for it. The outcome is delivered on
// Results.
func (p *Pool) Submit(job Job) error {
	return p.enqueue(&envelope{job: job})
}

// Do queues a job and waits for its result. When ctx ends first the job
// keeps running and its result is dropped.
func (p *Pool) Do(ctx context.Context, job Job) (Result, error) {
	env := &envelope{job: job, reply: make(chan Result, 1)}
	if err := p.enqueue(env); err != nil {
		return Result{}, err
	}

	select {
	case result := <-env.reply:
		return result, result.Error
	case <-ctx.Done():
		return Result{JobID: job.ID(), JobType: job.Type()}, ctx.Err()
	}
}

func (p *Pool) enqueue(env *envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- env:
		logging.Debug("Job submitted to worker pool",
			"job_id", env.job.ID(),
			"job_type", env.job.Type())
		metrics.GetGlobalMetrics().SetQueueDepth(len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Results returns a channel of job outcomes. Results nobody reads are
// dropped; the channel is closed once the pool has shut down.
func (p *Pool) Results() <-chan Result {
	return p.externalResults
}

// Shutdown stops accepting jobs and waits for queued ones to finish. After
// ShutdownTimeout running jobs are cancelled.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	logging.Info("Shutting down worker pool")
	p.Start()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		logging.Info("Worker pool shutdown completed")
	case <-time.After(p.config.ShutdownTimeout):
		logging.Warn("Worker pool shutdown timeout, cancelling running jobs")
		p.cancel()
		<-finished
	}

	p.cancel()
	close(p.results)
	<-p.done

	if p.rateLimiter != nil {
		p.rateLimiter.Stop()
	}
	metrics.GetGlobalMetrics().SetWorkers(0)
	return nil
}

// Wait blocks until the pool has shut down.
func (p *Pool) Wait() {
	<-p.done
}

func (w *worker) run() {
	defer w.pool.wg.Done()

	logging.Debug("Worker started", "worker_id", w.id)
	defer logging.Debug("Worker stopped", "worker_id", w.id)

	for env := range w.pool.jobs {
		metrics.GetGlobalMetrics().SetQueueDepth(len(w.pool.jobs))
		result := w.executeJob(env.job)
		if env.reply != nil {
			env.reply <- result
		}
		w.pool.results <- result
	}
}

// executeJob runs a job, retrying failures that errors.IsRetryable accepts.
func (w *worker) executeJob(job Job) Result {
	start := time.Now()
	result := Result{JobID: job.ID(), JobType: job.Type()}

	if w.pool.rateLimiter != nil {
		select {
		case <-w.pool.rateLimiter.C:
		case <-w.pool.ctx.Done():
			result.Error = w.pool.ctx.Err()
			return result
		}
	}

	for attempt := 0; ; attempt++ {
		result.Retries = attempt
		result.Error = w.execute(job)
		if result.Error == nil || attempt >= w.pool.config.MaxRetries || !errors.IsRetryable(result.Error) {
			break
		}

		logging.Debug("Job failed, retrying",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"attempt", attempt+1,
			"max_retries", w.pool.config.MaxRetries,
			"error", result.Error)

		select {
		case <-time.After(w.pool.config.RetryDelay):
		case <-w.pool.ctx.Done():
			result.Duration = time.Since(start)
			return result
		}
	}
	result.Duration = time.Since(start)

	status := metrics.StatusSuccess
	if result.Error != nil {
		status = metrics.StatusError
		logging.Warn("Job failed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"retries", result.Retries,
			"error", result.Error,
			"worker_id", w.id)
	} else {
		logging.Debug("Job completed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"duration", result.Duration,
			"worker_id", w.id)
	}
	metrics.GetGlobalMetrics().RecordJob(job.Type(), status, result.Duration, result.Retries)

	return result
}

// execute runs one attempt and turns a panic into an error.
func (w *worker) execute(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID(), r)
		}
	}()
	return job.Execute(w.pool.ctx)
}

// processResults forwards worker results to Results until shutdown.
func (p *Pool) processResults() {
	defer close(p.done)
	defer close(p.externalResults)

	for result := range p.results {
		select {
		case p.externalResults <- result:
		default:
		}
	}
}

// FuncJob adapts a function to the Job interface.
type FuncJob struct {
	id      string
	jobType string
	fn      func(ctx context.Context) error
}

// NewFuncJob creates a job that calls fn.
func NewFuncJob(id, jobType string, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{id: id, jobType: jobType, fn: fn}
}

// Execute implements the Job interface.
func (j *FuncJob) Execute(ctx context.Context) error {
	return j.fn(ctx)
}

// ID implements the Job interface.
func (j *FuncJob) ID() string {
	return j.id
}

// Type implements the Job interface.
func (j *FuncJob) Type() string {
	return j.jobType
}
