package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Job represents a unit of work to be processed by the worker pool.
type Job interface {
	// Execute performs the job's work. Returns an error if the job failed.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for logging purposes.
	ID() string
}

// Pool manages a pool of workers that process jobs from a queue. Jobs may
// be long-running; the pool only bounds how many run concurrently.
type Pool struct {
	name          string
	maxWorkers    int
	jobQueue      chan Job
	activeWorkers atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PoolConfig configures a worker pool.
type PoolConfig struct {
	// Name is used for logging.
	Name string
	// MaxWorkers is the maximum number of concurrent workers. Default: 10.
	MaxWorkers int
	// QueueSize is the buffer size for the job queue. Default: 100.
	QueueSize int
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(config PoolConfig) *Pool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 10
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.Name == "" {
		config.Name = "worker-pool"
	}

	return &Pool{
		name:       config.Name,
		maxWorkers: config.MaxWorkers,
		jobQueue:   make(chan Job, config.QueueSize),
	}
}

// Start begins the worker pool. It spawns the worker goroutines that read
// from the job queue.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker()
		}()
	}

	log.Info().
		Str("pool", p.name).
		Int("max_workers", p.maxWorkers).
		Msg("Worker pool started")
}

// Stop shuts down the worker pool. It cancels the pool context, which
// long-running jobs are expected to observe, and waits for workers to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	close(p.jobQueue)
	p.wg.Wait()

	log.Info().Str("pool", p.name).Msg("Worker pool stopped")
}

// Submit adds a job to the queue. Returns true if the job was queued,
// false if the queue is full (non-blocking).
func (p *Pool) Submit(job Job) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		log.Warn().
			Str("pool", p.name).
			Str("job_id", job.ID()).
			Msg("Job queue full, dropping job")
		return false
	}
}

// ActiveWorkers returns the number of workers currently executing a job.
func (p *Pool) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

func (p *Pool) worker() {
	for job := range p.jobQueue {
		p.activeWorkers.Add(1)
		start := time.Now()

		err := p.run(job)

		duration := time.Since(start)
		p.activeWorkers.Add(-1)

		if err != nil {
			log.Error().
				Err(err).
				Str("pool", p.name).
				Str("job_id", job.ID()).
				Dur("duration", duration).
				Msg("Job failed")
		} else {
			log.Debug().
				Str("pool", p.name).
				Str("job_id", job.ID()).
				Dur("duration", duration).
				Msg("Job completed")
		}
	}
}

func (p *Pool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("pool", p.name).
				Str("job_id", job.ID()).
				Interface("panic", r).
				Msg("Job panicked")
		}
	}()
	return job.Execute(p.ctx)
}
