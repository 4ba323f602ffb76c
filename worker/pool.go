package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofhir/epadoc"
)

// ErrNoValidator is reported when the pool has no validator configured.
var ErrNoValidator = errors.New("no validator configured")

// Validator validates one serialized document. *engine.Engine implements it.
type Validator interface {
	ValidateJSON(ctx context.Context, data []byte) *epadoc.Response
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, data []byte) *epadoc.Response

// ValidateJSON calls f.
func (f ValidatorFunc) ValidateJSON(ctx context.Context, data []byte) *epadoc.Response {
	return f(ctx, data)
}

// Pool is a fixed set of goroutines validating submitted jobs.
// Results arrive on Results() in completion order.
type Pool struct {
	v    Validator
	size int

	// mu guards queue against a send racing its close.
	mu      sync.RWMutex
	queue   chan Job
	out     chan *JobResult
	closing atomic.Bool
	running sync.WaitGroup

	ctx  context.Context
	stop context.CancelFunc

	submitted atomic.Uint64
	completed atomic.Uint64
	busy      atomic.Int64 // nanoseconds spent validating
}

// NewPool starts a pool of size goroutines, runtime.NumCPU() when size <= 0.
// Canceling ctx stops the pool.
func NewPool(ctx context.Context, v Validator, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	ctx, stop := context.WithCancel(ctx)
	p := &Pool{
		v:     v,
		size:  size,
		queue: make(chan Job, size*2),
		out:   make(chan *JobResult, size*2),
		ctx:   ctx,
		stop:  stop,
	}
	p.running.Add(size)
	for range size {
		go p.loop()
	}
	return p
}

// Submit queues a job, blocking while the queue is full. It returns false
// once the pool is closed.
func (p *Pool) Submit(job Job) bool {
	return p.enqueue(job, true)
}

// SubmitAsync queues a job without blocking. It returns false when the
// queue is full or the pool is closed.
func (p *Pool) SubmitAsync(job Job) bool {
	return p.enqueue(job, false)
}

func (p *Pool) enqueue(job Job, wait bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closing.Load() {
		return false
	}

	if wait {
		select {
		case p.queue <- job:
		case <-p.ctx.Done():
			return false
		}
	} else {
		select {
		case p.queue <- job:
		default:
			return false
		}
	}
	p.submitted.Add(1)
	return true
}

// Results returns the channel of job results.
func (p *Pool) Results() <-chan *JobResult {
	return p.out
}

// Close stops the pool and discards results not yet received.
// Use CloseAndWait to collect them instead.
func (p *Pool) Close() {
	if p.closing.Swap(true) {
		return
	}
	p.stop()
	go func() {
		for range p.out {
		}
	}()
	p.drain()
}

// CloseAndWait stops accepting jobs, lets the queued ones finish, and
// returns every result not yet received from Results().
func (p *Pool) CloseAndWait() *BatchResult {
	if p.closing.Swap(true) {
		return &BatchResult{}
	}

	batch := &BatchResult{Results: make([]*JobResult, 0)}
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range p.out {
			if r.Err != nil {
				batch.FailedJobs++
			}
			batch.Results = append(batch.Results, r)
		}
	}()

	p.drain()
	<-collected
	p.stop()

	batch.TotalJobs = int(p.submitted.Load())
	batch.CompletedJobs = int(p.completed.Load())
	batch.TotalDuration = time.Duration(p.busy.Load())
	return batch
}

// drain closes the queue and waits for the goroutines to exit.
func (p *Pool) drain() {
	p.mu.Lock()
	close(p.queue)
	p.mu.Unlock()

	p.running.Wait()
	close(p.out)
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Workers       int
	JobsSubmitted uint64
	JobsCompleted uint64
	AvgDuration   time.Duration
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	s := PoolStats{
		Workers:       p.size,
		JobsSubmitted: p.submitted.Load(),
		JobsCompleted: p.completed.Load(),
	}
	if s.JobsCompleted > 0 {
		s.AvgDuration = time.Duration(p.busy.Load() / int64(s.JobsCompleted)) //nolint:gosec // small counts
	}
	return s
}

func (p *Pool) loop() {
	defer p.running.Done()

	for job := range p.queue {
		r := validateJob(p.ctx, p.v, job.ID, job.Data)
		p.completed.Add(1)
		p.busy.Add(int64(r.Duration))

		select {
		case p.out <- r:
		case <-p.ctx.Done():
			return
		}
	}
}

// validateJob runs v on data. Work not started before ctx is done gets an
// error response.
func validateJob(ctx context.Context, v Validator, id string, data []byte) *JobResult {
	start := time.Now()
	r := &JobResult{ID: id}
	switch {
	case v == nil:
		r.Err = ErrNoValidator
	case ctx.Err() != nil:
		r.Response = epadoc.ErrorResponse("Validation error: " + ctx.Err().Error())
	default:
		r.Response = v.ValidateJSON(ctx, data)
	}
	r.Duration = time.Since(start)
	return r
}
