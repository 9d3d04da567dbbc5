// Package task runs queued jobs on a small worker pool.
//
// Jobs may carry a singleton key: while a keyed job is queued or running,
// further enqueues with the same key are dropped, not queued behind it.
// The claim is taken at enqueue time so a slow job never builds a backlog
// of identical work. Jobs that sit in the queue past MaxQueueDelay are
// dropped as stale when a worker finally picks them up.
package task

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "digestbot/pkg/logx"
)

var (
	ErrQueueFull      = errors.New("task: queue full")
	ErrAlreadyRunning = errors.New("task: job with same key already active")
	ErrStopped        = errors.New("task: runner stopped")
)

const (
	defaultWorkers       = 2
	defaultQueueSize     = 64
	defaultMaxQueueDelay = time.Minute
)

// Job is one unit of queued work.
type Job struct {
	// Name appears in logs.
	Name string

	// Key, when non-empty, enforces the singleton guard.
	Key string

	Run func(ctx context.Context) error

	enqueuedAt time.Time
}

type Config struct {
	Workers       int
	QueueSize     int
	MaxQueueDelay time.Duration
}

type Runner struct {
	cfg   Config
	log   logx.Logger
	queue chan Job

	mu     sync.Mutex
	active map[string]struct{}

	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	droppedOverlap atomic.Uint64
	droppedStale   atomic.Uint64
}

func NewRunner(cfg Config, log logx.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxQueueDelay <= 0 {
		cfg.MaxQueueDelay = defaultMaxQueueDelay
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		cfg:    cfg,
		log:    log,
		queue:  make(chan Job, cfg.QueueSize),
		active: map[string]struct{}{},
	}
}

// Start launches the worker pool. Workers exit when ctx is canceled or
// Stop is called.
func (r *Runner) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
}

// Enqueue submits a job. Keyed jobs that collide with an active one are
// rejected with ErrAlreadyRunning; a full queue rejects with ErrQueueFull.
func (r *Runner) Enqueue(job Job) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	if job.Run == nil {
		return errors.New("task: job has no Run")
	}

	if job.Key != "" && !r.claim(job.Key) {
		r.droppedOverlap.Add(1)
		return ErrAlreadyRunning
	}

	job.enqueuedAt = time.Now()
	select {
	case r.queue <- job:
		return nil
	default:
		r.release(job.Key)
		return ErrQueueFull
	}
}

// Stop drains nothing: queued jobs not yet picked up are abandoned. It
// waits for in-flight jobs up to ctx's deadline.
func (r *Runner) Stop(ctx context.Context) error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports how many jobs were rejected for overlap and dropped as
// stale since start.
func (r *Runner) Dropped() (overlap, stale uint64) {
	return r.droppedOverlap.Load(), r.droppedStale.Load()
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.queue:
			r.execute(ctx, id, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, workerID int, job Job) {
	defer r.release(job.Key)

	if wait := time.Since(job.enqueuedAt); wait > r.cfg.MaxQueueDelay {
		r.droppedStale.Add(1)
		r.log.Warn("dropping stale job",
			logx.String("job", job.Name),
			logx.Duration("queued_for", wait),
			logx.Duration("max_queue_delay", r.cfg.MaxQueueDelay),
		)
		return
	}

	start := time.Now()
	err := r.safeRun(ctx, job)
	if err != nil {
		r.log.Error("job failed",
			logx.String("job", job.Name),
			logx.Int("worker", workerID),
			logx.Duration("took", time.Since(start)),
			logx.Err(err),
		)
		return
	}
	r.log.Debug("job done",
		logx.String("job", job.Name),
		logx.Int("worker", workerID),
		logx.Duration("took", time.Since(start)),
	)
}

func (r *Runner) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New("panic in job")
			r.log.Error("job panicked",
				logx.String("job", job.Name),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	return job.Run(ctx)
}

func (r *Runner) claim(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[key]; busy {
		return false
	}
	r.active[key] = struct{}{}
	return true
}

func (r *Runner) release(key string) {
	if key == "" {
		return
	}
	r.mu.Lock()
	delete(r.active, key)
	r.mu.Unlock()
}
