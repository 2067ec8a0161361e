package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/fitlife/fitlife-sync/pkg/metrics"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

// JobFunc adapts a function to Job.
func JobFunc(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// WorkerParams configure a Worker.
type WorkerParams struct {
	Cron    *Cron
	Job     Job
	Lock    Lock
	Logger  *logger.Logger
	Metrics *metrics.JobMetrics
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Worker runs a job at every activation of a cron expression. Only one
// instance runs a given activation when the lock is shared.
type Worker struct {
	cron    *Cron
	job     Job
	lock    Lock
	logg    *logger.Logger
	metrics *metrics.JobMetrics
	now     func() time.Time

	// Internal state
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewWorker creates a new schedule worker
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Cron == nil {
		return nil, errors.New("cron schedule required")
	}
	if params.Job == nil {
		return nil, errors.New("job required")
	}
	lock := params.Lock
	if lock == nil {
		lock = NewLocalLock()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		cron:    params.Cron,
		job:     params.Job,
		lock:    lock,
		logg:    logg,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// Start begins the worker loop
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go w.run(ctx, w.stopCh)

	w.logg.Info(w.logg.WithFields(ctx, map[string]any{
		"job":  w.job.Name(),
		"cron": w.cron.String(),
	}), "schedule worker started")
}

// Stop gracefully stops the worker and waits for a running job to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	for {
		now := w.now()
		timer := time.NewTimer(w.cron.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs the job once under the lock. It reports whether the job ran.
func (w *Worker) RunOnce(ctx context.Context) bool {
	jobCtx := w.logg.WithField(ctx, "job", w.job.Name())

	locked, err := w.lock.Acquire(ctx)
	if err != nil {
		w.logg.Error(jobCtx, "lock acquire failed", err)
		w.metrics.IncFailure(w.job.Name())
		return false
	}
	if !locked {
		w.logg.Info(jobCtx, "another instance is running the job; skipping")
		return false
	}
	defer func() {
		if err := w.lock.Release(ctx); err != nil {
			w.logg.Error(jobCtx, "failed to release lock", err)
		}
	}()

	start := time.Now()
	err = w.job.Run(jobCtx)
	duration := time.Since(start)
	w.metrics.ObserveDuration(w.job.Name(), duration)
	jobCtx = w.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		w.logg.Error(jobCtx, "job failed", err)
		w.metrics.IncFailure(w.job.Name())
		return true
	}
	w.logg.Info(jobCtx, "job completed")
	w.metrics.IncSuccess(w.job.Name())
	return true
}
