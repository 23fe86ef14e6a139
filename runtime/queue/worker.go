package queue

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/durableplanner/plannerd/internal/idgen"
	"github.com/durableplanner/plannerd/runtime/hooks"
	"github.com/durableplanner/plannerd/runtime/telemetry"
	"github.com/durableplanner/plannerd/runtime/types"
)

// WorkerConfig tunes the polling loop.
type WorkerConfig struct {
	WorkerID      string
	Concurrency   int
	PollInterval  time.Duration
	LeaseDuration time.Duration
	RetryBackoff  func(attempts int) time.Duration
}

// DefaultWorkerConfig returns sane defaults, generating a random worker ID.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		WorkerID:      idgen.Prefixed("worker"),
		Concurrency:   4,
		PollInterval:  2 * time.Second,
		LeaseDuration: 30 * time.Second,
		RetryBackoff:  func(attempts int) time.Duration { return time.Duration(attempts) * 5 * time.Second },
	}
}

// Worker repeatedly claims jobs from Store and dispatches them to Handler
// with bounded concurrency, completing or failing each job based on the
// handler's result.
type Worker struct {
	store   Store
	handler Handler
	cfg     WorkerConfig
	bus     hooks.Bus
	logger  telemetry.Logger
	sem     *semaphore.Weighted
}

// NewWorker builds a Worker. bus and logger may be nil.
func NewWorker(store Store, handler Handler, cfg WorkerConfig, bus hooks.Bus, logger telemetry.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryBackoff == nil {
		cfg.RetryBackoff = DefaultWorkerConfig().RetryBackoff
	}
	return &Worker{
		store:   store,
		handler: handler,
		cfg:     cfg,
		bus:     bus,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// Run polls the queue until ctx is cancelled, dispatching claimed jobs to the
// handler on the bounded worker pool. Returns when every in-flight job has
// finished and ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Wait for all in-flight jobs to finish before returning.
			_ = w.sem.Acquire(context.Background(), int64(w.cfg.Concurrency))
			return ctx.Err()
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	available := w.availableSlots()
	if available <= 0 {
		return
	}

	jobs, err := w.store.Claim(ctx, w.cfg.WorkerID, available, w.cfg.LeaseDuration)
	if err != nil {
		if w.logger != nil {
			w.logger.Error(ctx, "queue claim failed", "error", err)
		}
		return
	}

	for _, job := range jobs {
		job := job
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return
		}
		w.publish(ctx, hooks.RunClaimed, job, nil)
		go func() {
			defer w.sem.Release(1)
			w.process(ctx, job)
		}()
	}
}

// availableSlots is best-effort: TryAcquire/Release around the whole weight
// would race with in-flight releases, so Claim is simply capped at the
// configured concurrency and Acquire blocks per-job if slots are momentarily
// full.
func (w *Worker) availableSlots() int {
	return w.cfg.Concurrency
}

func (w *Worker) process(ctx context.Context, job types.QueueJob) {
	err := w.handler(ctx, job)
	if err == nil {
		if cerr := w.store.Complete(ctx, job.JobID, job.LeaseToken); cerr != nil && w.logger != nil {
			w.logger.Error(ctx, "queue complete failed", "jobId", job.JobID, "error", cerr)
		}
		return
	}

	retryAt := time.Now().Add(w.cfg.RetryBackoff(job.Attempts))
	if ferr := w.store.Fail(ctx, job.JobID, job.LeaseToken, err.Error(), retryAt); ferr != nil && w.logger != nil {
		w.logger.Error(ctx, "queue fail failed", "jobId", job.JobID, "error", ferr)
	}
	w.publish(ctx, hooks.RunQueued, job, map[string]any{"error": err.Error(), "attempts": job.Attempts})
}

func (w *Worker) publish(ctx context.Context, typ hooks.EventType, job types.QueueJob, payload map[string]any) {
	if w.bus == nil {
		return
	}
	_ = w.bus.Publish(ctx, hooks.NewEvent(typ, job.Scope.TenantID, job.Scope.WorkspaceID, job.WorkflowID, payload))
}
