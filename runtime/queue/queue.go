// Package queue implements the lease-based workflow-advance queue and its
// worker pool. A job is "advance workflow X"; claiming uses
// SELECT ... FOR UPDATE SKIP LOCKED semantics so multiple worker processes
// can share one queue without double-processing a lease.
package queue

import (
	"context"
	"time"

	"github.com/durableplanner/plannerd/runtime/types"
)

// Store is the queue persistence port. Implementations: inmem (tests) and
// postgres (production, backed by the workflow_queue_jobs table).
type Store interface {
	// Enqueue upserts a job keyed on (tenantId, workspaceId, requestId): a
	// redelivery of the same request ID never creates a second job.
	Enqueue(ctx context.Context, job types.QueueJob) error
	// Claim atomically leases up to max claimable jobs to workerID, extending
	// LeaseExpires by leaseDuration from now.
	Claim(ctx context.Context, workerID string, max int, leaseDuration time.Duration) ([]types.QueueJob, error)
	// Complete marks jobID done, conditioned on leaseToken still matching the
	// job's current lease: a stale leaseToken (the caller's lease already
	// expired and was reclaimed by another worker) makes this a no-op.
	Complete(ctx context.Context, jobID string, leaseToken string) error
	// Fail records a failed attempt, conditioned on leaseToken still matching
	// the job's current lease for the same reason as Complete. If attempts
	// remain, the job is rescheduled at retryAt with status pending;
	// otherwise it is dead-lettered.
	Fail(ctx context.Context, jobID string, leaseToken string, lastError string, retryAt time.Time) error
}

// Handler advances one workflow's job. A nil error marks the job complete;
// any error triggers the retry/dead-letter path in Fail.
type Handler func(ctx context.Context, job types.QueueJob) error

// JobParams is the full set of fields NewJob needs to build a claimable job
// that also carries enough of the triggering ObjectiveRequest for a worker
// to rebuild it without a separate lookup.
type JobParams struct {
	JobID           string
	Scope           types.Scope
	WorkflowID      string
	RequestID       string
	ThreadID        string
	ObjectivePrompt string
	OccurredAt      time.Time
	MaxAttempts     int
}

// NewJob builds a QueueJob ready for Enqueue.
func NewJob(p JobParams) types.QueueJob {
	now := time.Now()
	if p.OccurredAt.IsZero() {
		p.OccurredAt = now
	}
	return types.QueueJob{
		JobID:           p.JobID,
		Scope:           p.Scope,
		RequestID:       p.RequestID,
		WorkflowID:      p.WorkflowID,
		ThreadID:        p.ThreadID,
		ObjectivePrompt: p.ObjectivePrompt,
		OccurredAt:      p.OccurredAt,
		Status:          types.QueueJobPending,
		MaxAttempts:     p.MaxAttempts,
		NotBefore:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
