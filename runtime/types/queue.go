package types

import "time"

// QueueJobStatus is the lifecycle of a queued workflow-advance job.
type QueueJobStatus string

const (
	QueueJobPending   QueueJobStatus = "pending"
	QueueJobLeased    QueueJobStatus = "leased"
	QueueJobDone      QueueJobStatus = "done"
	QueueJobDead      QueueJobStatus = "dead"
)

// QueueJob is one unit of work on the lease-based queue: "advance this
// workflow". A job is claimed with SELECT ... FOR UPDATE SKIP LOCKED and
// holds a lease token until the worker commits or the lease expires.
type QueueJob struct {
	JobID        string
	Scope        Scope
	RequestID    string
	WorkflowID   string
	ThreadID     string
	// ObjectivePrompt and OccurredAt round-trip the triggering
	// ObjectiveRequest so a worker can rebuild it from the claimed job alone,
	// without a separate lookup keyed on RequestID.
	ObjectivePrompt string
	OccurredAt      time.Time
	Status          QueueJobStatus
	LeaseToken      string
	LeaseExpires    *time.Time
	Attempts        int
	MaxAttempts     int
	NotBefore       time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Claimable reports whether the job is eligible to be claimed right now:
// pending and past its NotBefore, or leased with an expired lease (worker
// died without releasing it).
func (j QueueJob) Claimable(now time.Time) bool {
	if j.NotBefore.After(now) {
		return false
	}
	switch j.Status {
	case QueueJobPending:
		return true
	case QueueJobLeased:
		return j.LeaseExpires != nil && j.LeaseExpires.Before(now)
	default:
		return false
	}
}
