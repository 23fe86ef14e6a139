package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/durableplanner/plannerd/internal/idgen"
	"github.com/durableplanner/plannerd/runtime/types"
)

// PostgresStore implements Store against the workflow_queue_jobs table using
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent worker processes never
// contend on the same row.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps db as a queue Store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Enqueue(ctx context.Context, job types.QueueJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_queue_jobs
			(job_id, tenant_id, workspace_id, request_id, workflow_id, thread_id, objective_prompt, occurred_at, status, lease_token, lease_expires, attempts, max_attempts, not_before, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', NULL, 0, $10, $11, '', $12, $12)
		ON CONFLICT (tenant_id, workspace_id, request_id)
		DO UPDATE SET not_before = LEAST(workflow_queue_jobs.not_before, EXCLUDED.not_before), updated_at = EXCLUDED.updated_at`,
		job.JobID, job.Scope.TenantID, job.Scope.WorkspaceID, job.RequestID, job.WorkflowID,
		job.ThreadID, job.ObjectivePrompt, job.OccurredAt,
		string(types.QueueJobPending), job.MaxAttempts, job.NotBefore, time.Now())
	return err
}

type queueJobRow struct {
	JobID           string     `db:"job_id"`
	TenantID        string     `db:"tenant_id"`
	WorkspaceID     string     `db:"workspace_id"`
	RequestID       string     `db:"request_id"`
	WorkflowID      string     `db:"workflow_id"`
	ThreadID        string     `db:"thread_id"`
	ObjectivePrompt string     `db:"objective_prompt"`
	OccurredAt      time.Time  `db:"occurred_at"`
	Status          string     `db:"status"`
	LeaseToken      string     `db:"lease_token"`
	LeaseExpires    *time.Time `db:"lease_expires"`
	Attempts        int        `db:"attempts"`
	MaxAttempts     int        `db:"max_attempts"`
	NotBefore       time.Time  `db:"not_before"`
	LastError       string     `db:"last_error"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r queueJobRow) toJob() types.QueueJob {
	return types.QueueJob{
		JobID:           r.JobID,
		Scope:           types.Scope{TenantID: r.TenantID, WorkspaceID: r.WorkspaceID},
		RequestID:       r.RequestID,
		WorkflowID:      r.WorkflowID,
		ThreadID:        r.ThreadID,
		ObjectivePrompt: r.ObjectivePrompt,
		OccurredAt:      r.OccurredAt,
		Status:          types.QueueJobStatus(r.Status),
		LeaseToken:      r.LeaseToken,
		LeaseExpires:    r.LeaseExpires,
		Attempts:        r.Attempts,
		MaxAttempts:     r.MaxAttempts,
		NotBefore:       r.NotBefore,
		LastError:       r.LastError,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Claim selects up to max claimable rows with FOR UPDATE SKIP LOCKED inside
// one transaction, leases them to workerID, and commits.
func (s *PostgresStore) Claim(ctx context.Context, workerID string, max int, leaseDuration time.Duration) ([]types.QueueJob, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	var rows []queueJobRow
	err = tx.SelectContext(ctx, &rows, `
		SELECT job_id, tenant_id, workspace_id, request_id, workflow_id, thread_id, objective_prompt, occurred_at, status, lease_token, lease_expires, attempts, max_attempts, not_before, last_error, created_at, updated_at
		FROM workflow_queue_jobs
		WHERE not_before <= $1
		  AND (status = $2 OR (status = $3 AND lease_expires < $1))
		ORDER BY created_at
		LIMIT $4
		FOR UPDATE SKIP LOCKED`,
		now, string(types.QueueJobPending), string(types.QueueJobLeased), max)
	if err != nil {
		return nil, err
	}

	expires := now.Add(leaseDuration)
	claimed := make([]types.QueueJob, 0, len(rows))
	for _, row := range rows {
		leaseToken := idgen.LeaseToken(workerID)
		if _, err := tx.ExecContext(ctx, `
			UPDATE workflow_queue_jobs
			SET status = $1, lease_token = $2, lease_expires = $3, attempts = attempts + 1, updated_at = $4
			WHERE job_id = $5`,
			string(types.QueueJobLeased), leaseToken, expires, now, row.JobID); err != nil {
			return nil, err
		}
		job := row.toJob()
		job.Status = types.QueueJobLeased
		job.LeaseToken = leaseToken
		job.LeaseExpires = &expires
		job.Attempts++
		claimed = append(claimed, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks jobID done. The UPDATE is conditioned on lease_token still
// matching leaseToken, so a worker whose lease already expired and was
// reclaimed cannot mark a job another worker is actively reprocessing.
func (s *PostgresStore) Complete(ctx context.Context, jobID string, leaseToken string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE workflow_queue_jobs SET status = $1, updated_at = $2 WHERE job_id = $3 AND lease_token = $4`,
		string(types.QueueJobDone), time.Now(), jobID, leaseToken)
	return err
}

// Fail records a failed attempt, conditioned on lease_token still matching
// leaseToken for the same stale-lease reason as Complete.
func (s *PostgresStore) Fail(ctx context.Context, jobID string, leaseToken string, lastError string, retryAt time.Time) error {
	var attempts, maxAttempts int
	if err := s.db.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM workflow_queue_jobs WHERE job_id = $1 AND lease_token = $2`, jobID, leaseToken).Scan(&attempts, &maxAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	if attempts >= maxAttempts {
		_, err := s.db.ExecContext(ctx, `UPDATE workflow_queue_jobs SET status = $1, last_error = $2, updated_at = $3 WHERE job_id = $4 AND lease_token = $5`,
			string(types.QueueJobDead), lastError, time.Now(), jobID, leaseToken)
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_queue_jobs
		SET status = $1, last_error = $2, not_before = $3, lease_token = '', lease_expires = NULL, updated_at = $4
		WHERE job_id = $5 AND lease_token = $6`,
		string(types.QueueJobPending), lastError, retryAt, time.Now(), jobID, leaseToken)
	return err
}
