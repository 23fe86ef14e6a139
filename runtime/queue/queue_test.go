package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/queue"
	"github.com/durableplanner/plannerd/runtime/types"
)

func scope() types.Scope { return types.Scope{TenantID: "t1", WorkspaceID: "w1"} }

func TestEnqueueIsIdempotentOnRequestID(t *testing.T) {
	store := queue.NewInMemoryStore()
	job := queue.NewJob(queue.JobParams{JobID: "job-1", Scope: scope(), WorkflowID: "wf-1", RequestID: "req-1", MaxAttempts: 3})
	require.NoError(t, store.Enqueue(context.Background(), job))
	require.NoError(t, store.Enqueue(context.Background(), job))

	claimed, err := store.Claim(context.Background(), "worker-1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
}

func TestClaimLeasesAndExcludesUntilExpiry(t *testing.T) {
	store := queue.NewInMemoryStore()
	require.NoError(t, store.Enqueue(context.Background(), queue.NewJob(queue.JobParams{JobID: "job-1", Scope: scope(), WorkflowID: "wf-1", RequestID: "req-1", MaxAttempts: 3})))

	first, err := store.Claim(context.Background(), "worker-1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := store.Claim(context.Background(), "worker-2", 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestFailDeadLettersAfterMaxAttempts(t *testing.T) {
	store := queue.NewInMemoryStore()
	require.NoError(t, store.Enqueue(context.Background(), queue.NewJob(queue.JobParams{JobID: "job-1", Scope: scope(), WorkflowID: "wf-1", RequestID: "req-1", MaxAttempts: 1})))

	claimed, err := store.Claim(context.Background(), "worker-1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, store.Fail(context.Background(), claimed[0].JobID, claimed[0].LeaseToken, "boom", time.Now()))

	claimed2, err := store.Claim(context.Background(), "worker-2", 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, claimed2)
}

func TestFailReschedulesWithAttemptsRemaining(t *testing.T) {
	store := queue.NewInMemoryStore()
	require.NoError(t, store.Enqueue(context.Background(), queue.NewJob(queue.JobParams{JobID: "job-1", Scope: scope(), WorkflowID: "wf-1", RequestID: "req-1", MaxAttempts: 5})))

	claimed, err := store.Claim(context.Background(), "worker-1", 10, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Fail(context.Background(), claimed[0].JobID, claimed[0].LeaseToken, "transient", time.Now().Add(-time.Second)))

	claimed2, err := store.Claim(context.Background(), "worker-2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed2, 1)
}

func TestCompleteWithStaleLeaseTokenIsNoOp(t *testing.T) {
	store := queue.NewInMemoryStore()
	require.NoError(t, store.Enqueue(context.Background(), queue.NewJob(queue.JobParams{JobID: "job-1", Scope: scope(), WorkflowID: "wf-1", RequestID: "req-1", MaxAttempts: 3})))

	claimed, err := store.Claim(context.Background(), "worker-a", 10, -time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	staleToken := claimed[0].LeaseToken

	reclaimed, err := store.Claim(context.Background(), "worker-b", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	require.NotEqual(t, staleToken, reclaimed[0].LeaseToken)

	// Worker A returns late and tries to complete with its now-stale token.
	require.NoError(t, store.Complete(context.Background(), "job-1", staleToken))

	// The job is still leased to worker B, not done.
	again, err := store.Claim(context.Background(), "worker-c", 10, -time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.NotEqual(t, reclaimed[0].LeaseToken, again[0].LeaseToken)
}

func TestFailWithStaleLeaseTokenIsNoOp(t *testing.T) {
	store := queue.NewInMemoryStore()
	require.NoError(t, store.Enqueue(context.Background(), queue.NewJob(queue.JobParams{JobID: "job-1", Scope: scope(), WorkflowID: "wf-1", RequestID: "req-1", MaxAttempts: 3})))

	claimed, err := store.Claim(context.Background(), "worker-a", 10, -time.Minute)
	require.NoError(t, err)
	staleToken := claimed[0].LeaseToken

	reclaimed, err := store.Claim(context.Background(), "worker-b", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)

	require.NoError(t, store.Fail(context.Background(), "job-1", staleToken, "boom", time.Now()))

	// Worker B's lease and in-progress attempt are untouched.
	stillLeased, err := store.Claim(context.Background(), "worker-c", 10, -time.Minute)
	require.NoError(t, err)
	require.Len(t, stillLeased, 1)
	require.Empty(t, stillLeased[0].LastError)
}

func TestLeaseTokensAreDistinctAcrossReclaims(t *testing.T) {
	store := queue.NewInMemoryStore()
	require.NoError(t, store.Enqueue(context.Background(), queue.NewJob(queue.JobParams{JobID: "job-1", Scope: scope(), WorkflowID: "wf-1", RequestID: "req-1", MaxAttempts: 3})))

	first, err := store.Claim(context.Background(), "worker-1", 10, -time.Minute)
	require.NoError(t, err)
	second, err := store.Claim(context.Background(), "worker-1", 10, time.Minute)
	require.NoError(t, err)

	require.NotEqual(t, first[0].LeaseToken, second[0].LeaseToken)
	require.Contains(t, second[0].LeaseToken, "worker-1:")
}

func TestWorkerCompletesSuccessfulJob(t *testing.T) {
	store := queue.NewInMemoryStore()
	require.NoError(t, store.Enqueue(context.Background(), queue.NewJob(queue.JobParams{JobID: "job-1", Scope: scope(), WorkflowID: "wf-1", RequestID: "req-1", MaxAttempts: 3})))

	var handled int32
	w := queue.NewWorker(store, func(context.Context, types.QueueJob) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}, queue.WorkerConfig{WorkerID: "w1", Concurrency: 2, PollInterval: 10 * time.Millisecond, LeaseDuration: time.Minute}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	require.Equal(t, int32(1), atomic.LoadInt32(&handled))
}

func TestWorkerRetriesFailedJob(t *testing.T) {
	store := queue.NewInMemoryStore()
	require.NoError(t, store.Enqueue(context.Background(), queue.NewJob(queue.JobParams{JobID: "job-1", Scope: scope(), WorkflowID: "wf-1", RequestID: "req-1", MaxAttempts: 100})))

	w := queue.NewWorker(store, func(context.Context, types.QueueJob) error {
		return errors.New("boom")
	}, queue.WorkerConfig{
		WorkerID: "w1", Concurrency: 1, PollInterval: 10 * time.Millisecond, LeaseDuration: time.Minute,
		RetryBackoff: func(int) time.Duration { return -time.Second },
	}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = w.Run(ctx)

	claimed, err := store.Claim(context.Background(), "w2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, "boom", claimed[0].LastError)
}
