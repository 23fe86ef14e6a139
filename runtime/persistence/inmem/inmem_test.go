package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/persistence/inmem"
	"github.com/durableplanner/plannerd/runtime/types"
)

var scope = types.Scope{TenantID: "t1", WorkspaceID: "w1"}

func TestCommitObjectiveRequestIsNotCommittedTwice(t *testing.T) {
	store := inmem.New()
	req := types.ObjectiveRequest{RequestID: "r1", TenantID: "t1", WorkspaceID: "w1", WorkflowID: "wf1", OccurredAt: time.Now(), ObjectivePrompt: "hi", SchemaVersion: "v1"}

	err := store.WithTransaction(context.Background(), scope, "", func(ctx context.Context, tx persistence.Tx) error {
		return tx.CommitObjectiveRequest(ctx, req)
	})
	require.NoError(t, err)

	err = store.WithTransaction(context.Background(), scope, "", func(ctx context.Context, tx persistence.Tx) error {
		return tx.CommitObjectiveRequest(ctx, req)
	})
	require.Error(t, err)
}

func TestCommitStepPersistsWorkflowAndReadsBackSorted(t *testing.T) {
	store := inmem.New()
	wf := types.Workflow{
		WorkflowID: "wf1",
		Scope:      scope,
		Status:     types.WorkflowRunning,
		Steps: []types.PlannerStep{
			{WorkflowID: "wf1", StepNumber: 1, Status: types.StepCompleted},
			{WorkflowID: "wf1", StepNumber: 0, Status: types.StepToolExecuted},
		},
	}

	err := store.WithTransaction(context.Background(), scope, "wf1", func(ctx context.Context, tx persistence.Tx) error {
		return tx.CommitStep(ctx, persistence.StepCommit{Workflow: wf})
	})
	require.NoError(t, err)

	steps, err := store.ListPlannerSteps(context.Background(), scope, "wf1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, 0, steps[0].StepNumber)
	require.Equal(t, 1, steps[1].StepNumber)
}

func TestGetWorkflowEnforcesScopeIsolation(t *testing.T) {
	store := inmem.New()
	wf := types.Workflow{WorkflowID: "wf1", Scope: scope, Status: types.WorkflowRunning}
	err := store.WithTransaction(context.Background(), scope, "wf1", func(ctx context.Context, tx persistence.Tx) error {
		return tx.CommitStep(ctx, persistence.StepCommit{Workflow: wf})
	})
	require.NoError(t, err)

	other := types.Scope{TenantID: "t2", WorkspaceID: "w2"}
	_, ok, err := store.GetWorkflow(context.Background(), other, "wf1")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.GetWorkflow(context.Background(), scope, "wf1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecordInboundMessageReceiptIsIdempotent(t *testing.T) {
	store := inmem.New()
	receipt := types.InboundMessageReceipt{MessageID: "m1", Scope: scope, ReceivedAt: time.Now()}

	var firstInserted, secondInserted bool
	err := store.WithTransaction(context.Background(), scope, "", func(ctx context.Context, tx persistence.Tx) error {
		var err error
		firstInserted, err = tx.RecordInboundMessageReceipt(ctx, receipt)
		return err
	})
	require.NoError(t, err)

	err = store.WithTransaction(context.Background(), scope, "", func(ctx context.Context, tx persistence.Tx) error {
		var err error
		secondInserted, err = tx.RecordInboundMessageReceipt(ctx, receipt)
		return err
	})
	require.NoError(t, err)

	require.True(t, firstInserted)
	require.False(t, secondInserted)
}

func TestEnqueueWorkflowSignalDedupsBySignalID(t *testing.T) {
	store := inmem.New()
	sig := types.Signal{SignalID: "s1", Type: types.SignalUserReply, Scope: scope, WorkflowID: "wf1", OccurredAt: time.Now(), UserReply: &types.UserReplySignal{Text: "yes"}}

	commit := func() error {
		return store.WithTransaction(context.Background(), scope, "wf1", func(ctx context.Context, tx persistence.Tx) error {
			return tx.EnqueueWorkflowSignal(ctx, types.WorkflowSignalInbox{WorkflowID: "wf1", Signal: sig})
		})
	}
	require.NoError(t, commit())
	require.NoError(t, commit())

	pending, err := store.ListPendingWorkflowSignals(context.Background(), scope, "wf1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestMarkWorkflowSignalConsumedRemovesFromPending(t *testing.T) {
	store := inmem.New()
	sig := types.Signal{SignalID: "s1", Type: types.SignalUserReply, Scope: scope, WorkflowID: "wf1", OccurredAt: time.Now(), UserReply: &types.UserReplySignal{Text: "yes"}}

	err := store.WithTransaction(context.Background(), scope, "wf1", func(ctx context.Context, tx persistence.Tx) error {
		return tx.EnqueueWorkflowSignal(ctx, types.WorkflowSignalInbox{WorkflowID: "wf1", Signal: sig})
	})
	require.NoError(t, err)

	err = store.WithTransaction(context.Background(), scope, "wf1", func(ctx context.Context, tx persistence.Tx) error {
		return tx.MarkWorkflowSignalConsumed(ctx, "wf1", "s1")
	})
	require.NoError(t, err)

	pending, err := store.ListPendingWorkflowSignals(context.Background(), scope, "wf1")
	require.NoError(t, err)
	require.Len(t, pending, 0)
}
