package inbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/hooks"
	"github.com/durableplanner/plannerd/runtime/inbox"
	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/persistence/inmem"
	"github.com/durableplanner/plannerd/runtime/queue"
	"github.com/durableplanner/plannerd/runtime/types"
)

func seedParkedWorkflow(t *testing.T, store *inmem.Store, scope types.Scope, workflowID, threadID string) {
	t.Helper()
	wf := types.Workflow{WorkflowID: workflowID, Scope: scope, ThreadID: threadID, Status: types.WorkflowWaitingSignal, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	err := store.WithTransaction(context.Background(), scope, workflowID, func(ctx context.Context, tx persistence.Tx) error {
		if err := tx.UpdateWorkflow(ctx, wf); err != nil {
			return err
		}
		return tx.UpsertWorkflowMessageThread(ctx, types.WorkflowMessageThread{ThreadID: threadID, Scope: scope, WorkflowID: workflowID, CreatedAt: time.Now()})
	})
	require.NoError(t, err)
}

func TestIngestAcceptsAndEnqueuesResumeJob(t *testing.T) {
	store := inmem.New()
	qstore := queue.NewInMemoryStore()
	scope := types.Scope{TenantID: "t1", WorkspaceID: "w1"}
	seedParkedWorkflow(t, store, scope, "wf-1", "th-1")

	deps := inbox.Deps{
		Store: store,
		Queue: qstore,
		Bus:   hooks.NewBus(),
		JobFactory: func(workflowID string) types.QueueJob {
			return queue.NewJob(queue.JobParams{JobID: "job-" + workflowID, Scope: scope, WorkflowID: workflowID, RequestID: "req-" + workflowID, MaxAttempts: 3})
		},
	}

	msg := inbox.InboundMessage{
		MessageID: "msg-1", Scope: scope, ThreadID: "th-1", OccurredAt: time.Now(),
		Signal: types.Signal{Type: types.SignalUserReply, UserReply: &types.UserReplySignal{StepNumber: 0, Text: "yes"}},
	}

	accepted, err := inbox.Ingest(context.Background(), deps, msg)
	require.NoError(t, err)
	require.True(t, accepted)

	claimed, err := qstore.Claim(context.Background(), "w1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	sig, ok, err := inbox.DrainNext(context.Background(), store, scope, "wf-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.SignalUserReply, sig.Type)
}

func TestIngestDedupsRedeliveredMessage(t *testing.T) {
	store := inmem.New()
	scope := types.Scope{TenantID: "t1", WorkspaceID: "w1"}
	seedParkedWorkflow(t, store, scope, "wf-1", "th-1")

	deps := inbox.Deps{Store: store}
	msg := inbox.InboundMessage{
		MessageID: "msg-1", Scope: scope, ThreadID: "th-1", OccurredAt: time.Now(),
		Signal: types.Signal{Type: types.SignalUserReply, UserReply: &types.UserReplySignal{StepNumber: 0, Text: "yes"}},
	}

	accepted1, err := inbox.Ingest(context.Background(), deps, msg)
	require.NoError(t, err)
	require.True(t, accepted1)

	accepted2, err := inbox.Ingest(context.Background(), deps, msg)
	require.NoError(t, err)
	require.False(t, accepted2)
}

func TestIngestRejectsUnknownThread(t *testing.T) {
	store := inmem.New()
	scope := types.Scope{TenantID: "t1", WorkspaceID: "w1"}
	deps := inbox.Deps{Store: store}

	_, err := inbox.Ingest(context.Background(), deps, inbox.InboundMessage{
		MessageID: "msg-1", Scope: scope, ThreadID: "missing", OccurredAt: time.Now(),
		Signal: types.Signal{Type: types.SignalUserReply, UserReply: &types.UserReplySignal{Text: "hi"}},
	})
	require.Error(t, err)
}

func TestAckMarksSignalConsumed(t *testing.T) {
	store := inmem.New()
	scope := types.Scope{TenantID: "t1", WorkspaceID: "w1"}
	seedParkedWorkflow(t, store, scope, "wf-1", "th-1")

	deps := inbox.Deps{Store: store}
	msg := inbox.InboundMessage{
		MessageID: "msg-1", Scope: scope, ThreadID: "th-1", OccurredAt: time.Now(),
		Signal: types.Signal{Type: types.SignalUserReply, UserReply: &types.UserReplySignal{Text: "yes"}},
	}
	_, err := inbox.Ingest(context.Background(), deps, msg)
	require.NoError(t, err)

	sig, ok, err := inbox.DrainNext(context.Background(), store, scope, "wf-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, inbox.Ack(context.Background(), store, scope, "wf-1", sig.SignalID))

	_, ok, err = inbox.DrainNext(context.Background(), store, scope, "wf-1")
	require.NoError(t, err)
	require.False(t, ok)
}
