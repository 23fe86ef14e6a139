// Package inbox implements the exactly-once signal resume path: an inbound
// provider message is deduplicated by its message ID, resolved to a parked
// workflow via its thread identity, durably enqueued, and handed off to the
// queue so a worker drains it in occurredAt order.
package inbox

import (
	"context"
	"time"

	"github.com/durableplanner/plannerd/internal/idgen"
	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/contract"
	"github.com/durableplanner/plannerd/runtime/hooks"
	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/queue"
	"github.com/durableplanner/plannerd/runtime/types"
)

// InboundMessage is a provider-addressed occurrence that may resolve to a
// signal against a parked workflow: an approval webhook, a chat reply, or
// any other external event carrying a thread identity.
type InboundMessage struct {
	MessageID  string
	Scope      types.Scope
	ThreadID   string
	OccurredAt time.Time
	Signal     types.Signal
}

// Deps bundles what Ingest needs.
type Deps struct {
	Store      persistence.Store
	Queue      queue.Store
	Bus        hooks.Bus
	JobFactory func(workflowID string) types.QueueJob
	// Notifier, if set, is pinged after a successful enqueue. queue.Worker
	// does not subscribe to it; workers pick the job up on their next poll
	// tick.
	Notifier Notifier
}

// Ingest performs the resolve → validate → dedup → enqueue → notify sequence
// for one inbound message. Returns (false, nil) when the message ID has already been
// seen, so callers can treat redelivery as a success without reprocessing.
func Ingest(ctx context.Context, deps Deps, msg InboundMessage) (accepted bool, err error) {
	if !msg.Scope.Valid() {
		return false, apperr.Validation("inbound message: scope is required")
	}
	if msg.MessageID == "" {
		return false, apperr.Validation("inbound message: messageId is required")
	}

	thread, ok, err := deps.Store.ResolveWorkflowByThread(ctx, msg.Scope, msg.ThreadID)
	if err != nil {
		return false, apperr.Internal("resolve workflow by thread", err)
	}
	if !ok {
		return false, apperr.Validation("inbound message: no workflow parked on thread " + msg.ThreadID)
	}

	msg.Signal.Scope = msg.Scope
	msg.Signal.WorkflowID = thread.WorkflowID
	msg.Signal.ThreadID = msg.ThreadID
	if msg.Signal.OccurredAt.IsZero() {
		msg.Signal.OccurredAt = msg.OccurredAt
	}
	if msg.Signal.SignalID == "" {
		msg.Signal.SignalID = idgen.New()
	}
	if verr := contract.ValidateSignal(msg.Signal); verr != nil {
		return false, verr
	}

	var inserted bool
	err = deps.Store.WithTransaction(ctx, msg.Scope, thread.WorkflowID, func(ctx context.Context, tx persistence.Tx) error {
		var recErr error
		inserted, recErr = tx.RecordInboundMessageReceipt(ctx, types.InboundMessageReceipt{
			MessageID: msg.MessageID, Scope: msg.Scope, SignalID: msg.Signal.SignalID, ReceivedAt: time.Now(),
		})
		if recErr != nil || !inserted {
			return recErr
		}
		return tx.EnqueueWorkflowSignal(ctx, types.WorkflowSignalInbox{WorkflowID: thread.WorkflowID, Signal: msg.Signal})
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if deps.Bus != nil {
		_ = deps.Bus.Publish(ctx, hooks.NewEvent(hooks.SignalReceived, msg.Scope.TenantID, msg.Scope.WorkspaceID, thread.WorkflowID, map[string]any{"signalId": msg.Signal.SignalID}))
	}

	if deps.Queue != nil && deps.JobFactory != nil {
		if err := deps.Queue.Enqueue(ctx, deps.JobFactory(thread.WorkflowID)); err != nil {
			return true, apperr.Internal("enqueue resume job", err)
		}
	}
	if deps.Notifier != nil {
		_ = deps.Notifier.Notify(ctx, thread.WorkflowID)
	}
	return true, nil
}

// DrainNext returns the oldest unconsumed signal parked for workflowID, or
// ok=false if none are pending. The queue worker calls this once per claimed
// job to find the signal to feed back into the planner loop.
func DrainNext(ctx context.Context, store persistence.Store, scope types.Scope, workflowID string) (types.Signal, bool, error) {
	pending, err := store.ListPendingWorkflowSignals(ctx, scope, workflowID)
	if err != nil {
		return types.Signal{}, false, err
	}
	if len(pending) == 0 {
		return types.Signal{}, false, nil
	}
	return pending[0].Signal, true, nil
}

// Ack marks a drained signal consumed so a later drain never replays it.
func Ack(ctx context.Context, store persistence.Store, scope types.Scope, workflowID, signalID string) error {
	return store.WithTransaction(ctx, scope, workflowID, func(ctx context.Context, tx persistence.Tx) error {
		return tx.MarkWorkflowSignalConsumed(ctx, workflowID, signalID)
	})
}
