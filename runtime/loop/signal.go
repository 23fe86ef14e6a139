package loop

import (
	"context"
	"strconv"
	"time"

	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/hooks"
	"github.com/durableplanner/plannerd/runtime/types"
)

// applySignal resumes a parked workflow with an inbound signal (the
// exactly-once signal resume path's final step, after dedup/enqueue have
// already happened upstream). It mutates wf's parked step in place and
// commits the result, returning the workflow ready for the next loop
// iteration (or already terminal, for a rejected approval).
func applySignal(ctx context.Context, deps Deps, wf types.Workflow, sig types.Signal) (types.Workflow, error) {
	if wf.Status != types.WorkflowWaitingSignal {
		return wf, apperr.Validation("signal received for workflow not waiting on one")
	}

	switch sig.Type {
	case types.SignalApproval:
		return applyApprovalSignal(ctx, deps, wf, sig)
	case types.SignalUserReply:
		return applyUserReplySignal(ctx, deps, wf, sig)
	default:
		return wf, apperr.Validation("unknown signal type")
	}
}

func findStepIndex(wf types.Workflow, stepNumber int) int {
	for i, s := range wf.Steps {
		if s.StepNumber == stepNumber {
			return i
		}
	}
	return -1
}

func applyApprovalSignal(ctx context.Context, deps Deps, wf types.Workflow, sig types.Signal) (types.Workflow, error) {
	if wf.PendingApproval == nil || sig.Approval == nil {
		return wf, apperr.Validation("approval signal with no pending approval")
	}
	pending := *wf.PendingApproval
	if sig.Approval.ApprovalID != pending.ApprovalID {
		return wf, apperr.Validation("approval signal does not match the pending approval")
	}
	idx := findStepIndex(wf, pending.StepNumber)
	if idx < 0 {
		return wf, apperr.Internal("pending approval step not found", nil)
	}

	decision := types.ApprovalDecision{
		ApprovalID: pending.ApprovalID,
		Status:     sig.Approval.Status,
		DecidedBy:  sig.Approval.DecidedBy,
		Reason:     sig.Approval.Reason,
		DecidedAt:  sig.Approval.DecidedAt,
	}
	deps.publish(ctx, hooks.NewEvent(hooks.ApprovalResolved, wf.Scope.TenantID, wf.Scope.WorkspaceID, wf.WorkflowID, map[string]any{"approvalId": pending.ApprovalID, "status": string(decision.Status)}))

	next := wf
	next.PendingApproval = nil

	if sig.Approval.Status == types.ApprovalRejected {
		next.Steps[idx].Status = types.StepFailed
		next.Steps[idx].FailureReason = "APPROVAL_REJECTED: " + sig.Approval.Reason
		next.Status = types.WorkflowFailed
		next.ErrorSummary = "approval rejected at step " + strconv.Itoa(pending.StepNumber)
		next.UpdatedAt = time.Now()
		if err := deps.commitStep(ctx, &next, next.Steps[idx], nil, &decision); err != nil {
			return wf, err
		}
		deps.emitTerminal(ctx, next)
		return next, nil
	}

	next.Status = types.WorkflowRunning
	next.UpdatedAt = time.Now()
	approvedIntent := pending.Intent
	plannerInput := next.Steps[idx].PlannerInput
	// The parked step is a placeholder recorded when the approval gate
	// opened (always the last step, since a workflow never advances past a
	// pending approval). Drop it so executeIntent appends the real outcome
	// at the same step number.
	next.Steps = append(next.Steps[:idx], next.Steps[idx+1:]...)
	req := types.ObjectiveRequest{RequestID: pending.RequestID, TenantID: wf.Scope.TenantID, WorkspaceID: wf.Scope.WorkspaceID, WorkflowID: wf.WorkflowID, ThreadID: wf.ThreadID}

	executed, _, err := executeIntent(ctx, deps, &next, req, pending.StepNumber, plannerInput, approvedIntent, nil)
	if err != nil {
		return wf, err
	}
	return executed, nil
}

func applyUserReplySignal(ctx context.Context, deps Deps, wf types.Workflow, sig types.Signal) (types.Workflow, error) {
	if sig.UserReply == nil {
		return wf, apperr.Validation("user reply signal with no payload")
	}
	idx := findStepIndex(wf, sig.UserReply.StepNumber)
	if idx < 0 {
		return wf, apperr.Internal("ask_user step not found for reply", nil)
	}

	next := wf
	next.Steps[idx].Status = types.StepCompleted
	next.Steps[idx].ToolResult = &types.ToolResult{
		Status: types.ToolResultOK,
		Data:   map[string]any{"reply": sig.UserReply.Text},
	}
	next.Status = types.WorkflowRunning
	next.WaitingQuestion = ""
	next.UpdatedAt = time.Now()

	if err := deps.commitStep(ctx, &next, next.Steps[idx], nil, nil); err != nil {
		return wf, err
	}
	return next, nil
}
