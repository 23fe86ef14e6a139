package loop

import (
	"context"
	"time"

	"github.com/durableplanner/plannerd/internal/idgen"
	"github.com/durableplanner/plannerd/runtime/hooks"
	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/types"
)

// commitStep persists one step atomically: the updated workflow, the
// step itself, its policy/approval decisions, an audit record, and a
// run_event, all inside a single WithTransaction call keyed on the
// workflow's advisory lock.
func (d Deps) commitStep(ctx context.Context, wf *types.Workflow, step types.PlannerStep, policyDecision *types.PolicyDecision, approvalDecision *types.ApprovalDecision) error {
	scope := wf.Scope
	event := types.RunEvent{
		EventID:    idgen.NewEventID(),
		WorkflowID: wf.WorkflowID,
		Scope:      scope,
		StepNumber: step.StepNumber,
		Kind:       string(step.Status),
		Payload:    map[string]any{"intentType": string(step.IntentType)},
		RecordedAt: time.Now(),
	}
	audit := types.AuditRecord{
		AuditID:    idgen.New(),
		Scope:      scope,
		WorkflowID: wf.WorkflowID,
		StepNumber: step.StepNumber,
		Kind:       "step",
		Summary:    summarizeStep(step),
		RecordedAt: time.Now(),
	}

	commit := persistence.StepCommit{
		Workflow:         *wf,
		Step:             step,
		Audit:            []types.AuditRecord{audit},
		PolicyDecision:   policyDecision,
		ApprovalDecision: approvalDecision,
		Events:           []types.RunEvent{event},
	}

	err := d.Store.WithTransaction(ctx, scope, wf.WorkflowID, func(ctx context.Context, tx persistence.Tx) error {
		return tx.CommitStep(ctx, commit)
	})
	if err != nil {
		return err
	}

	d.publish(ctx, hooks.NewEvent(hooks.StepLatency, scope.TenantID, scope.WorkspaceID, wf.WorkflowID, map[string]any{
		"stepNumber": step.StepNumber,
		"status":     string(step.Status),
	}))
	return nil
}

// commitTerminal persists a workflow transitioning straight to a terminal
// status without an accompanying step (the max-steps-exhausted path).
func (d Deps) commitTerminal(ctx context.Context, wf types.Workflow) error {
	err := d.Store.WithTransaction(ctx, wf.Scope, wf.WorkflowID, func(ctx context.Context, tx persistence.Tx) error {
		return tx.UpdateWorkflow(ctx, wf)
	})
	if err != nil {
		return err
	}
	d.emitTerminal(ctx, wf)
	return nil
}

func (d Deps) publish(ctx context.Context, event hooks.Event) {
	if d.Bus == nil {
		return
	}
	if err := d.Bus.Publish(ctx, event); err != nil && d.Logger != nil {
		d.Logger.Warn(ctx, "hook subscriber failed", "error", err, "eventType", string(event.Type))
	}
}

func (d Deps) emitStepLatency(ctx context.Context, wf types.Workflow, step int, dur time.Duration) {
	if d.Metrics != nil {
		d.Metrics.RecordTimer("plannerd_step_duration", dur, "workflow_id", wf.WorkflowID)
	}
	if d.Logger != nil {
		d.Logger.Debug(ctx, "planner step completed", "workflowId", wf.WorkflowID, "step", step, "durationMs", dur.Milliseconds())
	}
}

func (d Deps) emitTerminal(ctx context.Context, wf types.Workflow) {
	scope := wf.Scope
	switch wf.Status {
	case types.WorkflowCompleted:
		d.publish(ctx, hooks.NewEvent(hooks.WorkflowTerminalCompleted, scope.TenantID, scope.WorkspaceID, wf.WorkflowID, nil))
	case types.WorkflowFailed:
		d.publish(ctx, hooks.NewEvent(hooks.WorkflowTerminalFailed, scope.TenantID, scope.WorkspaceID, wf.WorkflowID, map[string]any{"errorSummary": wf.ErrorSummary}))
	}
	if d.Metrics != nil {
		d.Metrics.IncCounter("plannerd_workflow_terminal_total", 1, "status", string(wf.Status))
	}
}
