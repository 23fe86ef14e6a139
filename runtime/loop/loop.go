// Package loop implements the planner loop: the stage pipeline that
// drives one workflow from an objective request to a terminal or parked
// state.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/durableplanner/plannerd/internal/idgen"
	"github.com/durableplanner/plannerd/runtime/adapter"
	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/contract"
	"github.com/durableplanner/plannerd/runtime/hooks"
	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/policy"
	"github.com/durableplanner/plannerd/runtime/telemetry"
	"github.com/durableplanner/plannerd/runtime/tools"
	"github.com/durableplanner/plannerd/runtime/types"
)

// Planner calls the external planning function: given PlannerInputV1, it
// returns the next PlannerIntent. The provider/model chain and prompt
// composition live outside the runtime.
type Planner interface {
	Plan(ctx context.Context, input types.PlannerInputV1) (types.PlannerIntent, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, input types.PlannerInputV1) (types.PlannerIntent, error)

func (f PlannerFunc) Plan(ctx context.Context, input types.PlannerInputV1) (types.PlannerIntent, error) {
	return f(ctx, input)
}

// MemoryProvider supplies the long/short-term context each buildPlanningContext
// stage composes into PlannerInputV1.
type MemoryProvider interface {
	MemoryContext(ctx context.Context, scope types.Scope, workflowID string) (string, error)
}

// Deps bundles everything Run needs to drive one workflow through the
// pipeline.
type Deps struct {
	Planner      Planner
	Memory       MemoryProvider
	Validator    *contract.Validator
	Tools        *tools.Registry
	Adapters     map[string]*adapter.Adapter
	PolicyEngine policy.Engine
	ApprovalGate policy.ApprovalGate
	PolicyPack   policy.PackRef
	Store        persistence.Store
	Bus          hooks.Bus
	Logger       telemetry.Logger
	Metrics      telemetry.Metrics

	MaxSteps int
}

// Result is what Run returns to the caller (control plane or worker).
type Result struct {
	WorkflowID      string
	Status          types.WorkflowStatus
	Steps           []types.PlannerStep
	WaitingQuestion string
	Completion      map[string]any
}

const defaultMaxSteps = 25

// Run drives the stage pipeline for req until the workflow reaches
// waiting_signal, completed, or failed, or exceeds Deps.MaxSteps.
func Run(ctx context.Context, deps Deps, req types.ObjectiveRequest, resumed *types.Signal) (Result, error) {
	maxSteps := deps.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	if err := deps.Validator.ValidateObjectiveRequest(req); err != nil {
		return Result{}, err
	}

	scope := req.Scope()
	wf, ok, err := deps.Store.GetWorkflow(ctx, scope, req.WorkflowID)
	if err != nil {
		return Result{}, apperr.Internal("load workflow", err)
	}
	if !ok {
		wf = types.Workflow{
			WorkflowID: req.WorkflowID,
			Scope:      scope,
			ThreadID:   req.ThreadID,
			RequestID:  req.RequestID,
			Status:     types.WorkflowRunning,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		if err := deps.Store.WithTransaction(ctx, scope, wf.WorkflowID, func(ctx context.Context, tx persistence.Tx) error {
			if err := tx.CommitObjectiveRequest(ctx, req); err != nil {
				return err
			}
			return tx.UpdateWorkflow(ctx, wf)
		}); err != nil {
			return Result{}, err
		}
		deps.publish(ctx, hooks.NewEvent(hooks.RunQueued, scope.TenantID, scope.WorkspaceID, wf.WorkflowID, nil))
	}

	if wf.Status.Terminal() {
		return toResult(wf), nil
	}

	if resumed != nil {
		wf, err = applySignal(ctx, deps, wf, *resumed)
		if err != nil {
			return Result{}, err
		}
		if wf.Status.Terminal() {
			return toResult(wf), nil
		}
	}

	for step := wf.NextStepNumber(); step < maxSteps; step = wf.NextStepNumber() {
		start := time.Now()
		next, terminal, err := runStep(ctx, deps, &wf, req, step)
		deps.emitStepLatency(ctx, wf, step, time.Since(start))
		if err != nil {
			return Result{}, err
		}
		wf = next
		if terminal {
			break
		}
	}

	if !wf.Status.Terminal() && wf.Status != types.WorkflowWaitingSignal && wf.NextStepNumber() >= maxSteps {
		wf.Status = types.WorkflowFailed
		wf.ErrorSummary = "max steps exhausted"
		wf.UpdatedAt = time.Now()
		if err := deps.commitTerminal(ctx, wf); err != nil {
			return Result{}, err
		}
	}

	return toResult(wf), nil
}

// runStep executes stages 1-7 for a single step index, committing the
// result atomically. It returns the updated workflow and whether the loop
// should stop (parked or terminal).
func runStep(ctx context.Context, deps Deps, wf *types.Workflow, req types.ObjectiveRequest, stepIndex int) (types.Workflow, bool, error) {
	scope := req.Scope()

	memoryContext := ""
	if deps.Memory != nil {
		mc, err := deps.Memory.MemoryContext(ctx, scope, wf.WorkflowID)
		if err != nil {
			return *wf, false, apperr.Internal("load memory context", err)
		}
		memoryContext = mc
	}

	priorSummaries := make([]string, 0, len(wf.Steps))
	for _, s := range wf.Steps {
		priorSummaries = append(priorSummaries, summarizeStep(s))
	}

	plannerInput := types.PlannerInputV1{
		ObjectivePrompt:    req.ObjectivePrompt,
		MemoryContext:      memoryContext,
		PriorStepSummaries: priorSummaries,
		AvailableTools:     deps.Tools.ListTools(scope),
		StepIndex:          stepIndex,
		Scope:              scope,
	}

	intent, err := deps.Planner.Plan(ctx, plannerInput)
	if err != nil {
		return *wf, false, apperr.Internal("planner call failed", err)
	}

	if verr := contract.ValidatePlannerIntent(intent); verr != nil {
		deps.publish(ctx, hooks.NewEvent(hooks.PlannerValidationFailure, scope.TenantID, scope.WorkspaceID, wf.WorkflowID, map[string]any{"error": verr.Error()}))
		return *wf, false, verr
	}

	policyDecision, err := policy.Decide(ctx, deps.PolicyEngine, deps.ApprovalGate, wf.WorkflowID, policy.Input{
		Request: req, StepIndex: stepIndex, Intent: intent, PlannerInput: plannerInput, Pack: deps.PolicyPack,
	})
	if err != nil {
		return *wf, false, apperr.Internal("policy evaluation failed", err)
	}
	deps.publish(ctx, hooks.NewEvent(hooks.PolicyDecisionEvent, scope.TenantID, scope.WorkspaceID, wf.WorkflowID, map[string]any{"outcome": string(policyDecision.Outcome.Kind)}))

	if policyDecision.Outcome.Kind == types.PolicyBlock {
		step := types.PlannerStep{
			WorkflowID: wf.WorkflowID, StepNumber: stepIndex, IntentType: intent.Type, Status: types.StepFailed,
			PlannerInput: plannerInput, PlannerIntent: intent, FailureReason: "policy_block: " + policyDecision.Outcome.ReasonCode, CreatedAt: time.Now(),
		}
		next := *wf
		next.Steps = append(next.Steps, step)
		next.Status = types.WorkflowFailed
		next.ErrorSummary = "policy blocked step " + fmt.Sprint(stepIndex)
		next.UpdatedAt = time.Now()
		if err := deps.commitStep(ctx, &next, step, &policyDecision, nil); err != nil {
			return *wf, false, err
		}
		deps.emitTerminal(ctx, next)
		return next, true, nil
	}

	effectiveIntent := intent
	if policyDecision.Outcome.Kind == types.PolicyRewrite && policyDecision.Outcome.RewrittenIntent != nil {
		effectiveIntent = *policyDecision.Outcome.RewrittenIntent
	}

	if policyDecision.RequiresApproval {
		approvalID := idgen.New()
		pending := &types.PendingApproval{
			ApprovalID: approvalID, RequestID: req.RequestID, StepNumber: stepIndex, Intent: effectiveIntent,
			RiskClass: policyDecision.Outcome.RiskClass, ReasonCode: policyDecision.Outcome.ReasonCode, RequestedAt: time.Now(), Status: types.ApprovalPending,
		}
		step := types.PlannerStep{
			WorkflowID: wf.WorkflowID, StepNumber: stepIndex, IntentType: effectiveIntent.Type, Status: types.StepWaitingSignal,
			PlannerInput: plannerInput, PlannerIntent: effectiveIntent, CreatedAt: time.Now(),
		}
		next := *wf
		next.Steps = append(next.Steps, step)
		next.Status = types.WorkflowWaitingSignal
		next.PendingApproval = pending
		next.UpdatedAt = time.Now()
		if err := deps.commitStep(ctx, &next, step, &policyDecision, nil); err != nil {
			return *wf, false, err
		}
		deps.publish(ctx, hooks.NewEvent(hooks.ApprovalRequested, scope.TenantID, scope.WorkspaceID, wf.WorkflowID, map[string]any{"approvalId": approvalID}))
		return next, true, nil
	}

	return executeIntent(ctx, deps, wf, req, stepIndex, plannerInput, effectiveIntent, &policyDecision)
}

// executeIntent dispatches stage 6 by intent type and commits the resulting
// step (stage 7).
func executeIntent(ctx context.Context, deps Deps, wf *types.Workflow, req types.ObjectiveRequest, stepIndex int, plannerInput types.PlannerInputV1, intent types.PlannerIntent, policyDecision *types.PolicyDecision) (types.Workflow, bool, error) {
	next := *wf
	step := types.PlannerStep{
		WorkflowID: wf.WorkflowID, StepNumber: stepIndex, IntentType: intent.Type, PlannerInput: plannerInput, PlannerIntent: intent, CreatedAt: time.Now(),
	}

	switch intent.Type {
	case types.IntentToolCall:
		result, err := dispatchToolCall(ctx, deps, wf.Scope, req, stepIndex, intent)
		if err != nil {
			if terr, ok := apperr.As(err); ok {
				step.Status = types.StepFailed
				step.FailureReason = terr.Error()
				next.Steps = append(next.Steps, step)
				next.Status = types.WorkflowFailed
				next.ErrorSummary = terr.Error()
				next.UpdatedAt = time.Now()
				if cerr := deps.commitStep(ctx, &next, step, policyDecision, nil); cerr != nil {
					return *wf, false, cerr
				}
				deps.emitTerminal(ctx, next)
				return next, true, nil
			}
			return *wf, false, err
		}
		step.Status = types.StepToolExecuted
		step.ToolResult = &result
		next.Steps = append(next.Steps, step)
		next.UpdatedAt = time.Now()
		if err := deps.commitStep(ctx, &next, step, policyDecision, nil); err != nil {
			return *wf, false, err
		}
		return next, false, nil

	case types.IntentAskUser:
		step.Status = types.StepWaitingSignal
		next.Steps = append(next.Steps, step)
		next.Status = types.WorkflowWaitingSignal
		next.WaitingQuestion = intent.Question
		next.UpdatedAt = time.Now()
		if err := deps.commitStep(ctx, &next, step, policyDecision, nil); err != nil {
			return *wf, false, err
		}
		return next, true, nil

	case types.IntentComplete:
		step.Status = types.StepCompleted
		next.Steps = append(next.Steps, step)
		next.Status = types.WorkflowCompleted
		next.Completion = intent.Output
		next.UpdatedAt = time.Now()
		if err := deps.commitStep(ctx, &next, step, policyDecision, nil); err != nil {
			return *wf, false, err
		}
		deps.emitTerminal(ctx, next)
		return next, true, nil

	default:
		return *wf, false, apperr.Validation("unknown intent type " + string(intent.Type))
	}
}

func dispatchToolCall(ctx context.Context, deps Deps, scope types.Scope, req types.ObjectiveRequest, stepIndex int, intent types.PlannerIntent) (types.ToolResult, error) {
	if err := deps.Tools.Validate(scope, intent.ToolName, intent.Args); err != nil {
		return types.ToolResult{}, err
	}
	a, ok := deps.Adapters[intent.ToolName]
	if !ok {
		return types.ToolResult{}, apperr.Validation(fmt.Sprintf("no adapter registered for tool %q", intent.ToolName))
	}
	return a.Execute(ctx, scope, req.RequestID, stepIndex, intent.Args)
}

func summarizeStep(s types.PlannerStep) string {
	switch s.IntentType {
	case types.IntentToolCall:
		return fmt.Sprintf("step %d: called %s", s.StepNumber, s.PlannerIntent.ToolName)
	case types.IntentAskUser:
		return fmt.Sprintf("step %d: asked %q", s.StepNumber, s.PlannerIntent.Question)
	case types.IntentComplete:
		return fmt.Sprintf("step %d: completed", s.StepNumber)
	default:
		return fmt.Sprintf("step %d", s.StepNumber)
	}
}

func toResult(wf types.Workflow) Result {
	return Result{
		WorkflowID:      wf.WorkflowID,
		Status:          wf.Status,
		Steps:           wf.Steps,
		WaitingQuestion: wf.WaitingQuestion,
		Completion:      wf.Completion,
	}
}
