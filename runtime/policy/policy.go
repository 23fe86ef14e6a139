// Package policy implements the policy and approval engine: evaluates
// versioned policy packs against a planner intent to produce
// allow/rewrite/block, classifies risk, and gates tool_call intents behind
// approval signals.
package policy

import (
	"context"
	"time"

	"github.com/durableplanner/plannerd/runtime/types"
)

// PackRef identifies the policy pack version evaluated for one step, so the
// persisted PolicyDecision records exactly which rule set produced the
// outcome: the same inputs against the same pack version always decide the
// same way.
type PackRef struct {
	ID      string
	Version string
}

// Input is what a policy pack is evaluated against.
type Input struct {
	Request      types.ObjectiveRequest
	StepIndex    int
	Intent       types.PlannerIntent
	PlannerInput types.PlannerInputV1
	Pack         PackRef
}

// Engine evaluates policy packs. Implementations must be deterministic:
// identical Input and pack version always produce the identical Outcome.
type Engine interface {
	Evaluate(ctx context.Context, in Input) (types.PolicyOutcome, error)
}

// ApprovalGate decides whether an allowed/rewritten intent must additionally
// wait for a human approval signal before it may execute.
type ApprovalGate interface {
	RequiresApproval(outcome types.PolicyOutcome, intent types.PlannerIntent) bool
}

// ThresholdApprovalGate requires approval for a tool_call intent whenever the
// policy outcome's risk class is at or above Threshold in severity order
// low < medium < high.
type ThresholdApprovalGate struct {
	Threshold string
}

var riskSeverity = map[string]int{"low": 0, "medium": 1, "high": 2}

func (g ThresholdApprovalGate) RequiresApproval(outcome types.PolicyOutcome, intent types.PlannerIntent) bool {
	if outcome.Kind == types.PolicyBlock || intent.Type != types.IntentToolCall {
		return false
	}
	threshold, ok := riskSeverity[g.Threshold]
	if !ok {
		threshold = riskSeverity["high"]
	}
	level, ok := riskSeverity[outcome.RiskClass]
	if !ok {
		return false
	}
	return level >= threshold
}

// Decide evaluates the policy pack and, for allow/rewrite outcomes, applies
// gate to determine whether an approval gate must open. It returns the
// complete PolicyDecision ready for persistence.
func Decide(ctx context.Context, engine Engine, gate ApprovalGate, workflowID string, in Input) (types.PolicyDecision, error) {
	outcome, err := engine.Evaluate(ctx, in)
	if err != nil {
		return types.PolicyDecision{}, err
	}

	requiresApproval := false
	if outcome.Kind != types.PolicyBlock && gate != nil {
		requiresApproval = gate.RequiresApproval(outcome, in.Intent)
	}

	return types.PolicyDecision{
		WorkflowID:       workflowID,
		StepNumber:       in.StepIndex,
		PolicyPack:       in.Pack.ID,
		PolicyVersion:    in.Pack.Version,
		Outcome:          outcome,
		RequiresApproval: requiresApproval,
		EvaluatedAt:      time.Now(),
	}, nil
}
