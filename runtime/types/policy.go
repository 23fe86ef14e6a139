package types

import "time"

// PolicyOutcomeKind discriminates the PolicyOutcome tagged union: a policy
// pack evaluation either lets the intent through unchanged, rewrites it, or
// blocks it outright.
type PolicyOutcomeKind string

const (
	PolicyAllow   PolicyOutcomeKind = "allow"
	PolicyRewrite PolicyOutcomeKind = "rewrite"
	PolicyBlock   PolicyOutcomeKind = "block"
)

// PolicyOutcome is the result of evaluating one policy pack against a
// planner intent. RewrittenIntent is only populated when Kind is
// PolicyRewrite; ReasonCode and RiskClass are always populated so an
// approval gate (risk-based escalation) and audit trail have something to
// key off regardless of outcome.
type PolicyOutcome struct {
	Kind            PolicyOutcomeKind
	RewrittenIntent *PlannerIntent
	RiskClass       string
	ReasonCode      string
	Message         string
}

// PolicyDecision is the durable record committed alongside a PlannerStep,
// capturing which policy pack ran, its verdict, and whether an approval gate
// was subsequently opened.
type PolicyDecision struct {
	WorkflowID    string
	StepNumber    int
	PolicyPack    string
	PolicyVersion string
	Outcome       PolicyOutcome
	RequiresApproval bool
	EvaluatedAt   time.Time
}
