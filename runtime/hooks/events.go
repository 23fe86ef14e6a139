package hooks

import "time"

// EventType enumerates the well-known runtime events broadcast on the bus:
// run queued, step latency, policy decision, planner validation failure, and
// workflow terminal states.
type EventType string

const (
	// RunQueued fires when a queue job is enqueued or re-enqueued for a workflow.
	RunQueued EventType = "run_queued"
	// RunClaimed fires when a worker claims a queue job off the lease queue.
	RunClaimed EventType = "run_claimed"
	// StepLatency fires after a planner step is committed, carrying the step
	// number and step status. The step's duration is not in the payload; the
	// loop records it separately as the plannerd_step_duration timer.
	StepLatency EventType = "step_latency"
	// PolicyDecisionEvent fires when the policy engine returns allow/rewrite/block.
	PolicyDecisionEvent EventType = "policy_decision"
	// ApprovalRequested fires when a step parks the workflow pending approval.
	ApprovalRequested EventType = "approval_requested"
	// ApprovalResolved fires when an approval signal resolves a pending approval.
	ApprovalResolved EventType = "approval_resolved"
	// PlannerValidationFailure fires when the contract validator rejects a
	// planner intent before any state mutation.
	PlannerValidationFailure EventType = "planner_validation_failure"
	// WorkflowTerminalCompleted fires once, when a workflow reaches status=completed.
	WorkflowTerminalCompleted EventType = "workflow_terminal_completed"
	// WorkflowTerminalFailed fires once, when a workflow reaches status=failed.
	WorkflowTerminalFailed EventType = "workflow_terminal_failed"
	// SignalReceived fires when an inbound signal is accepted into the inbox.
	SignalReceived EventType = "signal_received"
	// SignalConsumed fires when a parked workflow drains and acknowledges a signal.
	SignalConsumed EventType = "signal_consumed"
)

// Event is the payload carried on the bus for every published occurrence.
type Event struct {
	Type       EventType
	TenantID   string
	WorkspaceID string
	WorkflowID string
	RequestID  string
	StepNumber int
	OccurredAt time.Time
	Payload    map[string]any
}

// NewEvent constructs an Event with OccurredAt set to the current time.
func NewEvent(typ EventType, tenantID, workspaceID, workflowID string, payload map[string]any) Event {
	return Event{
		Type:        typ,
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		WorkflowID:  workflowID,
		OccurredAt:  timeNow(),
		Payload:     payload,
	}
}

// timeNow is a var indirection so tests can freeze time without a clock
// interface threaded through every constructor.
var timeNow = time.Now
