package types

import "time"

// WorkflowStatus is the terminal/non-terminal state of a Workflow.
// Terminal states (Completed, Failed) are sinks; WaitingSignal may
// transition back to Running on resume.
type WorkflowStatus string

const (
	WorkflowRunning       WorkflowStatus = "running"
	WorkflowWaitingSignal WorkflowStatus = "waiting_signal"
	WorkflowCompleted     WorkflowStatus = "completed"
	WorkflowFailed        WorkflowStatus = "failed"
)

// Terminal reports whether status is a sink state that admits no further
// transitions.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// StepStatus is the outcome recorded for a single PlannerStep.
type StepStatus string

const (
	StepToolExecuted   StepStatus = "tool_executed"
	StepWaitingSignal  StepStatus = "waiting_signal"
	StepCompleted      StepStatus = "completed"
	StepFailed         StepStatus = "failed"
)

// Workflow is the durable entity aggregating steps for one objective.
// Exactly one Workflow exists per workflowId within a scope.
type Workflow struct {
	WorkflowID      string
	Scope           Scope
	ThreadID        string
	RequestID       string
	Status          WorkflowStatus
	Steps           []PlannerStep
	WaitingQuestion string
	Completion      map[string]any
	PendingApproval *PendingApproval
	ErrorSummary    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NextStepNumber returns the step number the next committed step must use to
// keep stepNumber gap-free and strictly increasing.
func (w Workflow) NextStepNumber() int {
	return len(w.Steps)
}

// PendingApproval describes an approval gate parking the workflow.
type PendingApproval struct {
	ApprovalID  string
	RequestID   string
	StepNumber  int
	Intent      PlannerIntent
	RiskClass   string
	ReasonCode  string
	RequestedAt time.Time
	Status      ApprovalStatus
}

// PlannerStep is one trip through the planner loop pipeline, committed
// atomically with its policy/approval/tool outcome.
type PlannerStep struct {
	WorkflowID     string
	StepNumber     int
	IntentType     IntentType
	Status         StepStatus
	PlannerInput   PlannerInputV1
	PlannerIntent  PlannerIntent
	ToolResult     *ToolResult
	FailureReason  string
	CreatedAt      time.Time
}
