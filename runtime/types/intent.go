package types

// IntentType discriminates the PlannerIntent tagged union. The runtime
// supports exactly these three control-flow primitives.
type IntentType string

const (
	IntentToolCall IntentType = "tool_call"
	IntentAskUser  IntentType = "ask_user"
	IntentComplete IntentType = "complete"
)

// PlannerIntent is the sum type a planner turn resolves to. Only the fields
// relevant to Type are populated; ValidatePlannerIntent (runtime/contract) enforces
// that invariant before the intent reaches policy or execution.
type PlannerIntent struct {
	Type IntentType

	// tool_call
	ToolName string
	Args     map[string]any

	// ask_user
	Question string

	// complete
	Output map[string]any
}

// PlannerInputV1 composes everything buildPlanningContext assembles for a
// single planner call.
type PlannerInputV1 struct {
	ObjectivePrompt     string
	MemoryContext       string
	PriorStepSummaries  []string
	PolicyConstraints   []string
	AvailableTools      []string
	StepIndex           int
	Scope               Scope
}

// ToolResultStatus discriminates ToolResult's tagged union.
type ToolResultStatus string

const (
	ToolResultOK    ToolResultStatus = "ok"
	ToolResultError ToolResultStatus = "error"
)

// ToolResult is the outcome of dispatching a tool_call intent through the
// action adapter layer.
type ToolResult struct {
	Status      ToolResultStatus
	ActionClass string
	Provider    string
	Data        map[string]any
	ID          string

	ErrorCode string
	Message   string
	Retryable bool
}
