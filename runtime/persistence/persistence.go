// Package persistence defines the persistence port: the transactional
// boundary every other component writes through, plus the read methods the
// planner loop and control plane query.
package persistence

import (
	"context"

	"github.com/durableplanner/plannerd/runtime/types"
)

// StepCommit is the atomic unit for one planner step: append PlannerStep,
// update Workflow, append AuditRecord, append PolicyDecision/ApprovalDecision
// if any, append RunEvent(s), all in a single durable transaction.
type StepCommit struct {
	Workflow         types.Workflow
	Step             types.PlannerStep
	Audit            []types.AuditRecord
	PolicyDecision   *types.PolicyDecision
	ApprovalDecision *types.ApprovalDecision
	Events           []types.RunEvent
}

// Work is the caller-supplied unit of work run inside a transaction. tx
// presents a single mutable view. Nested transactions are not flattened: Tx
// has no WithTransaction method, and a Store.WithTransaction call made from
// inside work does not join this transaction.
type Work func(ctx context.Context, tx Tx) error

// Tx is the mutating surface available inside a transaction.
type Tx interface {
	CommitObjectiveRequest(ctx context.Context, req types.ObjectiveRequest) error
	CommitStep(ctx context.Context, commit StepCommit) error
	UpdateWorkflow(ctx context.Context, wf types.Workflow) error
	RecordInboundMessageReceipt(ctx context.Context, receipt types.InboundMessageReceipt) (inserted bool, err error)
	UpsertWorkflowMessageThread(ctx context.Context, thread types.WorkflowMessageThread) error
	EnqueueWorkflowSignal(ctx context.Context, entry types.WorkflowSignalInbox) error
	MarkWorkflowSignalConsumed(ctx context.Context, workflowID, signalID string) error
}

// Store is the full persistence port: transactional writes plus read
// queries. Implementations: inmem (tests, arena+index) and postgres
// (production).
type Store interface {
	// WithTransaction presents work with a single mutable view scoped to
	// workflowID. Serializability per workflow is achieved with an advisory
	// lock keyed on workflowID; workflowID may be empty when the
	// transaction only creates a new objective request/workflow pair.
	WithTransaction(ctx context.Context, scope types.Scope, workflowID string, work Work) error

	GetWorkflow(ctx context.Context, scope types.Scope, workflowID string) (types.Workflow, bool, error)
	FindWorkflowByID(ctx context.Context, workflowID string) (types.Workflow, bool, error)
	ListPlannerSteps(ctx context.Context, scope types.Scope, workflowID string) ([]types.PlannerStep, error)
	ListObjectiveRequests(ctx context.Context, scope types.Scope) ([]types.ObjectiveRequest, error)
	ListSignals(ctx context.Context, scope types.Scope, workflowID string) ([]types.Signal, error)
	ListPolicyDecisions(ctx context.Context, scope types.Scope, workflowID string) ([]types.PolicyDecision, error)
	ListApprovalDecisions(ctx context.Context, scope types.Scope, workflowID string) ([]types.ApprovalDecision, error)
	ListAuditRecords(ctx context.Context, query AuditQuery) ([]types.AuditRecord, error)
	ListRunEvents(ctx context.Context, scope types.Scope, workflowID string) ([]types.RunEvent, error)

	ResolveWorkflowByThread(ctx context.Context, scope types.Scope, threadID string) (types.WorkflowMessageThread, bool, error)
	ListPendingWorkflowSignals(ctx context.Context, scope types.Scope, workflowID string) ([]types.WorkflowSignalInbox, error)
}

// AuditQuery filters ListAuditRecords, sorted by (recordedAt, stepNumber).
type AuditQuery struct {
	Scope      types.Scope
	WorkflowID string
}
