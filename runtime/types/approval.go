package types

import "time"

// ApprovalStatus is the lifecycle of a PendingApproval gate.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalDecision is the resolution an approval_signal carries back into the
// workflow once a human approves or rejects a parked step.
type ApprovalDecision struct {
	ApprovalID string
	Status     ApprovalStatus
	DecidedBy  string
	Reason     string
	DecidedAt  time.Time
}
