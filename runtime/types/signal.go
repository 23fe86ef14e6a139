package types

import "time"

// SignalType discriminates the Signal tagged union: an approval resolution
// or a free-form user answer to an ask_user intent.
type SignalType string

const (
	SignalApproval SignalType = "approval_signal"
	SignalUserReply SignalType = "user_reply_signal"
)

// Signal is an inbound occurrence that can resume a parked workflow. Exactly
// one of Approval or UserReply is populated, matching Type.
type Signal struct {
	SignalID    string
	Type        SignalType
	Scope       Scope
	WorkflowID  string
	ThreadID    string
	OccurredAt  time.Time

	Approval *ApprovalDecision
	UserReply *UserReplySignal
}

// UserReplySignal carries a user's answer to a parked ask_user intent.
type UserReplySignal struct {
	StepNumber int
	Text       string
}

// InboundMessageReceipt records that a given externally-addressed message
// (by its provider-assigned message ID) has already been ingested, so a
// redelivery is rejected by the primary key rather than reprocessed, giving
// the signal resume path exactly-once delivery.
type InboundMessageReceipt struct {
	MessageID  string
	Scope      Scope
	SignalID   string
	ReceivedAt time.Time
}

// WorkflowMessageThread resolves an externally-addressed thread identifier
// (e.g. a chat thread or ticket ID) to the workflow it is parked against, so
// an inbound message can be routed to the correct waiting workflow.
type WorkflowMessageThread struct {
	ThreadID   string
	Scope      Scope
	WorkflowID string
	CreatedAt  time.Time
}

// WorkflowSignalInbox is the durable holding area for signals that arrive
// before (or after) the workflow is actually parked waiting for them. Drained
// in OccurredAt order once the workflow reaches WaitingSignal.
type WorkflowSignalInbox struct {
	WorkflowID string
	Signal     Signal
	Consumed   bool
	ConsumedAt *time.Time
}
