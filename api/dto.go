package api

import (
	"time"

	"github.com/durableplanner/plannerd/runtime/types"
)

// objectiveRequestDTO is the wire shape of enqueueWorkflowJob's payload.
// runtime/types stays free of JSON tags, so the control-plane surface owns
// its own request/response shapes and maps them explicitly.
type objectiveRequestDTO struct {
	RequestID       string    `json:"requestId"`
	TenantID        string    `json:"tenantId"`
	WorkspaceID     string    `json:"workspaceId"`
	WorkflowID      string    `json:"workflowId"`
	ThreadID        string    `json:"threadId"`
	OccurredAt      time.Time `json:"occurredAt"`
	ObjectivePrompt string    `json:"objectivePrompt"`
	SchemaVersion   string    `json:"schemaVersion"`
}

func (d objectiveRequestDTO) toDomain() types.ObjectiveRequest {
	return types.ObjectiveRequest{
		RequestID:       d.RequestID,
		TenantID:        d.TenantID,
		WorkspaceID:     d.WorkspaceID,
		WorkflowID:      d.WorkflowID,
		ThreadID:        d.ThreadID,
		OccurredAt:      d.OccurredAt,
		ObjectivePrompt: d.ObjectivePrompt,
		SchemaVersion:   d.SchemaVersion,
	}
}

type queueJobDTO struct {
	JobID       string    `json:"jobId"`
	WorkflowID  string    `json:"workflowId"`
	RequestID   string    `json:"requestId"`
	Status      string    `json:"status"`
	MaxAttempts int       `json:"maxAttempts"`
	NotBefore   time.Time `json:"notBefore"`
}

func toQueueJobDTO(j types.QueueJob) queueJobDTO {
	return queueJobDTO{
		JobID:       j.JobID,
		WorkflowID:  j.WorkflowID,
		RequestID:   j.RequestID,
		Status:      string(j.Status),
		MaxAttempts: j.MaxAttempts,
		NotBefore:   j.NotBefore,
	}
}

// signalDTO is the wire shape of resumeWithSignal: exactly one of Approval
// or UserReply must be set, matching Type.
type signalDTO struct {
	Type       string        `json:"type"`
	OccurredAt time.Time     `json:"occurredAt"`
	Approval   *approvalDTO  `json:"approval,omitempty"`
	UserReply  *userReplyDTO `json:"userReply,omitempty"`
}

type approvalDTO struct {
	ApprovalID string `json:"approvalId"`
	Status     string `json:"status"`
	DecidedBy  string `json:"decidedBy"`
	Reason     string `json:"reason,omitempty"`
}

type userReplyDTO struct {
	StepNumber int    `json:"stepNumber"`
	Text       string `json:"text"`
}

func (d signalDTO) toDomain(scope types.Scope, workflowID, threadID string) types.Signal {
	sig := types.Signal{
		Type:       types.SignalType(d.Type),
		Scope:      scope,
		WorkflowID: workflowID,
		ThreadID:   threadID,
		OccurredAt: d.OccurredAt,
	}
	if d.Approval != nil {
		sig.Approval = &types.ApprovalDecision{
			ApprovalID: d.Approval.ApprovalID,
			Status:     types.ApprovalStatus(d.Approval.Status),
			DecidedBy:  d.Approval.DecidedBy,
			Reason:     d.Approval.Reason,
			DecidedAt:  d.OccurredAt,
		}
	}
	if d.UserReply != nil {
		sig.UserReply = &types.UserReplySignal{
			StepNumber: d.UserReply.StepNumber,
			Text:       d.UserReply.Text,
		}
	}
	return sig
}

// inboundMessageDTO is the wire shape of ingestInboundMessage: a
// provider-addressed occurrence, always resolved as a user_reply_signal.
type inboundMessageDTO struct {
	Provider       string    `json:"provider"`
	ProviderTeamID string    `json:"providerTeamId"`
	EventID        string    `json:"eventId"`
	ChannelID      string    `json:"channelId"`
	ThreadID       string    `json:"threadId"`
	MessageID      string    `json:"messageId"`
	UserID         string    `json:"userId"`
	Message        string    `json:"message"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type workflowDTO struct {
	WorkflowID      string         `json:"workflowId"`
	Status          string         `json:"status"`
	Steps           []stepDTO      `json:"steps"`
	WaitingQuestion string         `json:"waitingQuestion,omitempty"`
	Completion      map[string]any `json:"completion,omitempty"`
}

type stepDTO struct {
	StepNumber int    `json:"stepNumber"`
	IntentType string `json:"intentType"`
	Status     string `json:"status"`
}

func toWorkflowDTO(wf types.Workflow) workflowDTO {
	steps := make([]stepDTO, 0, len(wf.Steps))
	for _, s := range wf.Steps {
		steps = append(steps, stepDTO{StepNumber: s.StepNumber, IntentType: string(s.IntentType), Status: string(s.Status)})
	}
	return workflowDTO{
		WorkflowID:      wf.WorkflowID,
		Status:          string(wf.Status),
		Steps:           steps,
		WaitingQuestion: wf.WaitingQuestion,
		Completion:      wf.Completion,
	}
}

type errorDTO struct {
	Error string `json:"error"`
}
