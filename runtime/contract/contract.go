// Package contract validates every entry point into the runtime before any
// state mutation: objective requests, planner intents, and inbound signals.
// Validation is all-or-nothing — a single invalid field rejects the whole
// payload with a VALIDATION_ERROR.
package contract

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/types"
)

// Validator wraps a go-playground/validator instance configured for the
// runtime's structs. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with struct tags registered for every entry-point
// type below.
func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// objectiveRequestV1 mirrors types.ObjectiveRequest with validator tags; kept
// distinct so runtime/types stays free of a third-party struct-tag
// dependency.
type objectiveRequestV1 struct {
	RequestID       string `validate:"required"`
	TenantID        string `validate:"required"`
	WorkspaceID     string `validate:"required"`
	WorkflowID      string `validate:"required"`
	ThreadID        string `validate:"required"`
	ObjectivePrompt string `validate:"required"`
	SchemaVersion   string `validate:"required,eq=v1"`
}

// ValidateObjectiveRequest enforces ObjectiveRequestV1: all fields
// non-empty, occurredAt round-trips through ISO-8601, schemaVersion is
// exactly "v1".
func (c *Validator) ValidateObjectiveRequest(r types.ObjectiveRequest) error {
	shape := objectiveRequestV1{
		RequestID:       r.RequestID,
		TenantID:        r.TenantID,
		WorkspaceID:     r.WorkspaceID,
		WorkflowID:      r.WorkflowID,
		ThreadID:        r.ThreadID,
		ObjectivePrompt: r.ObjectivePrompt,
		SchemaVersion:   r.SchemaVersion,
	}
	if err := c.v.Struct(shape); err != nil {
		return apperr.Validation("objective request: " + err.Error())
	}
	if r.OccurredAt.IsZero() {
		return apperr.Validation("objective request: occurredAt is required")
	}
	if !roundTripsISO8601(r.OccurredAt) {
		return apperr.Validation("objective request: occurredAt does not round-trip as ISO-8601")
	}
	return nil
}

// ValidatePlannerIntent enforces the PlannerIntent tagged union: tool_call
// requires a non-empty toolName and an args object, ask_user requires a
// non-empty question, complete allows an optional output object.
func ValidatePlannerIntent(intent types.PlannerIntent) error {
	switch intent.Type {
	case types.IntentToolCall:
		if intent.ToolName == "" {
			return apperr.Validation("tool_call intent: toolName is required")
		}
		if intent.Args == nil {
			return apperr.Validation("tool_call intent: args is required")
		}
	case types.IntentAskUser:
		if intent.Question == "" {
			return apperr.Validation("ask_user intent: question is required")
		}
	case types.IntentComplete:
		// output is optional; nil is a valid empty completion.
	default:
		return apperr.Validation("planner intent: unknown type " + string(intent.Type))
	}
	return nil
}

// ValidateSignal enforces WorkflowSignalV1 shape: scope fields present, type
// from the allowed set, occurredAt parses as ISO-8601.
func ValidateSignal(s types.Signal) error {
	if !s.Scope.Valid() {
		return apperr.Validation("signal: scope (tenantId, workspaceId) is required")
	}
	if s.SignalID == "" {
		return apperr.Validation("signal: signalId is required")
	}
	switch s.Type {
	case types.SignalApproval:
		if s.Approval == nil {
			return apperr.Validation("approval_signal: approval payload is required")
		}
		if s.Approval.ApprovalID == "" {
			return apperr.Validation("approval_signal: approvalId is required")
		}
	case types.SignalUserReply:
		if s.UserReply == nil {
			return apperr.Validation("user_reply_signal: payload is required")
		}
	default:
		return apperr.Validation("signal: unknown type " + string(s.Type))
	}
	if s.OccurredAt.IsZero() || !roundTripsISO8601(s.OccurredAt) {
		return apperr.Validation("signal: occurredAt does not round-trip as ISO-8601")
	}
	return nil
}

// ProviderCallback is the shape of an inbound provider-originated callback
// (approvals, timers, external events) ingested ahead of signal resolution.
type ProviderCallback struct {
	Provider       string
	ProviderTeamID string
	EventID        string
	Scope          types.Scope
	WorkflowID     string
	OccurredAt     time.Time
}

// ValidateProviderCallback enforces ProviderCallbackV1 shape.
func ValidateProviderCallback(cb ProviderCallback) error {
	if cb.Provider == "" {
		return apperr.Validation("provider callback: provider is required")
	}
	if cb.EventID == "" {
		return apperr.Validation("provider callback: eventId is required")
	}
	if !cb.Scope.Valid() {
		return apperr.Validation("provider callback: scope (tenantId, workspaceId) is required")
	}
	if cb.OccurredAt.IsZero() || !roundTripsISO8601(cb.OccurredAt) {
		return apperr.Validation("provider callback: occurredAt does not round-trip as ISO-8601")
	}
	return nil
}

func roundTripsISO8601(t time.Time) bool {
	s := t.UTC().Format(time.RFC3339Nano)
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return false
	}
	return parsed.Equal(t.UTC())
}
