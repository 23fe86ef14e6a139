// Package apperr defines the typed error taxonomy shared by every runtime
// component. Callers distinguish error kinds with errors.Is/As instead of
// inspecting message text.
package apperr

import "errors"

// Kind classifies an Error without inspecting its message.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindPolicyBlocked   Kind = "POLICY_BLOCKED"
	KindApprovalRequired Kind = "APPROVAL_REQUIRED"
	KindToolFailure     Kind = "TOOL_FAILURE"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// Error is the runtime's uniform error envelope. Fields beyond Kind and
// Message are populated only where the kind makes them meaningful.
type Error struct {
	Kind      Kind
	Message   string
	ToolName  string
	PolicyID  string
	Reason    string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// sentinels let callers match by kind via errors.Is without type asserting.
var (
	ErrValidation       = errors.New("validation error")
	ErrPolicyBlocked    = errors.New("policy blocked")
	ErrApprovalRequired = errors.New("approval required")
	ErrToolFailure      = errors.New("tool failure")
	ErrInternal         = errors.New("internal error")
)

func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrPolicyBlocked:
		return e.Kind == KindPolicyBlocked
	case ErrApprovalRequired:
		return e.Kind == KindApprovalRequired
	case ErrToolFailure:
		return e.Kind == KindToolFailure
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return false
}

// Validation constructs a VALIDATION_ERROR. These are always pre-state-
// mutation and never retried.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// PolicyBlocked constructs a POLICY_BLOCKED error carrying the policy that
// blocked the step.
func PolicyBlocked(policyID, message string) *Error {
	return &Error{Kind: KindPolicyBlocked, PolicyID: policyID, Message: message}
}

// ApprovalRequired is not a failure: it signals the caller to park the
// workflow as waiting_signal.
func ApprovalRequired(reason string) *Error {
	return &Error{Kind: KindApprovalRequired, Reason: reason, Message: reason}
}

// ToolFailure constructs a TOOL_FAILURE, recording whether the retry layer
// should retry it.
func ToolFailure(toolName, message string, retryable bool) *Error {
	return &Error{Kind: KindToolFailure, ToolName: toolName, Message: message, Retryable: retryable}
}

// Internal wraps a persistence or invariant-violation failure.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// IsValidation reports whether err is a VALIDATION_ERROR.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsApprovalRequired reports whether err signals a parked approval gate.
func IsApprovalRequired(err error) bool { return errors.Is(err, ErrApprovalRequired) }

// As extracts the typed *Error from err, if any.
func As(err error) (*Error, bool) {
	var typed *Error
	if !errors.As(err, &typed) {
		return nil, false
	}
	return typed, true
}
