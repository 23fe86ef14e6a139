package contract_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/contract"
	"github.com/durableplanner/plannerd/runtime/types"
)

func validRequest() types.ObjectiveRequest {
	return types.ObjectiveRequest{
		RequestID:       "r1",
		TenantID:        "t1",
		WorkspaceID:     "w1",
		WorkflowID:      "wf1",
		ThreadID:        "th1",
		OccurredAt:      time.Now(),
		ObjectivePrompt: "hello",
		SchemaVersion:   types.SchemaVersionV1,
	}
}

func TestValidateObjectiveRequestAccepts(t *testing.T) {
	v := contract.New()
	require.NoError(t, v.ValidateObjectiveRequest(validRequest()))
}

func TestValidateObjectiveRequestRejectsMissingField(t *testing.T) {
	v := contract.New()
	r := validRequest()
	r.ObjectivePrompt = ""

	err := v.ValidateObjectiveRequest(r)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestValidateObjectiveRequestRejectsWrongSchemaVersion(t *testing.T) {
	v := contract.New()
	r := validRequest()
	r.SchemaVersion = "v2"

	err := v.ValidateObjectiveRequest(r)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestValidatePlannerIntentToolCall(t *testing.T) {
	ok := types.PlannerIntent{Type: types.IntentToolCall, ToolName: "echo", Args: map[string]any{"x": 1}}
	require.NoError(t, contract.ValidatePlannerIntent(ok))

	missingTool := types.PlannerIntent{Type: types.IntentToolCall, Args: map[string]any{}}
	require.Error(t, contract.ValidatePlannerIntent(missingTool))

	missingArgs := types.PlannerIntent{Type: types.IntentToolCall, ToolName: "echo"}
	require.Error(t, contract.ValidatePlannerIntent(missingArgs))
}

func TestValidatePlannerIntentAskUser(t *testing.T) {
	require.NoError(t, contract.ValidatePlannerIntent(types.PlannerIntent{Type: types.IntentAskUser, Question: "confirm?"}))
	require.Error(t, contract.ValidatePlannerIntent(types.PlannerIntent{Type: types.IntentAskUser}))
}

func TestValidatePlannerIntentComplete(t *testing.T) {
	require.NoError(t, contract.ValidatePlannerIntent(types.PlannerIntent{Type: types.IntentComplete}))
	require.NoError(t, contract.ValidatePlannerIntent(types.PlannerIntent{Type: types.IntentComplete, Output: map[string]any{"msg": "ok"}}))
}

func TestValidatePlannerIntentUnknownType(t *testing.T) {
	require.Error(t, contract.ValidatePlannerIntent(types.PlannerIntent{Type: "bogus"}))
}

func TestValidateSignalApproval(t *testing.T) {
	s := types.Signal{
		SignalID:   "s1",
		Type:       types.SignalApproval,
		Scope:      types.Scope{TenantID: "t1", WorkspaceID: "w1"},
		OccurredAt: time.Now(),
		Approval:   &types.ApprovalDecision{ApprovalID: "a1", Status: types.ApprovalApproved},
	}
	require.NoError(t, contract.ValidateSignal(s))

	s.Approval = nil
	require.Error(t, contract.ValidateSignal(s))
}

func TestValidateSignalRejectsMissingScope(t *testing.T) {
	s := types.Signal{
		SignalID:   "s1",
		Type:       types.SignalUserReply,
		OccurredAt: time.Now(),
		UserReply:  &types.UserReplySignal{Text: "yes"},
	}
	require.Error(t, contract.ValidateSignal(s))
}

func TestValidateProviderCallback(t *testing.T) {
	cb := contract.ProviderCallback{
		Provider:   "slack",
		EventID:    "e1",
		Scope:      types.Scope{TenantID: "t1", WorkspaceID: "w1"},
		OccurredAt: time.Now(),
	}
	require.NoError(t, contract.ValidateProviderCallback(cb))

	cb.EventID = ""
	require.Error(t, contract.ValidateProviderCallback(cb))
}
