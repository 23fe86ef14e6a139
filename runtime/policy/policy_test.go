package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/policy"
	"github.com/durableplanner/plannerd/runtime/types"
)

func newDefaultEngine(t *testing.T) *policy.RegoEngine {
	t.Helper()
	e, err := policy.NewRegoEngineFromSource(context.Background(), policy.DefaultPackSource)
	require.NoError(t, err)
	return e
}

func TestDefaultPackAllowsOrdinaryToolCall(t *testing.T) {
	e := newDefaultEngine(t)
	out, err := e.Evaluate(context.Background(), policy.Input{
		Intent: types.PlannerIntent{Type: types.IntentToolCall, ToolName: "read_calendar", Args: map[string]any{}},
		Pack:   policy.DefaultPackRef,
	})
	require.NoError(t, err)
	require.Equal(t, types.PolicyAllow, out.Kind)
	require.Equal(t, "low", out.RiskClass)
}

func TestDefaultPackBlocksDestructiveTool(t *testing.T) {
	e := newDefaultEngine(t)
	out, err := e.Evaluate(context.Background(), policy.Input{
		Intent: types.PlannerIntent{Type: types.IntentToolCall, ToolName: "delete_all", Args: map[string]any{}},
		Pack:   policy.DefaultPackRef,
	})
	require.NoError(t, err)
	require.Equal(t, types.PolicyBlock, out.Kind)
	require.Equal(t, "high", out.RiskClass)
}

func TestDefaultPackClassifiesWriteToolMediumRisk(t *testing.T) {
	e := newDefaultEngine(t)
	out, err := e.Evaluate(context.Background(), policy.Input{
		Intent: types.PlannerIntent{Type: types.IntentToolCall, ToolName: "write_calendar_event", Args: map[string]any{}},
		Pack:   policy.DefaultPackRef,
	})
	require.NoError(t, err)
	require.Equal(t, types.PolicyAllow, out.Kind)
	require.Equal(t, "medium", out.RiskClass)
}

func TestDecideRequiresApprovalAtThreshold(t *testing.T) {
	e := newDefaultEngine(t)
	gate := policy.ThresholdApprovalGate{Threshold: "medium"}

	decision, err := policy.Decide(context.Background(), e, gate, "wf1", policy.Input{
		Intent: types.PlannerIntent{Type: types.IntentToolCall, ToolName: "write_calendar_event", Args: map[string]any{}},
		Pack:   policy.DefaultPackRef,
	})
	require.NoError(t, err)
	require.True(t, decision.RequiresApproval)
}

func TestDecideDoesNotRequireApprovalBelowThreshold(t *testing.T) {
	e := newDefaultEngine(t)
	gate := policy.ThresholdApprovalGate{Threshold: "high"}

	decision, err := policy.Decide(context.Background(), e, gate, "wf1", policy.Input{
		Intent: types.PlannerIntent{Type: types.IntentToolCall, ToolName: "write_calendar_event", Args: map[string]any{}},
		Pack:   policy.DefaultPackRef,
	})
	require.NoError(t, err)
	require.False(t, decision.RequiresApproval)
}

func TestDecideNeverRequiresApprovalOnBlock(t *testing.T) {
	e := newDefaultEngine(t)
	gate := policy.ThresholdApprovalGate{Threshold: "low"}

	decision, err := policy.Decide(context.Background(), e, gate, "wf1", policy.Input{
		Intent: types.PlannerIntent{Type: types.IntentToolCall, ToolName: "delete_all", Args: map[string]any{}},
		Pack:   policy.DefaultPackRef,
	})
	require.NoError(t, err)
	require.False(t, decision.RequiresApproval)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := newDefaultEngine(t)
	in := policy.Input{
		Intent: types.PlannerIntent{Type: types.IntentToolCall, ToolName: "write_calendar_event", Args: map[string]any{"id": 1}},
		Pack:   policy.DefaultPackRef,
	}
	first, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
