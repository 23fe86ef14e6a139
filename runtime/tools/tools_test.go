package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/tools"
	"github.com/durableplanner/plannerd/runtime/types"
)

func echoDef() tools.Definition {
	return tools.Definition{
		Name: "echo",
		ValidateArgs: func(args map[string]any) []string {
			var issues []string
			if _, ok := args["x"]; !ok {
				issues = append(issues, "x is required")
			}
			return issues
		},
		Execute: func(_ context.Context, _ types.Scope, args map[string]any) (map[string]any, error) {
			return map[string]any{"echoed": args["x"]}, nil
		},
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := tools.New()
	require.NoError(t, r.Register(echoDef()))
	err := r.Register(echoDef())
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestRegisterRejectsMissingValidateArgsOrExecute(t *testing.T) {
	r := tools.New()
	require.Error(t, r.Register(tools.Definition{Name: "bad", Execute: func(context.Context, types.Scope, map[string]any) (map[string]any, error) { return nil, nil }}))
	require.Error(t, r.Register(tools.Definition{Name: "bad", ValidateArgs: func(map[string]any) []string { return nil }}))
}

func TestExecuteUnknownToolIsValidationError(t *testing.T) {
	r := tools.New()
	_, err := r.Execute(context.Background(), types.Scope{TenantID: "t1", WorkspaceID: "w1"}, "missing", nil)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestExecuteValidatesArgsBeforeDispatch(t *testing.T) {
	r := tools.New()
	require.NoError(t, r.Register(echoDef()))

	_, err := r.Execute(context.Background(), types.Scope{TenantID: "t1", WorkspaceID: "w1"}, "echo", map[string]any{})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestExecuteDispatchesOnSuccess(t *testing.T) {
	r := tools.New()
	require.NoError(t, r.Register(echoDef()))

	out, err := r.Execute(context.Background(), types.Scope{TenantID: "t1", WorkspaceID: "w1"}, "echo", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out["echoed"])
}

func TestListToolsRespectsAuthorization(t *testing.T) {
	r := tools.New()
	require.NoError(t, r.Register(echoDef()))
	require.NoError(t, r.Register(tools.Definition{
		Name:         "admin_only",
		ValidateArgs: func(map[string]any) []string { return nil },
		Execute:      func(context.Context, types.Scope, map[string]any) (map[string]any, error) { return nil, nil },
		IsAuthorized: func(scope types.Scope) bool { return scope.WorkspaceID == "admin" },
	}))

	names := r.ListTools(types.Scope{TenantID: "t1", WorkspaceID: "w1"})
	assert.Equal(t, []string{"echo"}, names)

	names = r.ListTools(types.Scope{TenantID: "t1", WorkspaceID: "admin"})
	assert.ElementsMatch(t, []string{"echo", "admin_only"}, names)
}

func TestExecuteRejectsUnauthorizedScope(t *testing.T) {
	r := tools.New()
	require.NoError(t, r.Register(tools.Definition{
		Name:         "admin_only",
		ValidateArgs: func(map[string]any) []string { return nil },
		Execute:      func(context.Context, types.Scope, map[string]any) (map[string]any, error) { return nil, nil },
		IsAuthorized: func(scope types.Scope) bool { return scope.WorkspaceID == "admin" },
	}))

	_, err := r.Execute(context.Background(), types.Scope{TenantID: "t1", WorkspaceID: "w1"}, "admin_only", map[string]any{})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}
