package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/tools"
	"github.com/durableplanner/plannerd/runtime/types"
)

func searchSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"query"},
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "minLength": 1},
			"limit": map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
		},
	}
}

func TestNewJSONSchemaValidatorAcceptsConformingArgs(t *testing.T) {
	validate, err := tools.NewJSONSchemaValidator("search", searchSchema())
	require.NoError(t, err)

	issues := validate(map[string]any{"query": "hello", "limit": 10})
	assert.Empty(t, issues)
}

func TestNewJSONSchemaValidatorRejectsMissingRequiredField(t *testing.T) {
	validate, err := tools.NewJSONSchemaValidator("search", searchSchema())
	require.NoError(t, err)

	issues := validate(map[string]any{"limit": 10})
	assert.NotEmpty(t, issues)
}

func TestNewJSONSchemaValidatorRejectsUnknownProperty(t *testing.T) {
	validate, err := tools.NewJSONSchemaValidator("search", searchSchema())
	require.NoError(t, err)

	issues := validate(map[string]any{"query": "hello", "unexpected": true})
	assert.NotEmpty(t, issues)
}

func TestNewJSONSchemaValidatorRejectsMalformedSchema(t *testing.T) {
	_, err := tools.NewJSONSchemaValidator("broken", map[string]any{"type": "not-a-real-type"})
	require.Error(t, err)
}

func TestDefinitionWithSchemaValidatorRegistersAndExecutes(t *testing.T) {
	validate, err := tools.NewJSONSchemaValidator("search", searchSchema())
	require.NoError(t, err)

	r := tools.New()
	require.NoError(t, r.Register(tools.Definition{
		Name:         "search",
		ValidateArgs: validate,
		Execute: func(_ context.Context, _ types.Scope, args map[string]any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	}))

	out, err := r.Execute(context.Background(), types.Scope{TenantID: "t1", WorkspaceID: "w1"}, "search", map[string]any{"query": "hello"})
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}
