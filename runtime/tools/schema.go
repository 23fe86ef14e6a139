package tools

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// NewJSONSchemaValidator compiles schema (a JSON Schema document, already
// decoded into Go values the way json.Unmarshal would produce) and returns a
// ValidateArgsFunc that checks a tool_call's args against it. Compilation
// happens once at registration time so a malformed schema fails fast instead
// of on every call.
func NewJSONSchemaValidator(name string, schema map[string]any) (ValidateArgsFunc, error) {
	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, schema); err != nil {
		return nil, fmt.Errorf("tool %q: add schema resource: %w", name, err)
	}
	compiled, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("tool %q: compile schema: %w", name, err)
	}

	return func(args map[string]any) []string {
		var instance any = args
		if err := compiled.Validate(instance); err != nil {
			return []string{err.Error()}
		}
		return nil
	}, nil
}
