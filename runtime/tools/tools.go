// Package tools implements the tool registry: a name-to-definition map
// with tenant-scoped authorization, argument validation, and execute
// dispatch.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/types"
)

type (
	// ValidateArgsFunc checks a tool_call's args shape, returning every issue
	// found rather than stopping at the first.
	ValidateArgsFunc func(args map[string]any) []string

	// ExecuteFunc runs the tool's handler once args have validated.
	ExecuteFunc func(ctx context.Context, scope types.Scope, args map[string]any) (map[string]any, error)

	// AuthorizedFunc reports whether scope may call the tool. A nil
	// AuthorizedFunc means the tool is available to every scope.
	AuthorizedFunc func(scope types.Scope) bool

	// Definition is one registered tool: its name, validator, handler, and
	// optional authorization predicate.
	Definition struct {
		Name         string
		ValidateArgs ValidateArgsFunc
		Execute      ExecuteFunc
		IsAuthorized AuthorizedFunc
	}

	// Registry holds the name→Definition map. Safe for concurrent use.
	Registry struct {
		mu    sync.RWMutex
		tools map[string]Definition
	}
)

// New returns an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds a tool definition. Names must be unique; ValidateArgs and
// Execute are required.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return apperr.Validation("tool registration: name is required")
	}
	if def.ValidateArgs == nil {
		return apperr.Validation(fmt.Sprintf("tool registration %q: validateArgs is required", def.Name))
	}
	if def.Execute == nil {
		return apperr.Validation(fmt.Sprintf("tool registration %q: execute is required", def.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return apperr.Validation(fmt.Sprintf("tool registration: %q is already registered", def.Name))
	}
	r.tools[def.Name] = def
	return nil
}

// ListTools returns the names of tools available to scope: those with no
// IsAuthorized predicate, or whose predicate returns true for scope.
func (r *Registry) ListTools(scope types.Scope) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name, def := range r.tools {
		if def.IsAuthorized == nil || def.IsAuthorized(scope) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// lookup returns the definition for name under a read lock.
func (r *Registry) lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Validate performs the pre-dispatch checks a caller outside this package
// (the adapter layer) needs before invoking a tool through its own
// ToolInvoker: tenant authorization then argument validation. An unknown
// tool name is itself a VALIDATION_ERROR.
func (r *Registry) Validate(scope types.Scope, name string, args map[string]any) error {
	def, ok := r.lookup(name)
	if !ok {
		return apperr.Validation(fmt.Sprintf("unknown tool %q", name))
	}
	if def.IsAuthorized != nil && !def.IsAuthorized(scope) {
		return apperr.Validation(fmt.Sprintf("tool %q is not authorized for scope %s", name, scope))
	}
	if issues := def.ValidateArgs(args); len(issues) > 0 {
		return apperr.Validation(fmt.Sprintf("tool %q args: %s", name, strings.Join(issues, "; ")))
	}
	return nil
}

// Execute performs, in order: (a) tenant authorization, (b) argument
// validation with issues joined into a single VALIDATION_ERROR, (c) handler
// invocation. An unknown tool name is itself a VALIDATION_ERROR.
func (r *Registry) Execute(ctx context.Context, scope types.Scope, name string, args map[string]any) (map[string]any, error) {
	if err := r.Validate(scope, name, args); err != nil {
		return nil, err
	}
	def, _ := r.lookup(name)
	return def.Execute(ctx, scope, args)
}
