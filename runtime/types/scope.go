// Package types defines the data model shared by every runtime component:
// the objective request envelope, workflow/step/signal records, policy and
// approval decisions, audit records, and the queue/event-log types. These are
// plain data structs with no behavior beyond small invariant helpers. Sum
// types are modeled as tagged unions throughout: PlannerIntent, PolicyOutcome,
// and SignalType are all a discriminant field plus variant-specific fields,
// never a type hierarchy.
package types

import "fmt"

// Scope identifies the two-level tenant isolation boundary. Store reads and
// writes take a Scope; FindWorkflowByID takes none and looks a workflow up by
// ID alone.
type Scope struct {
	TenantID    string
	WorkspaceID string
}

// Valid reports whether both scope fields are non-empty.
func (s Scope) Valid() bool {
	return s.TenantID != "" && s.WorkspaceID != ""
}

// Equal reports whether two scopes identify the same tenant/workspace pair.
func (s Scope) Equal(other Scope) bool {
	return s.TenantID == other.TenantID && s.WorkspaceID == other.WorkspaceID
}

// String renders the scope as "tenant/workspace" for logs and error messages.
func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.TenantID, s.WorkspaceID)
}
