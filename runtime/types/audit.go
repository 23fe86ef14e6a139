package types

import "time"

// AuditRecord is an immutable, append-only entry describing one notable
// occurrence against a workflow: a policy decision, an approval resolution,
// a tool dispatch, or a terminal transition. Audit records are never
// mutated or deleted once committed.
type AuditRecord struct {
	AuditID    string
	Scope      Scope
	WorkflowID string
	StepNumber int
	Kind       string
	Summary    string
	Detail     map[string]any
	RecordedAt time.Time
}

// RunEvent is a single entry in the durable per-workflow event log that
// backs pause/resume/replay. EventID is a time-ordered UUID
// (v7). The Postgres store also keeps a per-workflow stream_position column
// and reads the log back ordered by it.
type RunEvent struct {
	EventID    string
	WorkflowID string
	Scope      Scope
	StepNumber int
	Kind       string
	Payload    map[string]any
	RecordedAt time.Time
}
