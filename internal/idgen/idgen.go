// Package idgen generates identifiers used across the runtime: request,
// workflow, step, signal, and event IDs. Event IDs are time-ordered (UUIDv7)
// so that dedup and replay tooling can sort on ID as a tiebreaker without a
// secondary index.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns a random UUIDv4 string. Used for identifiers that do not need
// to be time-ordered (request IDs, approval IDs).
func New() string {
	return uuid.NewString()
}

// NewEventID returns a time-ordered UUIDv7 string suitable as a RunEvent.eventId:
// lexicographic and chronological order coincide, and re-delivery of the same
// logical event is expected to reuse the same ID so storage can dedup on it.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the runtime clock/rand source is broken beyond
		// repair; fall back to a random v4 rather than panic mid-request.
		return uuid.NewString()
	}
	return id.String()
}

// Prefixed returns a globally unique identifier prefixed with a normalized,
// human-readable scope label (e.g. a workflow or tenant identifier) to improve
// observability in logs, metrics, and traces without sacrificing uniqueness.
func Prefixed(label string) string {
	prefix := strings.ReplaceAll(strings.ToLower(label), ".", "-")
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// LeaseToken builds a queue lease token scoped to a worker identity, in the
// form "workerId:<uuid-v7>", so lease ownership is recoverable from the
// token alone in logs and dead-letter diagnostics.
func LeaseToken(workerID string) string {
	return fmt.Sprintf("%s:%s", workerID, NewEventID())
}
