package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/durableplanner/plannerd/internal/idgen"
	"github.com/durableplanner/plannerd/runtime/types"
)

type requestKey struct {
	scope     types.Scope
	requestID string
}

// InMemoryStore is a process-local Store for tests and local development.
type InMemoryStore struct {
	mu    sync.Mutex
	jobs  map[string]types.QueueJob
	byReq map[requestKey]string
}

// NewInMemoryStore returns an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[string]types.QueueJob), byReq: make(map[requestKey]string)}
}

func (s *InMemoryStore) Enqueue(_ context.Context, job types.QueueJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := requestKey{scope: job.Scope, requestID: job.RequestID}
	if existingID, ok := s.byReq[key]; ok {
		existing := s.jobs[existingID]
		existing.NotBefore = job.NotBefore
		existing.UpdatedAt = time.Now()
		s.jobs[existingID] = existing
		return nil
	}
	s.byReq[key] = job.JobID
	s.jobs[job.JobID] = job
	return nil
}

func (s *InMemoryStore) Claim(_ context.Context, workerID string, max int, leaseDuration time.Duration) ([]types.QueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var ids []string
	for id, j := range s.jobs {
		if j.Claimable(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, k int) bool { return s.jobs[ids[i]].CreatedAt.Before(s.jobs[ids[k]].CreatedAt) })

	var claimed []types.QueueJob
	for _, id := range ids {
		if len(claimed) >= max {
			break
		}
		j := s.jobs[id]
		expires := now.Add(leaseDuration)
		j.Status = types.QueueJobLeased
		j.LeaseToken = idgen.LeaseToken(workerID)
		j.LeaseExpires = &expires
		j.Attempts++
		j.UpdatedAt = now
		s.jobs[id] = j
		claimed = append(claimed, j)
	}
	return claimed, nil
}

// Complete marks jobID done, as long as leaseToken still matches the job's
// current lease: a stale leaseToken (the lease already expired and was
// reclaimed by another worker) makes this a no-op.
func (s *InMemoryStore) Complete(_ context.Context, jobID string, leaseToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.LeaseToken != leaseToken {
		return nil
	}
	j.Status = types.QueueJobDone
	j.UpdatedAt = time.Now()
	s.jobs[jobID] = j
	return nil
}

// Fail records a failed attempt, conditioned on leaseToken still matching
// the job's current lease for the same stale-lease reason as Complete.
func (s *InMemoryStore) Fail(_ context.Context, jobID string, leaseToken string, lastError string, retryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.LeaseToken != leaseToken {
		return nil
	}
	j.LastError = lastError
	j.UpdatedAt = time.Now()
	if j.Attempts >= j.MaxAttempts {
		j.Status = types.QueueJobDead
	} else {
		j.Status = types.QueueJobPending
		j.NotBefore = retryAt
		j.LeaseToken = ""
		j.LeaseExpires = nil
	}
	s.jobs[jobID] = j
	return nil
}
