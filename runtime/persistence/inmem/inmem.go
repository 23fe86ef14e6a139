// Package inmem provides an in-memory Store for tests and local
// development. It keeps entities in keyed maps (an arena) and applies
// writes through deep-copy-on-read/write, mirroring transactional
// semantics without an actual database.
package inmem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/types"
)

type scopedKey struct {
	scope types.Scope
	id    string
}

// Store is a thread-safe, process-local persistence.Store. Every accepted
// write and every returned read is defensively deep-copied so callers can
// never observe or corrupt the arena's internal state.
type Store struct {
	mu sync.Mutex

	workflowLocks map[string]*sync.Mutex

	workflows         map[string]types.Workflow
	objectiveRequests map[scopedKey]types.ObjectiveRequest
	signals           map[string][]types.Signal
	policyDecisions   map[string][]types.PolicyDecision
	approvalDecisions map[string][]types.ApprovalDecision
	auditRecords      []types.AuditRecord
	runEvents         map[string][]types.RunEvent
	inboundReceipts   map[string]struct{}
	messageThreads    map[scopedKey]types.WorkflowMessageThread
	signalInbox       map[string][]types.WorkflowSignalInbox
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		workflowLocks:     make(map[string]*sync.Mutex),
		workflows:         make(map[string]types.Workflow),
		objectiveRequests: make(map[scopedKey]types.ObjectiveRequest),
		signals:           make(map[string][]types.Signal),
		policyDecisions:   make(map[string][]types.PolicyDecision),
		approvalDecisions: make(map[string][]types.ApprovalDecision),
		runEvents:         make(map[string][]types.RunEvent),
		inboundReceipts:   make(map[string]struct{}),
		messageThreads:    make(map[scopedKey]types.WorkflowMessageThread),
		signalInbox:       make(map[string][]types.WorkflowSignalInbox),
	}
}

func deepCopy[T any](in T) T {
	var out T
	b, err := json.Marshal(in)
	if err != nil {
		panic("inmem: deep copy marshal failed: " + err.Error())
	}
	if err := json.Unmarshal(b, &out); err != nil {
		panic("inmem: deep copy unmarshal failed: " + err.Error())
	}
	return out
}

func (s *Store) lockFor(workflowID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.workflowLocks[workflowID]
	if !ok {
		l = &sync.Mutex{}
		s.workflowLocks[workflowID] = l
	}
	return l
}

// WithTransaction serializes all mutations under an advisory lock keyed on
// workflowID (or a store-global lock when workflowID is empty, e.g. the
// first commit that creates the workflow).
func (s *Store) WithTransaction(ctx context.Context, scope types.Scope, workflowID string, work persistence.Work) error {
	key := workflowID
	if key == "" {
		key = "__store__"
	}
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	tx := &txn{store: s, scope: scope}
	return work(ctx, tx)
}

type txn struct {
	store *Store
	scope types.Scope
}

func (t *txn) CommitObjectiveRequest(_ context.Context, req types.ObjectiveRequest) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopedKey{scope: req.Scope(), id: req.RequestID}
	if _, exists := s.objectiveRequests[key]; exists {
		return apperr.Validation("objective request " + req.RequestID + " already committed")
	}
	s.objectiveRequests[key] = deepCopy(req)
	return nil
}

func (t *txn) CommitStep(_ context.Context, commit persistence.StepCommit) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	wfID := commit.Workflow.WorkflowID
	s.workflows[wfID] = deepCopy(commit.Workflow)

	if commit.PolicyDecision != nil {
		s.policyDecisions[wfID] = append(s.policyDecisions[wfID], deepCopy(*commit.PolicyDecision))
	}
	if commit.ApprovalDecision != nil {
		s.approvalDecisions[wfID] = append(s.approvalDecisions[wfID], deepCopy(*commit.ApprovalDecision))
	}
	for _, a := range commit.Audit {
		s.auditRecords = append(s.auditRecords, deepCopy(a))
	}
	for _, e := range commit.Events {
		s.runEvents[wfID] = append(s.runEvents[wfID], deepCopy(e))
	}
	return nil
}

func (t *txn) UpdateWorkflow(_ context.Context, wf types.Workflow) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.WorkflowID] = deepCopy(wf)
	return nil
}

func (t *txn) RecordInboundMessageReceipt(_ context.Context, receipt types.InboundMessageReceipt) (bool, error) {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	key := receipt.MessageID + "|" + receipt.Scope.String()
	if _, exists := s.inboundReceipts[key]; exists {
		return false, nil
	}
	s.inboundReceipts[key] = struct{}{}
	return true, nil
}

func (t *txn) UpsertWorkflowMessageThread(_ context.Context, thread types.WorkflowMessageThread) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopedKey{scope: thread.Scope, id: thread.ThreadID}
	s.messageThreads[key] = deepCopy(thread)
	return nil
}

func (t *txn) EnqueueWorkflowSignal(_ context.Context, entry types.WorkflowSignalInbox) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.signalInbox[entry.WorkflowID] {
		if existing.Signal.SignalID == entry.Signal.SignalID {
			return nil
		}
	}
	s.signalInbox[entry.WorkflowID] = append(s.signalInbox[entry.WorkflowID], deepCopy(entry))
	s.signals[entry.WorkflowID] = append(s.signals[entry.WorkflowID], deepCopy(entry.Signal))
	return nil
}

func (t *txn) MarkWorkflowSignalConsumed(_ context.Context, workflowID, signalID string) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.signalInbox[workflowID]
	for i := range entries {
		if entries[i].Signal.SignalID == signalID {
			entries[i].Consumed = true
		}
	}
	return nil
}

func (s *Store) GetWorkflow(_ context.Context, scope types.Scope, workflowID string) (types.Workflow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok || !wf.Scope.Equal(scope) {
		return types.Workflow{}, false, nil
	}
	return deepCopy(wf), true, nil
}

func (s *Store) FindWorkflowByID(_ context.Context, workflowID string) (types.Workflow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return types.Workflow{}, false, nil
	}
	return deepCopy(wf), true, nil
}

func (s *Store) ListPlannerSteps(_ context.Context, scope types.Scope, workflowID string) ([]types.PlannerStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok || !wf.Scope.Equal(scope) {
		return nil, nil
	}
	steps := deepCopy(wf.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	return steps, nil
}

func (s *Store) ListObjectiveRequests(_ context.Context, scope types.Scope) ([]types.ObjectiveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ObjectiveRequest
	for key, req := range s.objectiveRequests {
		if key.scope.Equal(scope) {
			out = append(out, deepCopy(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (s *Store) ListSignals(_ context.Context, scope types.Scope, workflowID string) ([]types.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := deepCopy(s.signals[workflowID])
	filtered := out[:0]
	for _, sig := range out {
		if sig.Scope.Equal(scope) {
			filtered = append(filtered, sig)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].OccurredAt.Before(filtered[j].OccurredAt) })
	return filtered, nil
}

func (s *Store) ListPolicyDecisions(_ context.Context, _ types.Scope, workflowID string) ([]types.PolicyDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.policyDecisions[workflowID]), nil
}

func (s *Store) ListApprovalDecisions(_ context.Context, _ types.Scope, workflowID string) ([]types.ApprovalDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.approvalDecisions[workflowID]), nil
}

func (s *Store) ListAuditRecords(_ context.Context, query persistence.AuditQuery) ([]types.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.AuditRecord
	for _, rec := range s.auditRecords {
		if !rec.Scope.Equal(query.Scope) {
			continue
		}
		if query.WorkflowID != "" && rec.WorkflowID != query.WorkflowID {
			continue
		}
		out = append(out, deepCopy(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return out[i].StepNumber < out[j].StepNumber
	})
	return out, nil
}

func (s *Store) ListRunEvents(_ context.Context, scope types.Scope, workflowID string) ([]types.RunEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := deepCopy(s.runEvents[workflowID])
	filtered := events[:0]
	for _, e := range events {
		if e.Scope.Equal(scope) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (s *Store) ResolveWorkflowByThread(_ context.Context, scope types.Scope, threadID string) (types.WorkflowMessageThread, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.messageThreads[scopedKey{scope: scope, id: threadID}]
	return deepCopy(thread), ok, nil
}

func (s *Store) ListPendingWorkflowSignals(_ context.Context, scope types.Scope, workflowID string) ([]types.WorkflowSignalInbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := deepCopy(s.signalInbox[workflowID])
	var pending []types.WorkflowSignalInbox
	for _, e := range entries {
		if e.Consumed || !e.Signal.Scope.Equal(scope) {
			continue
		}
		pending = append(pending, e)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Signal.OccurredAt.Before(pending[j].Signal.OccurredAt) })
	return pending, nil
}
