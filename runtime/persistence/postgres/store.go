package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/types"
)

// Store is the PostgreSQL-backed persistence.Store.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-migrated *sqlx.DB.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithTransaction opens a serializable-per-workflow transaction: a
// transaction-scoped advisory lock on hashtext(workflowID) serializes two
// concurrent commits for the same workflow through Postgres rather than
// through in-process coordination.
func (s *Store) WithTransaction(ctx context.Context, scope types.Scope, workflowID string, work persistence.Work) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Internal("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	lockKey := workflowID
	if lockKey == "" {
		lockKey = "objective_request_create"
	}
	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return apperr.Internal("acquire advisory lock", err)
	}

	tx := &txn{sqlTx: sqlTx, scope: scope}
	if err := work(ctx, tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return apperr.Internal("commit transaction", err)
	}
	committed = true
	return nil
}

type txn struct {
	sqlTx *sqlx.Tx
	scope types.Scope
}

func (t *txn) CommitObjectiveRequest(ctx context.Context, req types.ObjectiveRequest) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO objective_requests
			(tenant_id, workspace_id, request_id, workflow_id, thread_id, occurred_at, objective_prompt, schema_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.TenantID, req.WorkspaceID, req.RequestID, req.WorkflowID, req.ThreadID, req.OccurredAt, req.ObjectivePrompt, req.SchemaVersion,
	)
	if err != nil {
		return apperr.Internal("insert objective request", err)
	}
	return nil
}

func (t *txn) CommitStep(ctx context.Context, commit persistence.StepCommit) error {
	wf := commit.Workflow
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return apperr.Internal("marshal steps", err)
	}
	completionJSON, err := nullableJSON(wf.Completion)
	if err != nil {
		return apperr.Internal("marshal completion", err)
	}
	pendingApprovalJSON, err := nullableJSON(wf.PendingApproval)
	if err != nil {
		return apperr.Internal("marshal pending approval", err)
	}

	_, err = t.sqlTx.ExecContext(ctx, `
		INSERT INTO workflows
			(workflow_id, tenant_id, workspace_id, thread_id, request_id, status, steps, waiting_question, completion, pending_approval, error_summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (workflow_id) DO UPDATE SET
			status = EXCLUDED.status,
			steps = EXCLUDED.steps,
			waiting_question = EXCLUDED.waiting_question,
			completion = EXCLUDED.completion,
			pending_approval = EXCLUDED.pending_approval,
			error_summary = EXCLUDED.error_summary,
			updated_at = EXCLUDED.updated_at`,
		wf.WorkflowID, wf.Scope.TenantID, wf.Scope.WorkspaceID, wf.ThreadID, wf.RequestID, string(wf.Status),
		stepsJSON, wf.WaitingQuestion, completionJSON, pendingApprovalJSON, wf.ErrorSummary, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return apperr.Internal("upsert workflow", err)
	}

	if commit.PolicyDecision != nil {
		outcomeJSON, err := json.Marshal(commit.PolicyDecision.Outcome)
		if err != nil {
			return apperr.Internal("marshal policy outcome", err)
		}
		_, err = t.sqlTx.ExecContext(ctx, `
			INSERT INTO policy_decisions (workflow_id, step_number, policy_pack, policy_version, outcome, requires_approval, evaluated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			commit.PolicyDecision.WorkflowID, commit.PolicyDecision.StepNumber, commit.PolicyDecision.PolicyPack,
			commit.PolicyDecision.PolicyVersion, outcomeJSON, commit.PolicyDecision.RequiresApproval, commit.PolicyDecision.EvaluatedAt,
		)
		if err != nil {
			return apperr.Internal("insert policy decision", err)
		}
	}

	if commit.ApprovalDecision != nil {
		_, err = t.sqlTx.ExecContext(ctx, `
			INSERT INTO approval_decisions (approval_id, workflow_id, status, decided_by, reason, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (approval_id) DO UPDATE SET
				status = EXCLUDED.status, decided_by = EXCLUDED.decided_by, reason = EXCLUDED.reason, decided_at = EXCLUDED.decided_at`,
			commit.ApprovalDecision.ApprovalID, wf.WorkflowID, string(commit.ApprovalDecision.Status),
			commit.ApprovalDecision.DecidedBy, commit.ApprovalDecision.Reason, commit.ApprovalDecision.DecidedAt,
		)
		if err != nil {
			return apperr.Internal("upsert approval decision", err)
		}
	}

	for _, a := range commit.Audit {
		detailJSON, err := nullableJSON(a.Detail)
		if err != nil {
			return apperr.Internal("marshal audit detail", err)
		}
		_, err = t.sqlTx.ExecContext(ctx, `
			INSERT INTO audit_records (audit_id, tenant_id, workspace_id, workflow_id, step_number, kind, summary, detail, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (audit_id) DO NOTHING`,
			a.AuditID, a.Scope.TenantID, a.Scope.WorkspaceID, a.WorkflowID, a.StepNumber, a.Kind, a.Summary, detailJSON, a.RecordedAt,
		)
		if err != nil {
			return apperr.Internal("insert audit record", err)
		}
	}

	for _, e := range commit.Events {
		if err := t.appendRunEvent(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// appendRunEvent assigns streamPosition as max(stream_position)+1 for the
// run under the same advisory lock WithTransaction already holds, then
// inserts idempotently on eventId: collisions are ignored.
func (t *txn) appendRunEvent(ctx context.Context, e types.RunEvent) error {
	var nextPos sql.NullInt64
	if err := t.sqlTx.GetContext(ctx, &nextPos, `SELECT max(stream_position) FROM run_events WHERE workflow_id = $1`, e.WorkflowID); err != nil {
		return apperr.Internal("compute next stream position", err)
	}
	pos := int64(1)
	if nextPos.Valid {
		pos = nextPos.Int64 + 1
	}
	payloadJSON, err := nullableJSON(e.Payload)
	if err != nil {
		return apperr.Internal("marshal run event payload", err)
	}
	_, err = t.sqlTx.ExecContext(ctx, `
		INSERT INTO run_events (event_id, workflow_id, tenant_id, workspace_id, step_number, stream_position, kind, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.WorkflowID, e.Scope.TenantID, e.Scope.WorkspaceID, e.StepNumber, pos, e.Kind, payloadJSON, e.RecordedAt,
	)
	if err != nil {
		return apperr.Internal("insert run event", err)
	}
	return nil
}

func (t *txn) UpdateWorkflow(ctx context.Context, wf types.Workflow) error {
	return t.CommitStep(ctx, persistence.StepCommit{Workflow: wf})
}

func (t *txn) RecordInboundMessageReceipt(ctx context.Context, receipt types.InboundMessageReceipt) (bool, error) {
	res, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO inbound_message_receipts (tenant_id, workspace_id, message_id, signal_id, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, workspace_id, message_id) DO NOTHING`,
		receipt.Scope.TenantID, receipt.Scope.WorkspaceID, receipt.MessageID, receipt.SignalID, receipt.ReceivedAt,
	)
	if err != nil {
		return false, apperr.Internal("insert inbound message receipt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Internal("read rows affected", err)
	}
	return n > 0, nil
}

func (t *txn) UpsertWorkflowMessageThread(ctx context.Context, thread types.WorkflowMessageThread) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO workflow_message_threads (tenant_id, workspace_id, thread_id, workflow_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, workspace_id, thread_id) DO UPDATE SET workflow_id = EXCLUDED.workflow_id`,
		thread.Scope.TenantID, thread.Scope.WorkspaceID, thread.ThreadID, thread.WorkflowID, thread.CreatedAt,
	)
	if err != nil {
		return apperr.Internal("upsert workflow message thread", err)
	}
	return nil
}

func (t *txn) EnqueueWorkflowSignal(ctx context.Context, entry types.WorkflowSignalInbox) error {
	signalJSON, err := json.Marshal(entry.Signal)
	if err != nil {
		return apperr.Internal("marshal signal", err)
	}
	_, err = t.sqlTx.ExecContext(ctx, `
		INSERT INTO workflow_signal_inbox (workflow_id, signal_id, signal, occurred_at, consumed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (workflow_id, signal_id) DO NOTHING`,
		entry.WorkflowID, entry.Signal.SignalID, signalJSON, entry.Signal.OccurredAt, entry.Consumed,
	)
	if err != nil {
		return apperr.Internal("insert workflow signal inbox entry", err)
	}
	return nil
}

func (t *txn) MarkWorkflowSignalConsumed(ctx context.Context, workflowID, signalID string) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		UPDATE workflow_signal_inbox SET consumed = TRUE, consumed_at = now()
		WHERE workflow_id = $1 AND signal_id = $2`,
		workflowID, signalID,
	)
	if err != nil {
		return apperr.Internal("mark workflow signal consumed", err)
	}
	return nil
}

type workflowRow struct {
	WorkflowID      string          `db:"workflow_id"`
	TenantID        string          `db:"tenant_id"`
	WorkspaceID     string          `db:"workspace_id"`
	ThreadID        string          `db:"thread_id"`
	RequestID       string          `db:"request_id"`
	Status          string          `db:"status"`
	Steps           json.RawMessage `db:"steps"`
	WaitingQuestion string          `db:"waiting_question"`
	Completion      json.RawMessage `db:"completion"`
	PendingApproval json.RawMessage `db:"pending_approval"`
	ErrorSummary    string          `db:"error_summary"`
	CreatedAt       sql.NullTime    `db:"created_at"`
	UpdatedAt       sql.NullTime    `db:"updated_at"`
}

func (r workflowRow) toWorkflow() (types.Workflow, error) {
	wf := types.Workflow{
		WorkflowID:      r.WorkflowID,
		Scope:           types.Scope{TenantID: r.TenantID, WorkspaceID: r.WorkspaceID},
		ThreadID:        r.ThreadID,
		RequestID:       r.RequestID,
		Status:          types.WorkflowStatus(r.Status),
		WaitingQuestion: r.WaitingQuestion,
		ErrorSummary:    r.ErrorSummary,
		CreatedAt:       r.CreatedAt.Time,
		UpdatedAt:       r.UpdatedAt.Time,
	}
	if len(r.Steps) > 0 {
		if err := json.Unmarshal(r.Steps, &wf.Steps); err != nil {
			return types.Workflow{}, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	if len(r.Completion) > 0 {
		if err := json.Unmarshal(r.Completion, &wf.Completion); err != nil {
			return types.Workflow{}, fmt.Errorf("unmarshal completion: %w", err)
		}
	}
	if len(r.PendingApproval) > 0 {
		if err := json.Unmarshal(r.PendingApproval, &wf.PendingApproval); err != nil {
			return types.Workflow{}, fmt.Errorf("unmarshal pending approval: %w", err)
		}
	}
	return wf, nil
}

func (s *Store) GetWorkflow(ctx context.Context, scope types.Scope, workflowID string) (types.Workflow, bool, error) {
	var row workflowRow
	err := s.db.GetContext(ctx, &row, `
		SELECT workflow_id, tenant_id, workspace_id, thread_id, request_id, status, steps, waiting_question, completion, pending_approval, error_summary, created_at, updated_at
		FROM workflows WHERE workflow_id = $1 AND tenant_id = $2 AND workspace_id = $3`,
		workflowID, scope.TenantID, scope.WorkspaceID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Workflow{}, false, nil
	}
	if err != nil {
		return types.Workflow{}, false, apperr.Internal("select workflow", err)
	}
	wf, err := row.toWorkflow()
	if err != nil {
		return types.Workflow{}, false, apperr.Internal("decode workflow row", err)
	}
	return wf, true, nil
}

func (s *Store) FindWorkflowByID(ctx context.Context, workflowID string) (types.Workflow, bool, error) {
	var row workflowRow
	err := s.db.GetContext(ctx, &row, `
		SELECT workflow_id, tenant_id, workspace_id, thread_id, request_id, status, steps, waiting_question, completion, pending_approval, error_summary, created_at, updated_at
		FROM workflows WHERE workflow_id = $1`,
		workflowID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Workflow{}, false, nil
	}
	if err != nil {
		return types.Workflow{}, false, apperr.Internal("select workflow", err)
	}
	wf, err := row.toWorkflow()
	if err != nil {
		return types.Workflow{}, false, apperr.Internal("decode workflow row", err)
	}
	return wf, true, nil
}

func (s *Store) ListPlannerSteps(ctx context.Context, scope types.Scope, workflowID string) ([]types.PlannerStep, error) {
	wf, ok, err := s.GetWorkflow(ctx, scope, workflowID)
	if err != nil || !ok {
		return nil, err
	}
	return wf.Steps, nil
}

func (s *Store) ListObjectiveRequests(ctx context.Context, scope types.Scope) ([]types.ObjectiveRequest, error) {
	var rows []struct {
		RequestID       string    `db:"request_id"`
		TenantID        string    `db:"tenant_id"`
		WorkspaceID     string    `db:"workspace_id"`
		WorkflowID      string    `db:"workflow_id"`
		ThreadID        string    `db:"thread_id"`
		OccurredAt      sql.NullTime `db:"occurred_at"`
		ObjectivePrompt string    `db:"objective_prompt"`
		SchemaVersion   string    `db:"schema_version"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT request_id, tenant_id, workspace_id, workflow_id, thread_id, occurred_at, objective_prompt, schema_version
		FROM objective_requests WHERE tenant_id = $1 AND workspace_id = $2 ORDER BY occurred_at ASC`,
		scope.TenantID, scope.WorkspaceID,
	)
	if err != nil {
		return nil, apperr.Internal("select objective requests", err)
	}
	out := make([]types.ObjectiveRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.ObjectiveRequest{
			RequestID: r.RequestID, TenantID: r.TenantID, WorkspaceID: r.WorkspaceID, WorkflowID: r.WorkflowID,
			ThreadID: r.ThreadID, OccurredAt: r.OccurredAt.Time, ObjectivePrompt: r.ObjectivePrompt, SchemaVersion: r.SchemaVersion,
		})
	}
	return out, nil
}

func (s *Store) ListSignals(ctx context.Context, scope types.Scope, workflowID string) ([]types.Signal, error) {
	var rows []struct {
		Signal json.RawMessage `db:"signal"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT signal FROM workflow_signal_inbox WHERE workflow_id = $1 ORDER BY occurred_at ASC`,
		workflowID,
	)
	if err != nil {
		return nil, apperr.Internal("select signals", err)
	}
	out := make([]types.Signal, 0, len(rows))
	for _, r := range rows {
		var sig types.Signal
		if err := json.Unmarshal(r.Signal, &sig); err != nil {
			return nil, apperr.Internal("decode signal", err)
		}
		if sig.Scope.Equal(scope) {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (s *Store) ListPolicyDecisions(ctx context.Context, _ types.Scope, workflowID string) ([]types.PolicyDecision, error) {
	var rows []struct {
		WorkflowID       string          `db:"workflow_id"`
		StepNumber       int             `db:"step_number"`
		PolicyPack       string          `db:"policy_pack"`
		PolicyVersion    string          `db:"policy_version"`
		Outcome          json.RawMessage `db:"outcome"`
		RequiresApproval bool            `db:"requires_approval"`
		EvaluatedAt      sql.NullTime    `db:"evaluated_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT workflow_id, step_number, policy_pack, policy_version, outcome, requires_approval, evaluated_at
		FROM policy_decisions WHERE workflow_id = $1 ORDER BY step_number ASC`,
		workflowID,
	)
	if err != nil {
		return nil, apperr.Internal("select policy decisions", err)
	}
	out := make([]types.PolicyDecision, 0, len(rows))
	for _, r := range rows {
		var outcome types.PolicyOutcome
		if err := json.Unmarshal(r.Outcome, &outcome); err != nil {
			return nil, apperr.Internal("decode policy outcome", err)
		}
		out = append(out, types.PolicyDecision{
			WorkflowID: r.WorkflowID, StepNumber: r.StepNumber, PolicyPack: r.PolicyPack, PolicyVersion: r.PolicyVersion,
			Outcome: outcome, RequiresApproval: r.RequiresApproval, EvaluatedAt: r.EvaluatedAt.Time,
		})
	}
	return out, nil
}

func (s *Store) ListApprovalDecisions(ctx context.Context, _ types.Scope, workflowID string) ([]types.ApprovalDecision, error) {
	var rows []struct {
		ApprovalID string       `db:"approval_id"`
		Status     string       `db:"status"`
		DecidedBy  string       `db:"decided_by"`
		Reason     string       `db:"reason"`
		DecidedAt  sql.NullTime `db:"decided_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT approval_id, status, decided_by, reason, decided_at FROM approval_decisions WHERE workflow_id = $1`,
		workflowID,
	)
	if err != nil {
		return nil, apperr.Internal("select approval decisions", err)
	}
	out := make([]types.ApprovalDecision, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.ApprovalDecision{
			ApprovalID: r.ApprovalID, Status: types.ApprovalStatus(r.Status), DecidedBy: r.DecidedBy, Reason: r.Reason, DecidedAt: r.DecidedAt.Time,
		})
	}
	return out, nil
}

func (s *Store) ListAuditRecords(ctx context.Context, query persistence.AuditQuery) ([]types.AuditRecord, error) {
	var rows []struct {
		AuditID     string          `db:"audit_id"`
		TenantID    string          `db:"tenant_id"`
		WorkspaceID string          `db:"workspace_id"`
		WorkflowID  string          `db:"workflow_id"`
		StepNumber  int             `db:"step_number"`
		Kind        string          `db:"kind"`
		Summary     string          `db:"summary"`
		Detail      json.RawMessage `db:"detail"`
		RecordedAt  sql.NullTime    `db:"recorded_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT audit_id, tenant_id, workspace_id, workflow_id, step_number, kind, summary, detail, recorded_at
		FROM audit_records WHERE tenant_id = $1 AND workspace_id = $2 AND ($3 = '' OR workflow_id = $3)
		ORDER BY recorded_at ASC, step_number ASC`,
		query.Scope.TenantID, query.Scope.WorkspaceID, query.WorkflowID,
	)
	if err != nil {
		return nil, apperr.Internal("select audit records", err)
	}
	out := make([]types.AuditRecord, 0, len(rows))
	for _, r := range rows {
		var detail map[string]any
		if len(r.Detail) > 0 {
			if err := json.Unmarshal(r.Detail, &detail); err != nil {
				return nil, apperr.Internal("decode audit detail", err)
			}
		}
		out = append(out, types.AuditRecord{
			AuditID: r.AuditID, Scope: types.Scope{TenantID: r.TenantID, WorkspaceID: r.WorkspaceID}, WorkflowID: r.WorkflowID,
			StepNumber: r.StepNumber, Kind: r.Kind, Summary: r.Summary, Detail: detail, RecordedAt: r.RecordedAt.Time,
		})
	}
	return out, nil
}

func (s *Store) ListRunEvents(ctx context.Context, scope types.Scope, workflowID string) ([]types.RunEvent, error) {
	var rows []struct {
		EventID     string          `db:"event_id"`
		WorkflowID  string          `db:"workflow_id"`
		TenantID    string          `db:"tenant_id"`
		WorkspaceID string          `db:"workspace_id"`
		StepNumber  int             `db:"step_number"`
		Kind        string          `db:"kind"`
		Payload     json.RawMessage `db:"payload"`
		RecordedAt  sql.NullTime    `db:"recorded_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT event_id, workflow_id, tenant_id, workspace_id, step_number, kind, payload, recorded_at
		FROM run_events WHERE workflow_id = $1 AND tenant_id = $2 AND workspace_id = $3 ORDER BY stream_position ASC`,
		workflowID, scope.TenantID, scope.WorkspaceID,
	)
	if err != nil {
		return nil, apperr.Internal("select run events", err)
	}
	out := make([]types.RunEvent, 0, len(rows))
	for _, r := range rows {
		var payload map[string]any
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &payload); err != nil {
				return nil, apperr.Internal("decode run event payload", err)
			}
		}
		out = append(out, types.RunEvent{
			EventID: r.EventID, WorkflowID: r.WorkflowID, Scope: types.Scope{TenantID: r.TenantID, WorkspaceID: r.WorkspaceID},
			StepNumber: r.StepNumber, Kind: r.Kind, Payload: payload, RecordedAt: r.RecordedAt.Time,
		})
	}
	return out, nil
}

func (s *Store) ResolveWorkflowByThread(ctx context.Context, scope types.Scope, threadID string) (types.WorkflowMessageThread, bool, error) {
	var row struct {
		WorkflowID string       `db:"workflow_id"`
		CreatedAt  sql.NullTime `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT workflow_id, created_at FROM workflow_message_threads WHERE tenant_id = $1 AND workspace_id = $2 AND thread_id = $3`,
		scope.TenantID, scope.WorkspaceID, threadID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.WorkflowMessageThread{}, false, nil
	}
	if err != nil {
		return types.WorkflowMessageThread{}, false, apperr.Internal("select workflow message thread", err)
	}
	return types.WorkflowMessageThread{ThreadID: threadID, Scope: scope, WorkflowID: row.WorkflowID, CreatedAt: row.CreatedAt.Time}, true, nil
}

func (s *Store) ListPendingWorkflowSignals(ctx context.Context, scope types.Scope, workflowID string) ([]types.WorkflowSignalInbox, error) {
	var rows []struct {
		WorkflowID string          `db:"workflow_id"`
		Signal     json.RawMessage `db:"signal"`
		Consumed   bool            `db:"consumed"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT workflow_id, signal, consumed FROM workflow_signal_inbox
		WHERE workflow_id = $1 AND consumed = FALSE ORDER BY occurred_at ASC`,
		workflowID,
	)
	if err != nil {
		return nil, apperr.Internal("select pending workflow signals", err)
	}
	out := make([]types.WorkflowSignalInbox, 0, len(rows))
	for _, r := range rows {
		var sig types.Signal
		if err := json.Unmarshal(r.Signal, &sig); err != nil {
			return nil, apperr.Internal("decode pending signal", err)
		}
		if !sig.Scope.Equal(scope) {
			continue
		}
		out = append(out, types.WorkflowSignalInbox{WorkflowID: r.WorkflowID, Signal: sig, Consumed: r.Consumed})
	}
	return out, nil
}

func nullableJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
