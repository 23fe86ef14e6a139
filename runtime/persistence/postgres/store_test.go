package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/persistence/postgres"
	"github.com/durableplanner/plannerd/runtime/types"
)

func newMockStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return postgres.New(sqlxDB), mock, func() { _ = db.Close() }
}

func TestGetWorkflowReturnsFoundRow(t *testing.T) {
	store, mock, closeDB := newMockStore(t)
	defer closeDB()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"workflow_id", "tenant_id", "workspace_id", "thread_id", "request_id", "status",
		"steps", "waiting_question", "completion", "pending_approval", "error_summary", "created_at", "updated_at",
	}).AddRow("wf1", "t1", "w1", "th1", "r1", "running", []byte("[]"), "", nil, nil, "", now, now)

	mock.ExpectQuery("SELECT workflow_id, tenant_id, workspace_id, thread_id, request_id, status, steps, waiting_question, completion, pending_approval, error_summary, created_at, updated_at\\s+FROM workflows").
		WithArgs("wf1", "t1", "w1").
		WillReturnRows(rows)

	wf, ok, err := store.GetWorkflow(context.Background(), types.Scope{TenantID: "t1", WorkspaceID: "w1"}, "wf1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.WorkflowRunning, wf.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWorkflowReturnsNotFound(t *testing.T) {
	store, mock, closeDB := newMockStore(t)
	defer closeDB()

	mock.ExpectQuery("SELECT workflow_id, tenant_id, workspace_id, thread_id, request_id, status, steps, waiting_question, completion, pending_approval, error_summary, created_at, updated_at\\s+FROM workflows").
		WithArgs("missing", "t1", "w1").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := store.GetWorkflow(context.Background(), types.Scope{TenantID: "t1", WorkspaceID: "w1"}, "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordInboundMessageReceiptIdempotentInsert(t *testing.T) {
	store, mock, closeDB := newMockStore(t)
	defer closeDB()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("objective_request_create").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO inbound_message_receipts").
		WithArgs("t1", "w1", "m1", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var inserted bool
	err := store.WithTransaction(context.Background(), types.Scope{TenantID: "t1", WorkspaceID: "w1"}, "", func(ctx context.Context, tx persistence.Tx) error {
		var err error
		inserted, err = tx.RecordInboundMessageReceipt(ctx, types.InboundMessageReceipt{
			MessageID: "m1", Scope: types.Scope{TenantID: "t1", WorkspaceID: "w1"}, ReceivedAt: time.Now(),
		})
		return err
	})
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}
