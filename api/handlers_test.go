package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/durableplanner/plannerd/api"
	"github.com/durableplanner/plannerd/runtime/contract"
	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/persistence/inmem"
	"github.com/durableplanner/plannerd/runtime/queue"
	"github.com/durableplanner/plannerd/runtime/types"
)

func newTestServer() (http.Handler, *inmem.Store, *queue.InMemoryStore) {
	store := inmem.New()
	qstore := queue.NewInMemoryStore()
	deps := api.Deps{
		Store:       store,
		Queue:       qstore,
		Validator:   contract.New(),
		MaxAttempts: 3,
	}
	return api.NewRouter(deps), store, qstore
}

func TestEnqueueObjectiveAcceptsValidRequestAndEnqueuesJob(t *testing.T) {
	router, _, qstore := newTestServer()

	body, _ := json.Marshal(map[string]any{
		"requestId":       "req-1",
		"tenantId":        "t1",
		"workspaceId":     "w1",
		"workflowId":      "wf-1",
		"threadId":        "th-1",
		"occurredAt":      time.Now().Format(time.RFC3339Nano),
		"objectivePrompt": "say hello",
		"schemaVersion":   "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/objectives", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)

	claimed, err := qstore.Claim(context.Background(), "w1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, "say hello", claimed[0].ObjectivePrompt)
	require.Equal(t, "th-1", claimed[0].ThreadID)
}

func TestEnqueueObjectiveRejectsMissingFields(t *testing.T) {
	router, _, _ := newTestServer()

	body, _ := json.Marshal(map[string]any{"requestId": "req-1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/objectives", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetWorkflowRejectsUnknownIDWithBadRequest(t *testing.T) {
	router, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/workflows/missing?tenantId=t1&workspaceId=w1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetWorkflowReturnsCurrentState(t *testing.T) {
	router, store, _ := newTestServer()
	scope := types.Scope{TenantID: "t1", WorkspaceID: "w1"}
	wf := types.Workflow{WorkflowID: "wf-1", Scope: scope, Status: types.WorkflowRunning, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, store.WithTransaction(context.Background(), scope, "wf-1", func(ctx context.Context, tx persistence.Tx) error {
		return tx.UpdateWorkflow(ctx, wf)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/workflows/wf-1?tenantId=t1&workspaceId=w1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "running", got["status"])
}

func TestResumeWithSignalEnqueuesResumeJob(t *testing.T) {
	router, store, qstore := newTestServer()
	scope := types.Scope{TenantID: "t1", WorkspaceID: "w1"}
	wf := types.Workflow{WorkflowID: "wf-1", Scope: scope, ThreadID: "th-1", RequestID: "req-1", Status: types.WorkflowWaitingSignal, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, store.WithTransaction(context.Background(), scope, "wf-1", func(ctx context.Context, tx persistence.Tx) error {
		if err := tx.UpdateWorkflow(ctx, wf); err != nil {
			return err
		}
		return tx.UpsertWorkflowMessageThread(ctx, types.WorkflowMessageThread{ThreadID: "th-1", Scope: scope, WorkflowID: "wf-1", CreatedAt: time.Now()})
	}))

	body, _ := json.Marshal(map[string]any{
		"type":       "user_reply_signal",
		"occurredAt": time.Now().Format(time.RFC3339Nano),
		"userReply":  map[string]any{"stepNumber": 0, "text": "yes"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/workflows/wf-1/signals?tenantId=t1&workspaceId=w1", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)

	claimed, err := qstore.Claim(context.Background(), "w1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
}

func TestHealthzReportsOK(t *testing.T) {
	router, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}
