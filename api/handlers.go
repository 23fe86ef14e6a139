package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/durableplanner/plannerd/internal/idgen"
	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/contract"
	"github.com/durableplanner/plannerd/runtime/hooks"
	"github.com/durableplanner/plannerd/runtime/inbox"
	"github.com/durableplanner/plannerd/runtime/queue"
	"github.com/durableplanner/plannerd/runtime/types"
)

type handlers struct {
	deps Deps
}

// enqueueObjective implements enqueueWorkflowJob: it validates, commits
// nothing itself, and durably enqueues a job carrying the full
// ObjectiveRequest so a worker can rebuild it and drive the planner loop
// without a second lookup by requestId.
func (h *handlers) enqueueObjective(w http.ResponseWriter, r *http.Request) {
	var dto objectiveRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, apperr.Validation("malformed request body: "+err.Error()))
		return
	}

	req := dto.toDomain()
	if req.OccurredAt.IsZero() {
		req.OccurredAt = time.Now()
	}
	if req.SchemaVersion == "" {
		req.SchemaVersion = types.SchemaVersionV1
	}
	if verr := h.deps.Validator.ValidateObjectiveRequest(req); verr != nil {
		writeError(w, verr)
		return
	}

	job := queue.NewJob(queue.JobParams{
		JobID:           idgen.New(),
		Scope:           req.Scope(),
		WorkflowID:      req.WorkflowID,
		RequestID:       req.RequestID,
		ThreadID:        req.ThreadID,
		ObjectivePrompt: req.ObjectivePrompt,
		OccurredAt:      req.OccurredAt,
		MaxAttempts:     maxAttemptsOr(h.deps.MaxAttempts, 5),
	})
	if err := h.deps.Queue.Enqueue(r.Context(), job); err != nil {
		writeError(w, apperr.Internal("enqueue objective job", err))
		return
	}

	if h.deps.Bus != nil {
		_ = h.deps.Bus.Publish(r.Context(), hooks.NewEvent(hooks.RunQueued, req.TenantID, req.WorkspaceID, req.WorkflowID, map[string]any{"requestId": req.RequestID}))
	}

	writeJSON(w, http.StatusAccepted, toQueueJobDTO(job))
}

// getWorkflow implements the workflow state query: current status, steps,
// any waiting question, and completion output if terminal.
func (h *handlers) getWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowId")
	scope, err := scopeFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	wf, ok, err := h.deps.Store.GetWorkflow(r.Context(), scope, workflowID)
	if err != nil {
		writeError(w, apperr.Internal("load workflow", err))
		return
	}
	if !ok {
		writeError(w, apperr.Validation("workflow "+workflowID+" not found"))
		return
	}

	writeJSON(w, http.StatusOK, toWorkflowDTO(wf))
}

// resumeWithSignal implements resumeWithSignal: validate the signal, append
// it to the parked workflow's inbox, and enqueue a resume job. The worker
// that later claims the job drains the signal and feeds it into the
// planner loop.
func (h *handlers) resumeWithSignal(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowId")
	scope, err := scopeFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var dto signalDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, apperr.Validation("malformed request body: "+err.Error()))
		return
	}

	wf, ok, err := h.deps.Store.GetWorkflow(r.Context(), scope, workflowID)
	if err != nil {
		writeError(w, apperr.Internal("load workflow", err))
		return
	}
	if !ok {
		writeError(w, apperr.Validation("workflow "+workflowID+" not found"))
		return
	}

	signal := dto.toDomain(scope, workflowID, wf.ThreadID)
	signal.SignalID = idgen.New()
	if signal.OccurredAt.IsZero() {
		signal.OccurredAt = time.Now()
	}
	if verr := contract.ValidateSignal(signal); verr != nil {
		writeError(w, verr)
		return
	}

	accepted, err := inbox.Ingest(r.Context(), inbox.Deps{
		Store:    h.deps.Store,
		Queue:    h.deps.Queue,
		Bus:      h.deps.Bus,
		Notifier: h.deps.Notifier,
		JobFactory: func(workflowID string) types.QueueJob {
			return queue.NewJob(queue.JobParams{
				JobID:       idgen.New(),
				Scope:       scope,
				WorkflowID:  workflowID,
				RequestID:   wf.RequestID,
				ThreadID:    wf.ThreadID,
				MaxAttempts: maxAttemptsOr(h.deps.MaxAttempts, 5),
			})
		},
	}, inbox.InboundMessage{
		MessageID: signal.SignalID,
		Scope:     scope,
		ThreadID:  wf.ThreadID,
		OccurredAt: signal.OccurredAt,
		Signal:    signal,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted, "signalId": signal.SignalID})
}

// ingestInboundMessage implements ingestInboundMessage: a provider-addressed
// occurrence resolved to a parked workflow via its thread identity, always
// treated as a user_reply_signal.
func (h *handlers) ingestInboundMessage(w http.ResponseWriter, r *http.Request) {
	var dto inboundMessageDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, apperr.Validation("malformed request body: "+err.Error()))
		return
	}

	scope, err := scopeFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}

	wf, ok, err := h.deps.Store.ResolveWorkflowByThread(r.Context(), scope, dto.ThreadID)
	if err != nil {
		writeError(w, apperr.Internal("resolve workflow by thread", err))
		return
	}
	if !ok {
		writeError(w, apperr.Validation("no workflow parked on thread "+dto.ThreadID))
		return
	}

	signal := types.Signal{
		Type:       types.SignalUserReply,
		UserReply:  &types.UserReplySignal{Text: dto.Message},
		OccurredAt: dto.OccurredAt,
	}

	accepted, err := inbox.Ingest(r.Context(), inbox.Deps{
		Store:    h.deps.Store,
		Queue:    h.deps.Queue,
		Bus:      h.deps.Bus,
		Notifier: h.deps.Notifier,
		JobFactory: func(workflowID string) types.QueueJob {
			return queue.NewJob(queue.JobParams{
				JobID:       idgen.New(),
				Scope:       scope,
				WorkflowID:  workflowID,
				RequestID:   wf.WorkflowID,
				ThreadID:    dto.ThreadID,
				MaxAttempts: maxAttemptsOr(h.deps.MaxAttempts, 5),
			})
		},
	}, inbox.InboundMessage{
		MessageID:  dto.Provider + ":" + dto.EventID,
		Scope:      scope,
		ThreadID:   dto.ThreadID,
		OccurredAt: dto.OccurredAt,
		Signal:     signal,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}

func scopeFromQuery(r *http.Request) (types.Scope, error) {
	scope := types.Scope{
		TenantID:    r.URL.Query().Get("tenantId"),
		WorkspaceID: r.URL.Query().Get("workspaceId"),
	}
	if !scope.Valid() {
		return types.Scope{}, apperr.Validation("tenantId and workspaceId query parameters are required")
	}
	return scope, nil
}

func maxAttemptsOr(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var aerr *apperr.Error
	if errors.As(err, &aerr) {
		switch aerr.Kind {
		case apperr.KindValidation:
			status = http.StatusBadRequest
		case apperr.KindPolicyBlocked, apperr.KindApprovalRequired:
			status = http.StatusConflict
		case apperr.KindToolFailure:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, errorDTO{Error: err.Error()})
}
