// Package api implements the control-plane HTTP surface: enqueueing
// objectives, resuming parked workflows with a signal, ingesting inbound
// provider messages, and querying workflow state. It is the only package
// that marshals JSON at the edge — everything inside runtime/ deals only in
// Go structs.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/durableplanner/plannerd/runtime/contract"
	"github.com/durableplanner/plannerd/runtime/hooks"
	"github.com/durableplanner/plannerd/runtime/inbox"
	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/queue"
	"github.com/durableplanner/plannerd/runtime/telemetry"
)

// Deps bundles what the HTTP handlers need to serve a request.
type Deps struct {
	Store         persistence.Store
	Queue         queue.Store
	Bus           hooks.Bus
	Validator     *contract.Validator
	Logger        telemetry.Logger
	Notifier      inbox.Notifier
	MaxAttempts   int
	LeaseDuration time.Duration
}

// NewRouter builds the chi router for the control-plane surface. CORS is
// wide open by default; callers behind an API gateway are expected to
// tighten AllowedOrigins before exposing this directly to browsers.
func NewRouter(deps Deps) http.Handler {
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           300,
	}))

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/objectives", h.enqueueObjective)
		r.Get("/workflows/{workflowId}", h.getWorkflow)
		r.Post("/workflows/{workflowId}/signals", h.resumeWithSignal)
		r.Post("/messages", h.ingestInboundMessage)
	})

	return r
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// requestLogger logs one line per request at Info, carrying the chi request
// ID and response status so request logs correlate with structured logs
// emitted deeper in the runtime.
func requestLogger(logger telemetry.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"durationMs", time.Since(start).Milliseconds(),
				"requestId", middleware.GetReqID(r.Context()),
			)
		})
	}
}
