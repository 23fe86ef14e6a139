// Command plannerd runs the durable planner runtime: the control-plane HTTP
// API, the queue worker pool, or a one-shot database migration, selected by
// subcommand.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/durableplanner/plannerd/api"
	"github.com/durableplanner/plannerd/internal/config"
	"github.com/durableplanner/plannerd/runtime/adapter"
	"github.com/durableplanner/plannerd/runtime/contract"
	"github.com/durableplanner/plannerd/runtime/hooks"
	"github.com/durableplanner/plannerd/runtime/inbox"
	"github.com/durableplanner/plannerd/runtime/loop"
	"github.com/durableplanner/plannerd/runtime/persistence"
	"github.com/durableplanner/plannerd/runtime/persistence/postgres"
	"github.com/durableplanner/plannerd/runtime/planner"
	"github.com/durableplanner/plannerd/runtime/policy"
	"github.com/durableplanner/plannerd/runtime/queue"
	"github.com/durableplanner/plannerd/runtime/telemetry"
	"github.com/durableplanner/plannerd/runtime/tools"
	"github.com/durableplanner/plannerd/runtime/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plannerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "plannerd",
		Short: "Durable planner runtime for multi-tenant agent workflows",
	}
	rootCmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// deployment bundles every shared component serve and worker both need,
// built once from Config so the two subcommands never drift in how they
// construct the runtime.
type deployment struct {
	cfg      config.Config
	store    persistence.Store
	qstore   queue.Store
	logger   telemetry.Logger
	bus      hooks.Bus
	notifier *inbox.RedisNotifier
	loopDeps loop.Deps
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control-plane HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dep, cleanup, err := buildDeployment(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return serveHTTP(cmd.Context(), dep)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the queue worker pool that drives the planner loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dep, cleanup, err := buildDeployment(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return serveWorker(cmd.Context(), dep)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := postgres.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer db.Close()
			return postgres.Migrate(db)
		},
	}
}

// serveHTTP builds and runs the control-plane router behind http.Server,
// shutting down gracefully when ctx is cancelled.
func serveHTTP(ctx context.Context, dep *deployment) error {
	router := api.NewRouter(api.Deps{
		Store:         dep.store,
		Queue:         dep.qstore,
		Bus:           dep.bus,
		Validator:     contract.New(),
		Logger:        dep.logger,
		Notifier:      dep.notifier,
		MaxAttempts:   dep.cfg.MaxAttempts,
		LeaseDuration: dep.cfg.LeaseDuration,
	})

	srv := &http.Server{
		Addr:              dep.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		dep.logger.Info(ctx, "http server listening", "addr", dep.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// serveWorker runs the queue worker pool until ctx is cancelled.
func serveWorker(ctx context.Context, dep *deployment) error {
	handler := newJobHandler(dep)
	w := queue.NewWorker(dep.qstore, handler, queue.WorkerConfig{
		Concurrency:   dep.cfg.WorkerConcurrency,
		PollInterval:  dep.cfg.WorkerPollInterval,
		LeaseDuration: dep.cfg.LeaseDuration,
	}, dep.bus, dep.logger)

	dep.logger.Info(ctx, "worker starting", "concurrency", dep.cfg.WorkerConcurrency)
	err := w.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// newJobHandler adapts a claimed QueueJob into one loop.Run invocation: it
// rebuilds the triggering ObjectiveRequest from the job's own fields, drains
// and acknowledges any signal parked for the workflow, and drives the
// planner loop to its next pause point.
func newJobHandler(dep *deployment) queue.Handler {
	return func(ctx context.Context, job types.QueueJob) error {
		req := types.ObjectiveRequest{
			RequestID:       job.RequestID,
			TenantID:        job.Scope.TenantID,
			WorkspaceID:     job.Scope.WorkspaceID,
			WorkflowID:      job.WorkflowID,
			ThreadID:        job.ThreadID,
			ObjectivePrompt: job.ObjectivePrompt,
			OccurredAt:      job.OccurredAt,
			SchemaVersion:   types.SchemaVersionV1,
		}

		var resumed *types.Signal
		if sig, ok, err := inbox.DrainNext(ctx, dep.store, job.Scope, job.WorkflowID); err != nil {
			return err
		} else if ok {
			resumed = &sig
		}

		if _, err := loop.Run(ctx, dep.loopDeps, req, resumed); err != nil {
			return err
		}

		if resumed != nil {
			if err := inbox.Ack(ctx, dep.store, job.Scope, job.WorkflowID, resumed.SignalID); err != nil {
				return err
			}
		}

		return nil
	}
}

// buildDeployment wires every shared component from cfg: persistence,
// queue, policy, tools, adapters, the planner client, telemetry, the event
// bus, and the Redis-backed notifier. The returned cleanup func closes every
// resource opened here.
func buildDeployment(ctx context.Context, cfg config.Config) (*deployment, func(), error) {
	logger := telemetry.NewZapLogger(mustZapProd())
	metrics := telemetry.NewOtelMetrics()
	bus := hooks.NewBus()

	if err := registerTelemetrySubscriber(bus, logger, metrics); err != nil {
		return nil, nil, err
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	store := postgres.New(db)
	qstore := queue.NewPostgresStore(db)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	notifier := inbox.NewRedisNotifier(redisClient)

	packRegoPath, packReloadTTL, packRef := cfg.PolicyBundlePath, cfg.PolicyReloadTTL, policy.PackRef{ID: cfg.PolicyPackID, Version: cfg.PolicyPackVersion}
	if cfg.PolicyManifestPath != "" {
		manifest, err := policy.LoadManifest(cfg.PolicyManifestPath)
		if err != nil {
			_ = db.Close()
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("load policy manifest: %w", err)
		}
		packRegoPath = manifest.RegoPath
		packReloadTTL = time.Duration(manifest.ReloadSeconds) * time.Second
		packRef = manifest.Ref()
	}

	policyEngine, err := policy.NewRegoEngineFromFile(ctx, packRegoPath, packReloadTTL)
	if err != nil {
		_ = db.Close()
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("load policy pack: %w", err)
	}
	approvalGate := policy.ThresholdApprovalGate{Threshold: cfg.ApprovalRiskThreshold}

	// toolRegistry starts empty: registering a tool here and an adapter
	// wrapping it with adapter.NewRedisIdempotencyStore(redisClient, ttl) as
	// its dedup store is how a deployment adds a callable action.
	toolRegistry := tools.New()
	adapters := map[string]*adapter.Adapter{}

	var plannerOpts []planner.Option
	if cfg.PlannerBearerToken != "" {
		plannerOpts = append(plannerOpts, planner.WithBearerToken(cfg.PlannerBearerToken))
	}
	httpPlanner := planner.New(cfg.PlannerEndpoint, plannerOpts...)

	loopDeps := loop.Deps{
		Planner:      httpPlanner,
		Validator:    contract.New(),
		Tools:        toolRegistry,
		Adapters:     adapters,
		PolicyEngine: policyEngine,
		ApprovalGate: approvalGate,
		PolicyPack:   packRef,
		Store:        store,
		Bus:          bus,
		Logger:       logger,
		Metrics:      metrics,
		MaxSteps:     cfg.MaxSteps,
	}

	dep := &deployment{
		cfg:      cfg,
		store:    store,
		qstore:   qstore,
		logger:   logger,
		bus:      bus,
		notifier: notifier,
		loopDeps: loopDeps,
	}

	cleanup := func() {
		_ = redisClient.Close()
		_ = db.Close()
	}
	return dep, cleanup, nil
}

func mustZapProd() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// registerTelemetrySubscriber wires the event bus's telemetry subscriber:
// every published Event is logged and turned into a counter increment
// keyed by event type.
func registerTelemetrySubscriber(bus hooks.Bus, logger telemetry.Logger, metrics telemetry.Metrics) error {
	_, err := bus.Register(hooks.SubscriberFunc(func(ctx context.Context, event hooks.Event) error {
		logger.Info(ctx, "runtime event",
			"type", string(event.Type),
			"tenantId", event.TenantID,
			"workspaceId", event.WorkspaceID,
			"workflowId", event.WorkflowID,
		)
		metrics.IncCounter("plannerd_events_total", 1, "type", string(event.Type))
		return nil
	}))
	return err
}
