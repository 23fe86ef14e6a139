package policy

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/durableplanner/plannerd/runtime/types"
)

// DefaultModuleName is used when a pack is loaded from an inline source
// string rather than a file path.
const DefaultModuleName = "plannerd_policy.rego"

// decision is the shape a policy pack's data.plannerd.policy.decision rule
// must produce.
type decision struct {
	Outcome          string         `json:"outcome"`
	RewrittenToolName string        `json:"rewritten_tool_name,omitempty"`
	RewrittenArgs    map[string]any `json:"rewritten_args,omitempty"`
	RiskClass        string         `json:"risk_class"`
	ReasonCode       string         `json:"reason_code"`
	Message          string         `json:"message,omitempty"`
}

// RegoEngine evaluates a single compiled rego module against the
// data.plannerd.policy.decision rule. It re-reads the module from disk on a
// TTL so operators can roll out a new policy pack without a process
// restart; the reload is a plain re-read, not an fsnotify watch.
type RegoEngine struct {
	path string
	ttl  time.Duration

	mu        sync.RWMutex
	source    string
	loadedAt  time.Time
	query     rego.PreparedEvalQuery
}

// NewRegoEngineFromSource prepares an engine from an inline rego module,
// bypassing file-based hot reload. Used for embedded default packs and tests.
func NewRegoEngineFromSource(ctx context.Context, source string) (*RegoEngine, error) {
	e := &RegoEngine{source: source}
	if err := e.compile(ctx, source); err != nil {
		return nil, err
	}
	return e, nil
}

// NewRegoEngineFromFile prepares an engine by reading path and recompiling
// it at most once per ttl on subsequent Evaluate calls.
func NewRegoEngineFromFile(ctx context.Context, path string, ttl time.Duration) (*RegoEngine, error) {
	e := &RegoEngine{path: path, ttl: ttl}
	if err := e.reload(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *RegoEngine) reload(ctx context.Context) error {
	body, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("read policy pack %q: %w", e.path, err)
	}
	if err := e.compile(ctx, string(body)); err != nil {
		return err
	}
	e.loadedAt = time.Now()
	return nil
}

func (e *RegoEngine) compile(ctx context.Context, source string) error {
	name := DefaultModuleName
	if e.path != "" {
		name = e.path
	}
	prepared, err := rego.New(
		rego.Query("data.plannerd.policy.decision"),
		rego.Module(name, source),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("compile policy pack: %w", err)
	}

	e.mu.Lock()
	e.source = source
	e.query = prepared
	e.mu.Unlock()
	return nil
}

func (e *RegoEngine) maybeReload(ctx context.Context) {
	if e.path == "" || e.ttl <= 0 {
		return
	}
	e.mu.RLock()
	stale := time.Since(e.loadedAt) > e.ttl
	e.mu.RUnlock()
	if stale {
		_ = e.reload(ctx)
	}
}

// Evaluate runs the compiled policy pack against in and maps its decision
// to a types.PolicyOutcome.
func (e *RegoEngine) Evaluate(ctx context.Context, in Input) (types.PolicyOutcome, error) {
	e.maybeReload(ctx)

	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	input := map[string]any{
		"tenantId":    in.Request.TenantID,
		"workspaceId": in.Request.WorkspaceID,
		"stepIndex":   in.StepIndex,
		"intentType":  string(in.Intent.Type),
		"toolName":    in.Intent.ToolName,
		"args":        in.Intent.Args,
		"packId":      in.Pack.ID,
		"packVersion": in.Pack.Version,
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return types.PolicyOutcome{}, fmt.Errorf("evaluate policy pack %q: %w", in.Pack.ID, err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// No rule matched: default-allow at low risk, mirroring
		// OPA's own undefined-result convention.
		return types.PolicyOutcome{Kind: types.PolicyAllow, RiskClass: "low", ReasonCode: "no_matching_rule"}, nil
	}

	raw, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return types.PolicyOutcome{}, fmt.Errorf("policy pack %q: decision rule did not return an object", in.Pack.ID)
	}
	d := decodeDecision(raw)

	outcome := types.PolicyOutcome{
		RiskClass:  d.RiskClass,
		ReasonCode: d.ReasonCode,
		Message:    d.Message,
	}
	switch d.Outcome {
	case "allow":
		outcome.Kind = types.PolicyAllow
	case "block":
		outcome.Kind = types.PolicyBlock
	case "rewrite":
		outcome.Kind = types.PolicyRewrite
		rewritten := in.Intent
		if d.RewrittenToolName != "" {
			rewritten.ToolName = d.RewrittenToolName
		}
		if d.RewrittenArgs != nil {
			rewritten.Args = d.RewrittenArgs
		}
		outcome.RewrittenIntent = &rewritten
	default:
		return types.PolicyOutcome{}, fmt.Errorf("policy pack %q: unknown outcome %q", in.Pack.ID, d.Outcome)
	}
	return outcome, nil
}

func decodeDecision(raw map[string]any) decision {
	d := decision{RiskClass: "low"}
	if v, ok := raw["outcome"].(string); ok {
		d.Outcome = v
	}
	if v, ok := raw["risk_class"].(string); ok && v != "" {
		d.RiskClass = v
	}
	if v, ok := raw["reason_code"].(string); ok {
		d.ReasonCode = v
	}
	if v, ok := raw["message"].(string); ok {
		d.Message = v
	}
	if v, ok := raw["rewritten_tool_name"].(string); ok {
		d.RewrittenToolName = v
	}
	if v, ok := raw["rewritten_args"].(map[string]any); ok {
		d.RewrittenArgs = v
	}
	return d
}
