// Package planner implements loop.Planner over HTTP: the provider/model
// chain and prompt composition are an external collaborator reached through
// a single JSON POST, keeping that boundary out of the runtime.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/durableplanner/plannerd/runtime/types"
)

// Option configures an HTTPPlanner.
type Option func(*HTTPPlanner)

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPPlanner) { p.http = c }
}

// WithBearerToken configures the client to send an Authorization Bearer token
// on every request, for planner services that sit behind simple token auth.
func WithBearerToken(token string) Option {
	return func(p *HTTPPlanner) { p.bearerToken = token }
}

// HTTPPlanner calls a remote planning endpoint with one JSON POST per step
// and decodes the response into a PlannerIntent. It implements loop.Planner
// without importing runtime/loop, so the planner package never depends on
// the stage pipeline that consumes it.
type HTTPPlanner struct {
	endpoint    string
	http        *http.Client
	bearerToken string
}

// New builds an HTTPPlanner that posts to endpoint.
func New(endpoint string, opts ...Option) *HTTPPlanner {
	p := &HTTPPlanner{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

type planRequest struct {
	ObjectivePrompt    string   `json:"objectivePrompt"`
	MemoryContext      string   `json:"memoryContext,omitempty"`
	PriorStepSummaries []string `json:"priorStepSummaries,omitempty"`
	PolicyConstraints  []string `json:"policyConstraints,omitempty"`
	AvailableTools     []string `json:"availableTools,omitempty"`
	StepIndex          int      `json:"stepIndex"`
	TenantID           string   `json:"tenantId"`
	WorkspaceID        string   `json:"workspaceId"`
}

type planResponse struct {
	Type     string         `json:"type"`
	ToolName string         `json:"toolName,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Question string         `json:"question,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
}

// Plan implements loop.Planner.
func (p *HTTPPlanner) Plan(ctx context.Context, input types.PlannerInputV1) (types.PlannerIntent, error) {
	body, err := json.Marshal(planRequest{
		ObjectivePrompt:    input.ObjectivePrompt,
		MemoryContext:      input.MemoryContext,
		PriorStepSummaries: input.PriorStepSummaries,
		PolicyConstraints:  input.PolicyConstraints,
		AvailableTools:     input.AvailableTools,
		StepIndex:          input.StepIndex,
		TenantID:           input.Scope.TenantID,
		WorkspaceID:        input.Scope.WorkspaceID,
	})
	if err != nil {
		return types.PlannerIntent{}, fmt.Errorf("encode plan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return types.PlannerIntent{}, fmt.Errorf("build plan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.bearerToken)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return types.PlannerIntent{}, fmt.Errorf("call planner: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return types.PlannerIntent{}, fmt.Errorf("planner http status %d", resp.StatusCode)
	}

	var out planResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.PlannerIntent{}, fmt.Errorf("decode plan response: %w", err)
	}

	return types.PlannerIntent{
		Type:     types.IntentType(out.Type),
		ToolName: out.ToolName,
		Args:     out.Args,
		Question: out.Question,
		Output:   out.Output,
	}, nil
}
