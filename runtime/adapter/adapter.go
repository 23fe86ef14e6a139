// Package adapter implements the action adapter layer: wraps a raw
// tool with three composable layers — tenant credential resolution,
// idempotency dedup, and retry with jitter backoff.
package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/durableplanner/plannerd/internal/stablejson"
	"github.com/durableplanner/plannerd/runtime/apperr"
	"github.com/durableplanner/plannerd/runtime/types"
)

type (
	// CredentialBundle is the tenant-scoped secret material a provider call
	// is made with. Scope must equal the call's scope or resolution fails.
	CredentialBundle struct {
		Scope types.Scope
		Data  map[string]any
	}

	// CredentialResolver returns a CredentialBundle for scope. Implementations
	// live outside this package; the credential store itself is not modeled here.
	CredentialResolver interface {
		Resolve(ctx context.Context, scope types.Scope) (CredentialBundle, error)
	}

	// IdempotencyKey identifies one tool dispatch attempt.
	IdempotencyKey struct {
		TenantID   string
		RequestID  string
		StepNumber int
		ToolName   string
		Args       map[string]any
	}

	// IdempotencyRecord is what the store returns for a previously seen key.
	IdempotencyRecord struct {
		Key         string
		Fingerprint string
		Result      types.ToolResult
	}

	// IdempotencyStore persists the first result for a given key so replays
	// return it instead of re-invoking the provider. Implementations may be
	// process-local or persistence-backed.
	IdempotencyStore interface {
		Load(ctx context.Context, key string) (IdempotencyRecord, bool, error)
		Save(ctx context.Context, record IdempotencyRecord) error
	}

	// RetryPolicy configures the retry layer's bounded exponential backoff.
	RetryPolicy struct {
		MaxAttempts int
		BaseDelay   time.Duration
		MaxDelay    time.Duration
		JitterRatio float64
	}

	// ToolInvoker is the raw provider call the adapter wraps: scope,
	// resolved credentials, and args in, a ToolResult or error out.
	ToolInvoker func(ctx context.Context, scope types.Scope, creds CredentialBundle, args map[string]any) (types.ToolResult, error)

	// Adapter composes credential resolution, idempotency, and retry around
	// a single ToolInvoker.
	Adapter struct {
		toolName string
		invoke   ToolInvoker
		creds    CredentialResolver
		store    IdempotencyStore
		retry    RetryPolicy
		breaker  *gobreaker.CircuitBreaker

		mu       sync.Mutex
		inflight map[string]*inflightCall
	}

	inflightCall struct {
		done   chan struct{}
		result types.ToolResult
		err    error
	}
)

// DefaultRetryPolicy is a conservative exponential backoff: base 500ms, cap
// 30s, ±20% jitter, up to 5 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, JitterRatio: 0.2}
}

// New builds an Adapter for toolName. creds and store may be nil to disable
// those layers. Retry is always on: a retry policy with MaxAttempts <= 0 is
// replaced by DefaultRetryPolicy.
func New(toolName string, invoke ToolInvoker, creds CredentialResolver, store IdempotencyStore, retry RetryPolicy) *Adapter {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "adapter:" + toolName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Adapter{
		toolName: toolName,
		invoke:   invoke,
		creds:    creds,
		store:    store,
		retry:    retry,
		breaker:  cb,
		inflight: make(map[string]*inflightCall),
	}
}

// ComputeIdempotencyKey hashes {tenantId, requestId, stepNumber, toolName,
// stableJSON(args)} with sha256.
func ComputeIdempotencyKey(k IdempotencyKey) string {
	payload := stablejson.MustMarshal(map[string]any{
		"tenantId":   k.TenantID,
		"requestId":  k.RequestID,
		"stepNumber": k.StepNumber,
		"toolName":   k.ToolName,
		"args":       k.Args,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// fingerprint is the stable-JSON args encoding used to detect key collisions
// against a differently-shaped call that happens to hash the same key.
func fingerprint(args map[string]any) string {
	return string(stablejson.MustMarshal(args))
}

// Execute dispatches one tool call through credential resolution,
// idempotency dedup, and retry, in that order.
func (a *Adapter) Execute(ctx context.Context, scope types.Scope, requestID string, stepNumber int, args map[string]any) (types.ToolResult, error) {
	var creds CredentialBundle
	if a.creds != nil {
		resolved, err := a.creds.Resolve(ctx, scope)
		if err != nil {
			return types.ToolResult{}, apperr.Validation(fmt.Sprintf("credential resolution for %q: %v", a.toolName, err))
		}
		if !resolved.Scope.Equal(scope) {
			return types.ToolResult{}, apperr.Validation(fmt.Sprintf("credential resolution for %q: scope mismatch", a.toolName))
		}
		creds = resolved
	}

	key := ComputeIdempotencyKey(IdempotencyKey{
		TenantID:   scope.TenantID,
		RequestID:  requestID,
		StepNumber: stepNumber,
		ToolName:   a.toolName,
		Args:       args,
	})
	fp := fingerprint(args)

	if a.store != nil {
		if rec, ok, err := a.store.Load(ctx, key); err != nil {
			return types.ToolResult{}, apperr.Internal("idempotency store load failed", err)
		} else if ok {
			if rec.Fingerprint != fp {
				return types.ToolResult{}, apperr.Validation(fmt.Sprintf("idempotency key collision for %q", a.toolName))
			}
			return rec.Result, nil
		}
	}

	result, err := a.executeOnceInflight(ctx, key, fp, scope, creds, args)
	if err != nil {
		return types.ToolResult{}, err
	}

	if a.store != nil {
		if saveErr := a.store.Save(ctx, IdempotencyRecord{Key: key, Fingerprint: fp, Result: result}); saveErr != nil {
			return types.ToolResult{}, apperr.Internal("idempotency store save failed", saveErr)
		}
	}
	return result, nil
}

// executeOnceInflight ensures concurrent callers sharing the same
// idempotency key converge on a single underlying invocation.
func (a *Adapter) executeOnceInflight(ctx context.Context, key, fp string, scope types.Scope, creds CredentialBundle, args map[string]any) (types.ToolResult, error) {
	a.mu.Lock()
	if call, ok := a.inflight[key]; ok {
		a.mu.Unlock()
		<-call.done
		return call.result, call.err
	}
	call := &inflightCall{done: make(chan struct{})}
	a.inflight[key] = call
	a.mu.Unlock()

	call.result, call.err = a.withRetry(ctx, scope, creds, args)
	close(call.done)

	a.mu.Lock()
	delete(a.inflight, key)
	a.mu.Unlock()

	_ = fp
	return call.result, call.err
}

// withRetry runs invoke with bounded exponential backoff plus jitter.
// Delay for attempt n is min(maxDelay, base*2^(n-1)), jittered by
// ±jitterRatio*delay.
func (a *Adapter) withRetry(ctx context.Context, scope types.Scope, creds CredentialBundle, args map[string]any) (types.ToolResult, error) {
	var lastErr error
	for attempt := 1; attempt <= a.retry.MaxAttempts; attempt++ {
		out, err := a.breaker.Execute(func() (any, error) {
			return a.invoke(ctx, scope, creds, args)
		})
		if err == nil {
			return out.(types.ToolResult), nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == a.retry.MaxAttempts {
			break
		}

		delay := a.backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return types.ToolResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	var terr *apperr.Error
	if errors.As(lastErr, &terr) {
		return types.ToolResult{}, terr
	}
	reason := "max_attempts_exhausted"
	if !isRetryable(lastErr) {
		reason = "non_retryable"
	}
	return types.ToolResult{}, apperr.ToolFailure(a.toolName, reason+": "+lastErr.Error(), false)
}

func (a *Adapter) backoffDelay(attempt int) time.Duration {
	base := float64(a.retry.BaseDelay)
	raw := base * float64(uint64(1)<<uint(attempt-1))
	capped := raw
	if max := float64(a.retry.MaxDelay); capped > max {
		capped = max
	}
	jitter := capped * a.retry.JitterRatio * (rand.Float64()*2 - 1)
	d := time.Duration(capped + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// httpCodeInMessage pulls an "HTTP_nnn"-shaped token out of an arbitrary
// error message, the convention a ToolInvoker uses to surface the upstream
// provider's status code without the adapter needing an HTTP-specific error
// type.
var httpCodeInMessage = regexp.MustCompile(`(?i)HTTP_(\d{3})`)

// isRetryable classifies an error as retryable iff the circuit breaker
// tripped, the caller explicitly marked an apperr.Error retryable, its
// message carries an HTTP_429/HTTP_5xx code, or its message contains
// "timeout".
func isRetryable(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var terr *apperr.Error
	if errors.As(err, &terr) {
		if terr.Kind == apperr.KindValidation {
			return false
		}
		return terr.Retryable
	}

	msg := err.Error()
	if m := httpCodeInMessage.FindStringSubmatch(msg); m != nil && IsHTTPRetryableCode(m[1]) {
		return true
	}
	return strings.Contains(strings.ToLower(msg), "timeout")
}

// IsHTTPRetryableCode reports whether code is an HTTP status the retry
// layer treats as retryable: 429 or any 5xx.
func IsHTTPRetryableCode(code string) bool {
	if code == "429" || code == "HTTP_429" {
		return true
	}
	n, err := strconv.Atoi(code)
	if err == nil && n >= 500 && n < 600 {
		return true
	}
	return false
}
