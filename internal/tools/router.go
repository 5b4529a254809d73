package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/rituo/rituo/internal/google"
	"github.com/rituo/rituo/internal/instrumentation"
	"github.com/rituo/rituo/internal/logging"
)

// Dispatch limits.
const (
	// DefaultCallTimeout bounds a single tool invocation including retries.
	DefaultCallTimeout = 30 * time.Second

	// DefaultMaxResultBytes clips oversized tool results before they reach
	// the conversation.
	DefaultMaxResultBytes = 16 * 1024

	// DefaultMaxTries bounds transport-level retry attempts.
	DefaultMaxTries = 3
)

// Router dispatches tool invocations to the endpoint. Unknown tools fail
// fast against the registry; known tools run with the caller's Google
// credential attached, a bounded timeout, and retries for transport
// failures only. Rejections reported by the tool itself never retry.
type Router struct {
	registry *Registry
	endpoint Endpoint
	creds    google.CredentialSource
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
	logger   *slog.Logger

	timeout        time.Duration
	maxResultBytes int
	maxTries       uint
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithMetrics attaches invocation metrics.
func WithMetrics(m *instrumentation.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithAudit attaches the audit logger.
func WithAudit(a *instrumentation.AuditLogger) RouterOption {
	return func(r *Router) { r.audit = a }
}

// WithTimeout overrides the per-invocation time budget.
func WithTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.timeout = d }
}

// WithMaxResultBytes overrides the result size limit.
func WithMaxResultBytes(n int) RouterOption {
	return func(r *Router) { r.maxResultBytes = n }
}

// WithMaxTries overrides the transport retry budget.
func WithMaxTries(n uint) RouterOption {
	return func(r *Router) { r.maxTries = n }
}

// NewRouter creates a tool invocation router.
func NewRouter(registry *Registry, endpoint Endpoint, creds google.CredentialSource, logger *slog.Logger, opts ...RouterOption) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		registry:       registry,
		endpoint:       endpoint,
		creds:          creds,
		logger:         logging.WithOperation(logger, "tool_dispatch"),
		timeout:        DefaultCallTimeout,
		maxResultBytes: DefaultMaxResultBytes,
		maxTries:       DefaultMaxTries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch invokes a single tool and normalizes the outcome. The returned
// result always carries a correlation id; failures are encoded in the
// status, never as a Go error, so the orchestrator can relay them to the
// model.
func (r *Router) Dispatch(ctx context.Context, req Request) *Result {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	result := &Result{Tool: req.Tool, CorrelationID: req.CorrelationID}
	start := time.Now()

	logger := r.logger.With(
		logging.Tool(req.Tool),
		logging.CorrelationID(req.CorrelationID),
	)

	if _, ok := r.registry.Lookup(req.Tool); !ok {
		result.Status = StatusUnknownTool
		result.Error = fmt.Sprintf("tool %q is not available", req.Tool)
		result.Duration = time.Since(start)
		r.metrics.RecordToolInvocation(ctx, req.Tool, instrumentation.ToolStatusUnknown, result.Duration)
		logger.Warn("unknown tool requested")
		return result
	}

	token, err := r.creds.AccessToken(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, google.ErrNoCredential) {
			result.Status = StatusRejected
			result.Error = "Google access has not been granted for this account"
		} else {
			result.Status = StatusError
			result.Error = "could not obtain Google credential"
		}
		result.Duration = time.Since(start)
		r.metrics.RecordToolInvocation(ctx, req.Tool, instrumentation.ToolStatusRejected, result.Duration)
		logger.Warn("credential unavailable", logging.Err(err))
		return result
	}

	ctx, span := instrumentation.StartToolSpan(ctx, req.Tool)
	defer span.End()

	invocation := instrumentation.NewToolInvocation(req.Tool).
		WithChat(req.ChatID).
		WithCorrelation(req.CorrelationID).
		WithSpanContext(ctx)

	callCtx, cancel := context.WithTimeout(WithCredential(ctx, token), r.timeout)
	defer cancel()

	outcome, err := r.call(callCtx, req)
	result.Duration = time.Since(start)

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		result.Status = StatusTimeout
		result.Error = fmt.Sprintf("tool %q did not answer within %s", req.Tool, r.timeout)
	case err != nil:
		result.Status = StatusError
		result.Error = err.Error()
	case outcome.IsError:
		result.Status = StatusRejected
		result.Error = outcome.Content
	default:
		result.Status = StatusOK
		result.Content = outcome.Content
		if len(result.Content) > r.maxResultBytes {
			result.Content = result.Content[:r.maxResultBytes]
			result.Truncated = true
			result.Status = StatusTruncated
		}
	}

	r.record(ctx, result, invocation, logger)
	return result
}

// call runs the endpoint invocation with retries. Transport errors back off
// and retry; a context deadline or a tool-reported refusal ends the attempt
// immediately.
func (r *Router) call(ctx context.Context, req Request) (*CallOutcome, error) {
	operation := func() (*CallOutcome, error) {
		outcome, err := r.endpoint.CallTool(ctx, req.Tool, req.Arguments)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return outcome, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(r.maxTries),
	)
}

// DispatchAll runs a batch of invocations and returns results in request
// order. Batches run sequentially unless every requested tool is annotated
// read-only, in which case they run concurrently.
func (r *Router) DispatchAll(ctx context.Context, reqs []Request) []*Result {
	if len(reqs) <= 1 || !r.allReadOnly(reqs) {
		results := make([]*Result, len(reqs))
		for i, req := range reqs {
			results[i] = r.Dispatch(ctx, req)
		}
		return results
	}

	results := make([]*Result, len(reqs))
	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, req := range reqs {
		go func(i int, req Request) {
			defer wg.Done()
			results[i] = r.Dispatch(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return results
}

// allReadOnly reports whether every requested tool carries the read-only
// annotation. Unknown tools count as not read-only.
func (r *Router) allReadOnly(reqs []Request) bool {
	for _, req := range reqs {
		d, ok := r.registry.Lookup(req.Tool)
		if !ok || !d.ReadOnly {
			return false
		}
	}
	return true
}

// record emits metrics, audit, and operational logs for a finished dispatch.
func (r *Router) record(ctx context.Context, result *Result, invocation *instrumentation.ToolInvocation, logger *slog.Logger) {
	metricStatus := map[Status]string{
		StatusOK:          instrumentation.ToolStatusSuccess,
		StatusError:       instrumentation.ToolStatusError,
		StatusTimeout:     instrumentation.ToolStatusTimeout,
		StatusRejected:    instrumentation.ToolStatusRejected,
		StatusTruncated:   instrumentation.ToolStatusTruncated,
		StatusUnknownTool: instrumentation.ToolStatusUnknown,
	}[result.Status]
	r.metrics.RecordToolInvocation(ctx, result.Tool, metricStatus, result.Duration)

	if result.OK() {
		invocation.CompleteSuccess()
		logger.Info("tool invocation completed",
			logging.Status(logging.StatusSuccess),
			logging.Duration(result.Duration),
			"truncated", result.Truncated,
		)
	} else {
		invocation.CompleteWithError(errors.New(result.Error))
		logger.Warn("tool invocation failed",
			logging.Status(logging.StatusError),
			logging.Duration(result.Duration),
			"tool_status", string(result.Status),
		)
	}

	if r.audit != nil {
		r.audit.LogToolInvocation(invocation)
	}
}
