package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, ctx context.Context, detailed bool) *Provider {
	t.Helper()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
		DetailedLabels:  detailed,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })
	return provider
}

func TestMetrics_NilReceiverIsNoOp(t *testing.T) {
	ctx := context.Background()

	// Components built without WithMetrics carry a nil recorder; every
	// method must be safe to call on it.
	var metrics *Metrics
	metrics.RecordHTTPRequest(ctx, "POST", "/api/ai/chat", 200, 100*time.Millisecond)
	metrics.RecordCredentialExchange(ctx, ArtifactCredential, AuthResultSuccess)
	metrics.RecordSessionRefresh(ctx, AuthResultSuccess)
	metrics.RecordGoogleTokenRefresh(ctx, AuthResultFailure)
	metrics.RecordToolInvocation(ctx, "list_calendar_events", ToolStatusSuccess, time.Second)
	metrics.RecordToolInvocationWithAccount(ctx, "list_calendar_events", ToolStatusSuccess, "default", time.Second)
	metrics.RecordChatTurn(ctx, "success", time.Second)
	metrics.RecordEngineRequest(ctx, "success")
	metrics.IncrementActiveSessions(ctx)
	metrics.DecrementActiveSessions(ctx)
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider := newTestProvider(t, ctx, false)

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "POST", "/api/ai/chat", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/auth/google", 400, 50*time.Millisecond)
}

func TestMetrics_RecordCredentialExchange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx, false).Metrics()

	// Should not panic
	metrics.RecordCredentialExchange(ctx, ArtifactCredential, AuthResultSuccess)
	metrics.RecordCredentialExchange(ctx, ArtifactTempToken, AuthResultExpired)
	metrics.RecordCredentialExchange(ctx, ArtifactAuthCode, AuthResultFailure)
}

func TestMetrics_RecordSessionRefresh(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx, false).Metrics()

	// Should not panic
	metrics.RecordSessionRefresh(ctx, AuthResultSuccess)
	metrics.RecordSessionRefresh(ctx, AuthResultFailure)
	metrics.RecordSessionRefresh(ctx, AuthResultExpired)
}

func TestMetrics_RecordGoogleTokenRefresh(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx, false).Metrics()

	// Should not panic
	metrics.RecordGoogleTokenRefresh(ctx, AuthResultSuccess)
	metrics.RecordGoogleTokenRefresh(ctx, AuthResultFailure)
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx, false).Metrics()

	// Should not panic
	metrics.RecordToolInvocation(ctx, "search_events", ToolStatusSuccess, 100*time.Millisecond)
	metrics.RecordToolInvocation(ctx, "create_event", ToolStatusError, 500*time.Millisecond)
	metrics.RecordToolInvocation(ctx, "list_tasks", ToolStatusTimeout, 10*time.Second)
}

func TestMetrics_RecordToolInvocationWithAccount(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Without detailed labels the account must be ignored
	metrics := newTestProvider(t, ctx, false).Metrics()

	// Should not panic - account should be ignored
	metrics.RecordToolInvocationWithAccount(ctx, "search_events", ToolStatusSuccess, "user@example.com", 100*time.Millisecond)
}

func TestMetrics_RecordToolInvocationWithAccount_DetailedLabels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx, true).Metrics()

	// Should not panic - account should be included
	metrics.RecordToolInvocationWithAccount(ctx, "search_events", ToolStatusSuccess, "user@example.com", 100*time.Millisecond)
}

func TestMetrics_RecordChatTurn(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx, false).Metrics()

	// Should not panic
	metrics.RecordChatTurn(ctx, StatusSuccess, 2*time.Second)
	metrics.RecordChatTurn(ctx, StatusError, 500*time.Millisecond)
	metrics.RecordEngineRequest(ctx, StatusSuccess)
}

func TestMetrics_ActiveSessions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	metrics := newTestProvider(t, ctx, false).Metrics()

	// Should not panic
	metrics.IncrementActiveSessions(ctx)
	metrics.IncrementActiveSessions(ctx)
	metrics.DecrementActiveSessions(ctx)
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil even when disabled")
	}

	// All these should not panic even with nil underlying metrics
	metrics.RecordHTTPRequest(ctx, "POST", "/api/ai/chat", 200, 100*time.Millisecond)
	metrics.RecordCredentialExchange(ctx, ArtifactCredential, AuthResultSuccess)
	metrics.RecordSessionRefresh(ctx, AuthResultSuccess)
	metrics.RecordGoogleTokenRefresh(ctx, AuthResultSuccess)
	metrics.RecordToolInvocation(ctx, "test_tool", ToolStatusSuccess, 100*time.Millisecond)
	metrics.RecordToolInvocationWithAccount(ctx, "test_tool", ToolStatusSuccess, "user@example.com", 100*time.Millisecond)
	metrics.RecordChatTurn(ctx, StatusSuccess, time.Second)
	metrics.RecordEngineRequest(ctx, StatusSuccess)
	metrics.IncrementActiveSessions(ctx)
	metrics.DecrementActiveSessions(ctx)
}
