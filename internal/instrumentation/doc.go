// Package instrumentation provides comprehensive OpenTelemetry instrumentation
// for the rituo chat server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, auth operations, and tool calls
//   - Distributed tracing for conversation turns and tool dispatches
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - active_sessions: Gauge of active user sessions
//
// Auth Metrics:
//   - credential_exchange_total: Counter of Google credential exchanges by artifact kind and result
//   - session_refresh_total: Counter of application session refresh attempts by result
//   - google_token_refresh_total: Counter of Google access token refresh attempts by result
//
// Tool Metrics:
//   - tool_invocations_total: Counter of remote tool invocations by tool name and status
//   - tool_duration_seconds: Histogram of remote tool execution durations
//
// Chat Metrics:
//   - chat_turns_total: Counter of processed conversation turns by status
//   - chat_turn_duration_seconds: Histogram of turn durations including tool calls
//   - engine_requests_total: Counter of model engine requests by status
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling
//   - Conversation turns (chat.turn)
//   - Remote tool dispatches (tool.<name>)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: rituo)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "rituo",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "POST", "/api/ai/chat", 200, time.Since(start))
//
//	// Record a remote tool invocation
//	recorder.RecordToolInvocation(ctx, "search_events", "success", time.Since(start))
package instrumentation
