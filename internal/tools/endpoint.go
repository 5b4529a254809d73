package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// CallOutcome is the raw endpoint response before normalization. IsError
// marks a refusal reported by the tool itself; those are never retried.
type CallOutcome struct {
	Content string
	IsError bool
}

// Endpoint abstracts the remote tool endpoint. A returned error signals a
// transport-level failure and is eligible for retry.
type Endpoint interface {
	// ListTools fetches the endpoint's capability list.
	ListTools(ctx context.Context) ([]Descriptor, error)

	// CallTool invokes a tool. The caller's Google credential travels in the
	// request context, see WithCredential.
	CallTool(ctx context.Context, name string, args map[string]any) (*CallOutcome, error)

	// Close releases the endpoint connection.
	Close() error
}

type credentialKeyType struct{}

var credentialKey credentialKeyType

// WithCredential attaches the caller's Google access token to the context.
// The endpoint forwards it to the tool side on every call.
func WithCredential(ctx context.Context, accessToken string) context.Context {
	return context.WithValue(ctx, credentialKey, accessToken)
}

// CredentialFromContext extracts the Google access token, if any.
func CredentialFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(credentialKey).(string)
	return token, ok && token != ""
}

// MCPEndpoint talks to the tool endpoint over streamable HTTP. The Google
// credential is forwarded per call via the X-Google-Token header; the
// application session token never leaves this process.
type MCPEndpoint struct {
	client *client.Client
}

// NewMCPEndpoint connects to and initializes the tool endpoint at baseURL.
func NewMCPEndpoint(ctx context.Context, baseURL string) (*MCPEndpoint, error) {
	c, err := client.NewStreamableHttpClient(baseURL,
		transport.WithHTTPHeaderFunc(func(ctx context.Context) map[string]string {
			token, ok := CredentialFromContext(ctx)
			if !ok {
				return nil
			}
			return map[string]string{"X-Google-Token": token}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool endpoint client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start tool endpoint client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "rituo",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize tool endpoint: %w", err)
	}

	return &MCPEndpoint{client: c}, nil
}

var _ Endpoint = (*MCPEndpoint)(nil)

// ListTools fetches the capability list and maps it to descriptors.
func (e *MCPEndpoint) ListTools(ctx context.Context) ([]Descriptor, error) {
	result, err := e.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(result.Tools))
	for _, tool := range result.Tools {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema for %s: %w", tool.Name, err)
		}
		readOnly := tool.Annotations.ReadOnlyHint != nil && *tool.Annotations.ReadOnlyHint
		descriptors = append(descriptors, Descriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
			ReadOnly:    readOnly,
		})
	}
	return descriptors, nil
}

// CallTool invokes a tool and flattens its content into text.
func (e *MCPEndpoint) CallTool(ctx context.Context, name string, args map[string]any) (*CallOutcome, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := e.client.CallTool(ctx, req)
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}

	return &CallOutcome{
		Content: strings.Join(parts, "\n"),
		IsError: result.IsError,
	}, nil
}

// Close shuts down the endpoint connection.
func (e *MCPEndpoint) Close() error {
	return e.client.Close()
}
