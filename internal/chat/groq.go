package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rituo/rituo/internal/instrumentation"
)

// Default Groq configuration values.
const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "qwen/qwen3-32b"
	DefaultGroqTimeout = 120 * time.Second
)

// GroqConfig holds configuration for the Groq engine.
type GroqConfig struct {
	// APIKey is the Groq API key (required).
	APIKey string

	// BaseURL is the API base URL. Groq speaks the OpenAI chat completions
	// dialect, so any compatible endpoint works here.
	BaseURL string

	// Model is the model identifier (default: qwen/qwen3-32b).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// GroqEngine talks to Groq's OpenAI-compatible chat completions API with
// tool calling enabled.
type GroqEngine struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	metrics *instrumentation.Metrics
}

// chatCompletionRequest is the /chat/completions request format.
type chatCompletionRequest struct {
	Model      string              `json:"model"`
	Messages   []chatCompletionMsg `json:"messages"`
	Tools      []toolDefinition    `json:"tools,omitempty"`
	ToolChoice string              `json:"tool_choice,omitempty"`
}

// chatCompletionMsg is the wire message format.
type chatCompletionMsg struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type toolDefinition struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// chatCompletionResponse is the /chat/completions response format.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewGroqEngine creates a Groq-backed engine.
func NewGroqEngine(cfg GroqConfig, metrics *instrumentation.Metrics) (*GroqEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGroqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGroqModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultGroqTimeout
	}

	return &GroqEngine{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		metrics: metrics,
	}, nil
}

var _ Engine = (*GroqEngine)(nil)

// Complete sends the conversation to the model and decodes its reply.
func (e *GroqEngine) Complete(ctx context.Context, messages []Message, tools []ToolSpec) (*Completion, error) {
	reqBody := chatCompletionRequest{
		Model:    e.model,
		Messages: encodeMessages(messages),
	}
	if len(tools) > 0 {
		reqBody.Tools = make([]toolDefinition, len(tools))
		for i, t := range tools {
			reqBody.Tools[i] = toolDefinition{
				Type: "function",
				Function: toolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			}
		}
		reqBody.ToolChoice = "auto"
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+"/chat/completions",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		e.metrics.RecordEngineRequest(ctx, instrumentation.AuthResultFailure)
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.metrics.RecordEngineRequest(ctx, instrumentation.AuthResultFailure)
		return nil, fmt.Errorf("read response: %w", err)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		e.metrics.RecordEngineRequest(ctx, instrumentation.AuthResultFailure)
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if chatResp.Error != nil {
		e.metrics.RecordEngineRequest(ctx, instrumentation.AuthResultFailure)
		return nil, fmt.Errorf("groq error: %s", chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		e.metrics.RecordEngineRequest(ctx, instrumentation.AuthResultFailure)
		return nil, fmt.Errorf("groq error (status %d): %s", resp.StatusCode, string(body))
	}
	if len(chatResp.Choices) == 0 {
		e.metrics.RecordEngineRequest(ctx, instrumentation.AuthResultFailure)
		return nil, fmt.Errorf("groq: no response choices returned")
	}

	choice := chatResp.Choices[0]
	completion := &Completion{
		Message: Message{
			Role:    RoleAssistant,
			Content: choice.Message.Content,
		},
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		call := ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
				return nil, fmt.Errorf("decode tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		completion.Message.ToolCalls = append(completion.Message.ToolCalls, call)
	}

	e.metrics.RecordEngineRequest(ctx, instrumentation.AuthResultSuccess)
	return completion, nil
}

// ModelName returns the configured model identifier.
func (e *GroqEngine) ModelName() string {
	return e.model
}

// encodeMessages maps conversation messages onto the wire format.
func encodeMessages(messages []Message) []chatCompletionMsg {
	out := make([]chatCompletionMsg, len(messages))
	for i, msg := range messages {
		wire := chatCompletionMsg{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			args, _ := json.Marshal(call.Arguments)
			wtc := wireToolCall{ID: call.ID, Type: "function"}
			wtc.Function.Name = call.Name
			wtc.Function.Arguments = string(args)
			wire.ToolCalls = append(wire.ToolCalls, wtc)
		}
		out[i] = wire
	}
	return out
}
