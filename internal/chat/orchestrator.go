package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rituo/rituo/internal/instrumentation"
	"github.com/rituo/rituo/internal/logging"
	"github.com/rituo/rituo/internal/store"
	"github.com/rituo/rituo/internal/tools"
)

// Turn limits.
const (
	// DefaultMaxRounds caps how many times a single turn may go back to the
	// model after tool dispatch. On the last round the model answers without
	// tools.
	DefaultMaxRounds = 5

	// HistoryWindow is how many transcript messages feed the model as
	// context.
	HistoryWindow = 10
)

// Turn phases, recorded as span events as a turn progresses.
const (
	phaseThinking    = "thinking"
	phaseDispatching = "dispatching"
	phaseResponding  = "responding"
)

// TurnResult is the outcome of one completed chat turn.
type TurnResult struct {
	ChatID    string
	MessageID string
	Reply     string
	Rounds    int
	ToolCalls int
}

// Orchestrator drives chat turns: it feeds the transcript to the engine,
// dispatches the tool calls the model requests, and appends results back
// into the conversation until the model produces a final answer.
//
// Turns on the same chat are serialized; concurrent requests for one chat
// queue behind each other so the transcript stays coherent.
type Orchestrator struct {
	repo      store.Repository
	engine    Engine
	router    *tools.Router
	registry  *tools.Registry
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	maxRounds int
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches turn metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithMaxRounds overrides the tool round ceiling.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) { o.maxRounds = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates a chat orchestrator.
func NewOrchestrator(repo store.Repository, engine Engine, router *tools.Router, registry *tools.Registry, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		repo:      repo,
		engine:    engine,
		router:    router,
		registry:  registry,
		logger:    logging.WithOperation(logger, "chat_turn"),
		maxRounds: DefaultMaxRounds,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateChat starts a new chat session for the user.
func (o *Orchestrator) CreateChat(ctx context.Context, userID, title string) (*store.ChatSession, error) {
	if title == "" {
		title = "New chat"
	}
	now := o.now()
	chat := &store.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.repo.CreateChatSession(ctx, chat); err != nil {
		return nil, ErrServerError("failed to create chat session")
	}
	return chat, nil
}

// ListChats returns the user's chat sessions, most recently active first.
func (o *Orchestrator) ListChats(ctx context.Context, userID string) ([]*store.ChatSession, error) {
	chats, err := o.repo.ListChatSessions(ctx, userID)
	if err != nil {
		return nil, ErrServerError("failed to list chat sessions")
	}
	return chats, nil
}

// History returns a chat's full transcript after checking ownership.
func (o *Orchestrator) History(ctx context.Context, userID, chatID string) (*store.ChatSession, []*store.ChatMessage, error) {
	chat, err := o.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := o.repo.ListChatMessages(ctx, chatID, 0)
	if err != nil {
		return nil, nil, ErrServerError("failed to load transcript")
	}
	return chat, messages, nil
}

// RunTurn processes one user message: persist it, let the model think and
// call tools, persist the final reply. Tool results enter the conversation
// in the order the model requested them.
func (o *Orchestrator) RunTurn(ctx context.Context, userID, chatID, message string) (*TurnResult, error) {
	ctx, span := instrumentation.StartTurnSpan(ctx, chatID)
	defer span.End()

	start := o.now()
	logger := logging.WithChat(o.logger, chatID)

	if _, err := o.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}

	// One turn at a time per chat
	lock := o.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	user, err := o.repo.GetIdentity(ctx, userID)
	if err != nil {
		return nil, ErrServerError("failed to load user")
	}

	if err := o.append(ctx, chatID, RoleUser, message); err != nil {
		return nil, err
	}

	history, err := o.repo.ListChatMessages(ctx, chatID, HistoryWindow)
	if err != nil {
		return nil, ErrServerError("failed to load history")
	}

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, SystemPrompt(user))
	for _, m := range history {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			messages = append(messages, Message{Role: m.Role, Content: m.Content})
		}
	}

	specs := o.toolSpecs()
	result := &TurnResult{ChatID: chatID}

	for round := 1; ; round++ {
		result.Rounds = round
		if err := ctx.Err(); err != nil {
			return nil, o.cancelled(ctx, logger, start)
		}

		instrumentation.AddSpanEvent(span, phaseThinking)
		offer := specs
		if round >= o.maxRounds {
			// Ceiling reached: force a final answer
			offer = nil
		}
		completion, err := o.engine.Complete(ctx, messages, offer)
		if err != nil {
			if ctx.Err() != nil {
				return nil, o.cancelled(ctx, logger, start)
			}
			o.metrics.RecordChatTurn(ctx, logging.StatusError, o.now().Sub(start))
			instrumentation.SetSpanError(span, err)
			logger.Error("engine request failed", logging.Err(err))
			return nil, ErrEngineUnavailable("the model could not be reached")
		}

		if len(completion.Message.ToolCalls) == 0 || round >= o.maxRounds {
			instrumentation.AddSpanEvent(span, phaseResponding)
			reply := completion.Message.Content
			if reply == "" {
				reply = "I couldn't finish all the requested actions within this turn. Please try again."
			}
			messageID, err := o.appendWithID(ctx, chatID, RoleAssistant, reply)
			if err != nil {
				return nil, err
			}
			result.MessageID = messageID
			result.Reply = reply

			duration := o.now().Sub(start)
			o.metrics.RecordChatTurn(ctx, logging.StatusSuccess, duration)
			instrumentation.SetSpanSuccess(span)
			logger.Info("turn completed",
				logging.Status(logging.StatusSuccess),
				logging.Duration(duration),
				"rounds", result.Rounds,
				"tool_calls", result.ToolCalls,
			)
			return result, nil
		}

		instrumentation.AddSpanEvent(span, phaseDispatching)
		requests := make([]tools.Request, len(completion.Message.ToolCalls))
		for i, call := range completion.Message.ToolCalls {
			requests[i] = tools.Request{
				Tool:          call.Name,
				Arguments:     call.Arguments,
				UserID:        userID,
				ChatID:        chatID,
				CorrelationID: uuid.NewString(),
			}
		}
		results := o.router.DispatchAll(ctx, requests)
		result.ToolCalls += len(results)

		if err := ctx.Err(); err != nil {
			return nil, o.cancelled(ctx, logger, start)
		}

		// Feed results back in the order the model asked for them
		messages = append(messages, completion.Message)
		for i, res := range results {
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    toolResultContent(res),
				ToolCallID: completion.Message.ToolCalls[i].ID,
			})
		}
	}
}

// toolResultContent renders a dispatch result for the model.
func toolResultContent(res *tools.Result) string {
	if res.OK() {
		content := res.Content
		if res.Truncated {
			content += "\n[result truncated]"
		}
		return content
	}
	return "Tool call failed (" + string(res.Status) + "): " + res.Error
}

// toolSpecs maps the registry's capability list onto engine tool specs.
func (o *Orchestrator) toolSpecs() []ToolSpec {
	descriptors := o.registry.List()
	specs := make([]ToolSpec, len(descriptors))
	for i, d := range descriptors {
		specs[i] = ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}
	}
	return specs
}

// ownedChat loads a chat and checks it belongs to the user. Chats of other
// users look like missing chats.
func (o *Orchestrator) ownedChat(ctx context.Context, userID, chatID string) (*store.ChatSession, error) {
	chat, err := o.repo.GetChatSession(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound("chat session does not exist")
		}
		return nil, ErrServerError("chat lookup failed")
	}
	if chat.UserID != userID {
		return nil, ErrChatNotFound("chat session does not exist")
	}
	return chat, nil
}

// append persists a transcript message.
func (o *Orchestrator) append(ctx context.Context, chatID, role, content string) error {
	_, err := o.appendWithID(ctx, chatID, role, content)
	return err
}

func (o *Orchestrator) appendWithID(ctx context.Context, chatID, role, content string) (string, error) {
	msg := &store.ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: o.now(),
	}
	if err := o.repo.AppendChatMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrChatNotFound("chat session does not exist")
		}
		return "", ErrServerError("failed to persist message")
	}
	return msg.ID, nil
}

// cancelled records an aborted turn.
func (o *Orchestrator) cancelled(ctx context.Context, logger *slog.Logger, start time.Time) error {
	duration := o.now().Sub(start)
	o.metrics.RecordChatTurn(ctx, "cancelled", duration)
	logger.Warn("turn cancelled", logging.Duration(duration))
	return ErrTurnCancelled("the turn was cancelled before completion")
}

// chatLock returns the serialization lock for a chat.
func (o *Orchestrator) chatLock(chatID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[chatID] = lock
	}
	return lock
}
