package auth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// flowState is a pending anti-forgery state for an authorization flow.
type flowState struct {
	State     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// StateStore tracks outstanding anti-forgery states for authorization flows.
// States are single-use and expire after DefaultStateTTL.
type StateStore struct {
	states map[string]*flowState
	mu     sync.Mutex
	logger *slog.Logger
	ttl    time.Duration
	done   chan struct{}
}

// NewStateStore creates a state store and starts its cleanup goroutine.
func NewStateStore(logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.Default()
	}

	store := &StateStore{
		states: make(map[string]*flowState),
		logger: logger,
		ttl:    DefaultStateTTL,
		done:   make(chan struct{}),
	}

	go store.cleanup()

	return store
}

// Issue generates, stores, and returns a fresh state token.
func (s *StateStore) Issue() (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state] = &flowState{
		State:     state,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.logger.Debug("Issued authorization state",
		"state_prefix", state[:8]+"...",
		"expires_at", now.Add(s.ttl),
	)

	return state, nil
}

// Consume retrieves and immediately deletes a state. A state that is unknown,
// already consumed, or expired fails the flow.
func (s *StateStore) Consume(state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, exists := s.states[state]
	if !exists {
		return fmt.Errorf("authorization state not found")
	}

	// Immediately delete the state to prevent replay attacks
	delete(s.states, state)

	if time.Now().After(pending.ExpiresAt) {
		return fmt.Errorf("authorization state expired")
	}

	return nil
}

// Close stops the cleanup goroutine.
func (s *StateStore) Close() {
	close(s.done)
}

// cleanup periodically removes expired states
func (s *StateStore) cleanup() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func (s *StateStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	deleted := 0
	for state, pending := range s.states {
		if now.After(pending.ExpiresAt) {
			delete(s.states, state)
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Debug("Cleaned up authorization states", "states_deleted", deleted)
	}
}
