package tools

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rituo/rituo/internal/logging"
)

// DefaultRefreshInterval is how often the registry re-fetches the
// endpoint's capability list.
const DefaultRefreshInterval = 5 * time.Minute

// Registry caches the tool endpoint's capability list. Lookups are served
// from memory so an unknown tool fails fast without a network round trip.
type Registry struct {
	endpoint Endpoint
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	tools     map[string]Descriptor
	refreshed time.Time
}

// NewRegistry creates a registry for the given endpoint. Call Refresh before
// first use, then Watch to keep it current.
func NewRegistry(endpoint Endpoint, interval time.Duration, logger *slog.Logger) *Registry {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		endpoint: endpoint,
		interval: interval,
		logger:   logging.WithOperation(logger, "tool_registry"),
		tools:    make(map[string]Descriptor),
	}
}

// Refresh replaces the cached capability list with the endpoint's current
// one. A failed fetch keeps the previous list.
func (r *Registry) Refresh(ctx context.Context) error {
	descriptors, err := r.endpoint.ListTools(ctx)
	if err != nil {
		r.logger.Warn("capability refresh failed", logging.Err(err))
		return err
	}

	tools := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		tools[d.Name] = d
	}

	r.mu.Lock()
	r.tools = tools
	r.refreshed = time.Now()
	r.mu.Unlock()

	r.logger.Debug("capability list refreshed", "tools", len(tools))
	return nil
}

// Watch refreshes the registry on the configured interval until the context
// is cancelled.
func (r *Registry) Watch(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Refresh(ctx)
		}
	}
}

// Lookup returns the descriptor for a tool name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	return d, ok
}

// List returns all known descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LastRefreshed reports when the capability list was last replaced.
func (r *Registry) LastRefreshed() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshed
}
