package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rituo/rituo/internal/instrumentation"
	"github.com/rituo/rituo/internal/session"
)

const (
	// DefaultShutdownTimeout bounds graceful drain on shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Config holds the API server's HTTP settings.
type Config struct {
	Addr        string
	FrontendURL string

	RateLimitPerSecond int
	RateLimitBurst     int
	TrustProxy         bool
}

// Deps are the wired application components the API serves.
type Deps struct {
	Auth     *AuthHandlers
	Chat     *ChatHandlers
	Sessions *session.Manager
	Health   *HealthChecker
	Metrics  *instrumentation.Metrics
}

// Server is the public API listener.
type Server struct {
	httpServer *http.Server
	health     *HealthChecker
	limiter    *RateLimiter
	logger     *slog.Logger
}

// New assembles the API router and server.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	limiter := NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.TrustProxy)

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(deps.Metrics))
	r.Use(CORS(cfg.FrontendURL))

	r.Get("/health", deps.Health.HealthHandler())
	r.Get("/healthz", deps.Health.LivenessHandler())
	r.Get("/readyz", deps.Health.ReadinessHandler())

	r.Route("/api/auth", func(r chi.Router) {
		r.With(limiter.Middleware).Post("/google", deps.Auth.Login)
		r.Get("/google-config", deps.Auth.GoogleConfig)
		r.Get("/google/callback", deps.Auth.Callback)
		r.Get("/check", deps.Auth.Check)
		r.With(limiter.Middleware).Post("/refresh", deps.Auth.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(deps.Sessions))
			r.Get("/me", deps.Auth.Me)
			r.Post("/logout", deps.Auth.Logout)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireSession(deps.Sessions))
		r.Post("/api/ai/chat", deps.Chat.SendMessage)
		r.Route("/api/chat/sessions", func(r chi.Router) {
			r.Post("/", deps.Chat.CreateSession)
			r.Get("/", deps.Chat.ListSessions)
			r.Get("/{id}", deps.Chat.GetSession)
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
		health:  deps.Health,
		limiter: limiter,
		logger:  logger,
	}
}

// Handler exposes the assembled router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving the API until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("starting api server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests. Readiness flips off first so load
// balancers stop routing before the listener closes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down api server")
	s.health.MarkShuttingDown()
	s.limiter.Close()
	return s.httpServer.Shutdown(ctx)
}
