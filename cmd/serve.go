package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rituo/rituo/internal/auth"
	"github.com/rituo/rituo/internal/chat"
	"github.com/rituo/rituo/internal/config"
	"github.com/rituo/rituo/internal/google"
	"github.com/rituo/rituo/internal/instrumentation"
	"github.com/rituo/rituo/internal/logging"
	"github.com/rituo/rituo/internal/server"
	"github.com/rituo/rituo/internal/session"
	"github.com/rituo/rituo/internal/store"
	"github.com/rituo/rituo/internal/tools"
)

// cleanupInterval is how often expired grants and refresh tokens are purged.
const cleanupInterval = 10 * time.Minute

func newServeCmd() *cobra.Command {
	var (
		addr        string
		metricsAddr string
		dbPath      string
		logLevel    string
		logFormat   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the rituo API server",
		Long: `Start the HTTP API server.

Configuration comes from the environment (a local .env file is honored);
flags override it. Secrets (JWT_SECRET, GOOGLE_CLIENT_SECRET, GROQ_API_KEY)
are environment-only and have no flag equivalents.

The server needs a reachable tool endpoint (TOOL_ENDPOINT_URL) speaking MCP
over streamable HTTP; tool capabilities are listed at startup and refreshed
periodically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8000", "API server address. Can also use RITUO_ADDR env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use RITUO_METRICS_ADDR env var.")
	cmd.Flags().StringVar(&dbPath, "db", "./data/rituo.db", "SQLite database path, or 'memory' for an in-memory store. Can also use DB_PATH env var.")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error. Can also use LOG_LEVEL env var.")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "Log format: json or text. Can also use LOG_FORMAT env var.")

	return cmd
}

func runServe(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.Setup(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Instrumentation
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	// Storage
	repo, err := openStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer repo.Close()

	go purgeExpired(ctx, repo, logger)

	// Auth stack
	verifier := auth.NewVerifier(auth.VerifierConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		Scopes:       google.DefaultOAuthScopes,
	})
	states := auth.NewStateStore(logger)
	defer states.Close()

	exchanger := auth.NewExchanger(repo, verifier, states, logger, auth.WithMetrics(metrics))
	sessions := session.NewManager(repo, []byte(cfg.Auth.JWTSecret), "rituo", logger,
		session.WithMetrics(metrics),
		session.WithAccessTTL(cfg.Auth.AccessTTL),
		session.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)

	// Google credential refresh for tool calls
	oauthConfig := google.NewOAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	refresher := google.NewRefresher(repo, oauthConfig, logger, google.WithMetrics(metrics))

	// Tool endpoint
	endpoint, err := tools.NewMCPEndpoint(ctx, cfg.Tools.EndpointURL)
	if err != nil {
		return fmt.Errorf("failed to connect to tool endpoint: %w", err)
	}
	defer endpoint.Close()

	registry := tools.NewRegistry(endpoint, cfg.Tools.RefreshInterval, logger)
	if err := registry.Refresh(ctx); err != nil {
		// The endpoint may come up later; the watch loop keeps retrying
		logger.Warn("initial tool listing failed", logging.Err(err))
	}
	go registry.Watch(ctx)

	router := tools.NewRouter(registry, endpoint, refresher, logger,
		tools.WithMetrics(metrics),
		tools.WithAudit(instrumentation.NewAuditLogger(logger)),
		tools.WithTimeout(cfg.Tools.CallTimeout),
	)

	// Engine and orchestrator
	engine, err := chat.NewGroqEngine(chat.GroqConfig{
		APIKey:  cfg.Groq.APIKey,
		BaseURL: cfg.Groq.BaseURL,
		Model:   cfg.Groq.Model,
	}, metrics)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	orchestrator := chat.NewOrchestrator(repo, engine, router, registry, logger, chat.WithMetrics(metrics))

	// HTTP surface
	health := server.NewHealthChecker(repo)
	srv := server.New(
		server.Config{
			Addr:               cfg.Addr,
			FrontendURL:        cfg.FrontendURL,
			RateLimitPerSecond: cfg.RateLimitPerSecond,
			RateLimitBurst:     cfg.RateLimitBurst,
			TrustProxy:         cfg.TrustProxy,
		},
		server.Deps{
			Auth:     server.NewAuthHandlers(exchanger, sessions, repo, cfg.Google.ClientID, cfg.FrontendURL, logger),
			Chat:     server.NewChatHandlers(orchestrator, logger),
			Sessions: sessions,
			Health:   health,
			Metrics:  metrics,
		},
		logger,
	)

	var metricsServer *server.MetricsServer
	if provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(cfg.MetricsAddr, provider, logger)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := srv.Start(); err != nil {
			serverDone <- err
		}
	}()

	logger.Info("rituo is up",
		"addr", cfg.Addr,
		"engine", engine.ModelName(),
		"tools", len(registry.List()),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("api server stopped with error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down api server: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down metrics server", logging.Err(err))
		}
	}
	return nil
}

// openStore selects the repository backend. The literal path "memory" keeps
// everything in process, useful for development and tests.
func openStore(dbPath string) (store.Repository, error) {
	if dbPath == "memory" {
		return store.NewMemory(), nil
	}
	return store.NewSQLite(dbPath)
}

// purgeExpired periodically removes expired grants and refresh tokens.
func purgeExpired(ctx context.Context, repo store.Repository, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := repo.CleanupExpired(ctx, time.Now())
			if err != nil {
				logger.Warn("expired record cleanup failed", logging.Err(err))
				continue
			}
			if removed > 0 {
				logger.Info("purged expired records", "removed", removed)
			}
		}
	}
}
