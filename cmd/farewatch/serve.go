package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/farewatch/farewatch/internal/audit"
	"github.com/farewatch/farewatch/internal/auth"
	"github.com/farewatch/farewatch/internal/chat"
	"github.com/farewatch/farewatch/internal/config"
	"github.com/farewatch/farewatch/internal/conversations"
	"github.com/farewatch/farewatch/internal/llm"
	"github.com/farewatch/farewatch/internal/observability"
	"github.com/farewatch/farewatch/internal/ratelimit"
	"github.com/farewatch/farewatch/internal/tokens"
	"github.com/farewatch/farewatch/internal/tools"
	"github.com/farewatch/farewatch/internal/trips"
	"github.com/farewatch/farewatch/internal/web"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "farewatch.yaml", "Path to configuration file")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	estimator := tokens.NewEstimator()

	// Stores: Postgres when a database is configured, in-memory otherwise.
	var (
		convStore conversations.Store
		tripStore trips.Store
	)
	if cfg.Database.URL != "" {
		pgConvs, err := conversations.NewPostgresStore(&conversations.PostgresConfig{
			DSN:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxConnections,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, estimator, config.ContextBudget)
		if err != nil {
			return fmt.Errorf("conversation store: %w", err)
		}
		defer pgConvs.Close()
		if err := pgConvs.Migrate(ctx); err != nil {
			return fmt.Errorf("conversation schema: %w", err)
		}

		pgTrips, err := trips.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("trip store: %w", err)
		}
		defer pgTrips.Close()
		if err := pgTrips.Migrate(ctx); err != nil {
			return fmt.Errorf("trip schema: %w", err)
		}

		convStore, tripStore = pgConvs, pgTrips
	} else {
		logger.Warn("no database configured, using in-memory stores")
		convStore = conversations.NewMemoryStore(estimator, config.ContextBudget)
		tripStore = trips.NewMemoryStore()
	}

	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}
	defer auditLogger.Close()

	searcher := trips.NewStaticSearcher()
	registry := tools.NewRegistry()
	handlers := tools.NewTripHandlers(tripStore, trips.NewLogTrigger(tripStore, logger), searcher, searcher, logger)
	if err := handlers.RegisterAll(registry); err != nil {
		return fmt.Errorf("tool registry: %w", err)
	}
	router := tools.NewRouter(registry, auditLogger, metrics, logger)

	client, err := llm.NewOpenAIClient(cfg.LLM, metrics, logger)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	titles, err := llm.NewOpenAITitleGenerator(cfg.LLM)
	if err != nil {
		return fmt.Errorf("title generator: %w", err)
	}

	orchestrator := chat.NewOrchestrator(convStore, tripStore, router, client, titles, cfg.Chat, logger)

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	handler := web.NewHandler(orchestrator, convStore, jwtService, limiter, metrics, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := web.NewServer(addr, handler.Mux(), logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
