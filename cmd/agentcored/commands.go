package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftcode/agentcore/internal/auth"
	"github.com/driftcode/agentcore/internal/broadcast"
	"github.com/driftcode/agentcore/internal/config"
	"github.com/driftcode/agentcore/internal/gateway"
	"github.com/driftcode/agentcore/internal/guardrails"
	"github.com/driftcode/agentcore/internal/hooks"
	"github.com/driftcode/agentcore/internal/observability"
	"github.com/driftcode/agentcore/internal/session"
	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/internal/tools"
	"github.com/driftcode/agentcore/internal/tools/exec"
	"github.com/driftcode/agentcore/internal/turn"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway, accepting WebSocket control connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the event store's schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Database.Driver != "sqlite" {
				fmt.Printf("driver %q requires no explicit migration step\n", cfg.Database.Driver)
				return nil
			}
			s, err := store.NewSQLiteStore(&store.SQLiteConfig{
				Path:            cfg.Database.URL,
				MaxOpenConns:    cfg.Database.MaxConnections,
				ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			})
			if err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			defer s.Close()
			fmt.Println("schema up to date")
			return nil
		},
	}
}

func newDoctorCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate the config file and report the resolved runtime settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			fmt.Printf("config ok: driver=%s default_provider=%s host=%s:%d\n",
				cfg.Database.Driver, cfg.LLM.DefaultProvider, cfg.Server.Host, cfg.Server.HTTPPort)
			for name := range cfg.LLM.Providers {
				fmt.Printf("  provider %q configured\n", name)
			}
			return nil
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Observability.Logging)
	slog.SetDefault(logger)

	s, err := openStore(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	execManager := exec.NewManager(cfg.Tools.WorkspaceRoot)
	registry.Register(exec.NewExecTool(execManager))
	registry.Register(exec.NewProcessTool(execManager))

	hookRegistry := hooks.NewRegistry(logger)
	evaluator := guardrails.NewEvaluator(nil)
	executor := tools.NewExecutor(registry, hookRegistry, evaluator)
	if cfg.Tools.Execution.PerToolTimeout > 0 {
		executor = executor.WithTimeout(cfg.Tools.Execution.PerToolTimeout)
	}

	metrics := observability.NewMetrics()
	var tracer *observability.Tracer
	if cfg.Observability.Tracing.Enabled {
		t, shutdown := newTracer(cfg)
		tracer = t
		defer shutdown(context.Background())
	}

	runner := turn.NewRunner(hookRegistry, executor, nil).WithObservability(metrics, tracer)
	orchestrator := session.NewOrchestrator(s, cfg.Session.MaxActiveSessions)

	sweeper := session.NewExpirySweeper(s, orchestrator, cfg.Session.IdleTTL, logger)
	if cfg.Session.ExpirySweepCron != "" {
		if err := sweeper.Start(cfg.Session.ExpirySweepCron); err != nil {
			return fmt.Errorf("start expiry sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	authService := auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		APIKeys:     apiKeys(cfg.Auth.APIKeys),
	})

	gatewayServer := gateway.NewServer(gateway.Deps{
		Logger:       logger,
		Auth:         authService,
		Orchestrator: orchestrator,
		Runner:       runner,
		Store:        s,
		Broadcast:    broadcast.NewManager(logger),
		Tools:        registry,
		Providers:    gateway.NewProviderFactory(cfg.LLM),
		Metrics:      metrics,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	return gatewayServer.Run(ctx, addr)
}

func apiKeys(cfgKeys []config.APIKeyConfig) []auth.APIKeyConfig {
	out := make([]auth.APIKeyConfig, 0, len(cfgKeys))
	for _, k := range cfgKeys {
		out = append(out, auth.APIKeyConfig{Key: k.Key, UserID: k.UserID, Email: k.Email, Name: k.Name})
	}
	return out
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return store.NewSQLiteStore(&store.SQLiteConfig{
			Path:            cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxConnections,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
	case "memory", "":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newTracer(cfg *config.Config) (*observability.Tracer, func(context.Context) error) {
	return observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		EnableInsecure: cfg.Observability.Tracing.Insecure,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
	})
}
