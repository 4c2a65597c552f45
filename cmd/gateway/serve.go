package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/gateway/internal/adapter/llm"
	"github.com/xiaot623/gogo/gateway/internal/config"
	"github.com/xiaot623/gogo/gateway/internal/logging"
	"github.com/xiaot623/gogo/gateway/internal/policy"
	"github.com/xiaot623/gogo/gateway/internal/repository"
	"github.com/xiaot623/gogo/gateway/internal/service"
	handler "github.com/xiaot623/gogo/gateway/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat gateway",
	Long: `Run the HTTP and websocket chat API.

Environment variables are read from the process and from .env in the
working directory, when present. See internal/config for every key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		return runServe(envFile)
	},
}

func init() {
	serveCmd.Flags().String("env-file", ".env", "dotenv file to load before reading the environment")
}

func runServe(envFile string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	log.Info().
		Int("port", cfg.HTTPPort).
		Str("database", cfg.DatabaseURL).
		Str("driver", cfg.Upstream.Driver).
		Str("model", cfg.Upstream.Model).
		Msg("starting gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer db.Close()

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy, policy.Limits{
		MaxMessageLength:   cfg.MaxMessageLength,
		MaxSessionMessages: cfg.MaxSessionMessages,
	})
	if err != nil {
		return fmt.Errorf("initialize policy engine: %w", err)
	}

	// Initialize upstream client and service
	llmClient := llm.NewClient(cfg.Upstream)
	svc := service.New(db, llmClient, service.NewGuard(cfg), cfg, policyEngine)

	go svc.RunRetentionSweeper(ctx)

	e := handler.NewServer(svc, cfg)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info().Int("port", cfg.HTTPPort).Msg("gateway listening")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("start server: %w", err)
	}

	log.Info().Msg("shutting down gateway")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to shut down server gracefully")
	}

	log.Info().Msg("gateway stopped")
	return nil
}
