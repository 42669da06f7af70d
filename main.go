package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/JollyOmnivore/Athena-AI/internal/adapter/runclient"
	"github.com/JollyOmnivore/Athena-AI/internal/config"
	"github.com/JollyOmnivore/Athena-AI/internal/hub"
	"github.com/JollyOmnivore/Athena-AI/internal/policy"
	"github.com/JollyOmnivore/Athena-AI/internal/repository"
	"github.com/JollyOmnivore/Athena-AI/internal/service"
	httptransport "github.com/JollyOmnivore/Athena-AI/internal/transport/http"
	v1 "github.com/JollyOmnivore/Athena-AI/internal/transport/http/v1"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log, os.Stderr)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Info().
		Int("http_port", cfg.Server.HTTPPort).
		Str("database", cfg.Database.URL).
		Str("runclient", cfg.RunClient.Mode).
		Int("assistants", len(cfg.Assistants)).
		Msg("starting athena")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := repository.NewSQLiteStore(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer db.Close()

	// Initialize run client
	client, err := runclient.New(cfg.RunClientOptions(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize run client")
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize policy engine")
	}

	// Initialize stream hub
	streamHub := hub.New(hub.DefaultOptions(), logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go streamHub.Run(hubCtx)

	// Initialize service
	svc := service.New(db, client, policyEngine, streamHub, service.Options{
		Assistants: cfg.Assistants,
		Poll:       cfg.PollConfig(),
	}, logger)

	server := httptransport.NewServer(svc, streamHub, v1.Auth{
		AllowedEmails: cfg.Auth.AllowedEmails,
		FacultyEmails: cfg.Auth.FacultyEmails,
	}, logger)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	logger.Info().Int("port", cfg.Server.HTTPPort).Msg("api started")

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info().Msg("shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server gracefully")
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("background turns did not finish")
	}
	stopHub()

	logger.Info().Msg("athena stopped")
}

func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
