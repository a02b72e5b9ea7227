package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"launchpad/internal/config"
	"launchpad/internal/history"
	"launchpad/internal/llm"
	"launchpad/internal/metrics"
	"launchpad/internal/orchestrator"
	"launchpad/internal/review"
	"launchpad/internal/server"
)

const shutdownTimeout = 30 * time.Second

var (
	serveHost string
	servePort int
	serveLog  string
	serveDB   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API that accepts deployment and review requests.

Deployments run in the background and are tracked in memory; finished runs are
archived to the SQLite history database.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveLog, "log", "", "Path to log file (default from config)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Path to SQLite database (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveLog != "" {
		cfg.Server.LogFile = serveLog
	}
	if serveDB != "" {
		cfg.Server.DBPath = serveDB
	}

	logger, logFile, err := setupLogging(cfg.Server.LogFile, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Info("launchpad_starting", "version", version, "llm_provider", cfg.LLM.Provider)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	tool, err := newGitHubTool(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	if tool == nil {
		logger.Warn("github_integration_disabled")
	}

	hist, err := history.NewHistory(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize history database: %w", err)
	}
	defer hist.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}
	defer llm.Close(model)

	opts, err := orchestrator.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	orch := orchestrator.New(tool, logger).
		WithMetrics(m).
		WithArchive(hist).
		WithHistoryLimit(cfg.Deploy.HistoryLimit)
	srv := server.NewServer(orch, review.NewReviewer(model, logger, m), registry, logger, server.Config{
		Options:       opts,
		APISecret:     cfg.Server.APISecret,
		RateLimit:     cfg.Server.RateLimit,
		RateBurst:     cfg.Server.RateBurst,
		MaxRejections: cfg.Review.MaxRejections,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Host, cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server_failed", "error", err)
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("launchpad_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
