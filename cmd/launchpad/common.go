package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"launchpad/internal/config"
	"launchpad/internal/githubtool"
	"launchpad/internal/security"
	"launchpad/internal/state"
)

// setupLogging logs JSON to stdout and, when logPath is set, to an append-only file.
// The returned file may be nil.
func setupLogging(logPath string, out io.Writer) (*slog.Logger, *os.File, error) {
	if logPath == "" {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})), nil, nil
	}

	file, err := security.OpenAppendFile(logPath, security.PermLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(out, file), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), file, nil
}

// newGitHubTool returns the GitHub client, or nil when GitHub is not configured.
func newGitHubTool(cfg *config.Config, logger *slog.Logger) (githubtool.Tool, error) {
	if !cfg.GitHubEnabled() {
		return nil, nil
	}

	client, err := githubtool.NewClient(githubtool.Options{
		Token:           cfg.GitHub.Token,
		Owner:           cfg.GitHub.Owner,
		Repo:            cfg.GitHub.Repo,
		Branch:          cfg.GitHub.Branch,
		Workflow:        cfg.GitHub.Workflow,
		BaseURL:         cfg.GitHub.BaseURL,
		TriggerWorkflow: cfg.Features.CICD,
		PollInterval:    cfg.PollInterval(),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func readState(path string) (*state.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st state.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &st, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
