package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"launchpad/internal/config"
	"launchpad/internal/githubtool"
	"launchpad/internal/history"
	"launchpad/internal/metrics"
	"launchpad/internal/state"
	"launchpad/pkg/cmdutil"
)

// Options selects which steps a run performs.
type Options struct {
	EnableGitHub  bool
	CreateIssue   bool
	Monitor       bool
	CreateRelease bool

	// Version is used when the state has none.
	Version string

	// DeploymentID overrides the generated envelope id.
	DeploymentID string

	// SecretEnv names environment variables pushed as repository secrets.
	SecretEnv []string

	// ExpectedFiles must exist in the project folder after local preparation.
	ExpectedFiles []string

	Commands        [][]string
	AllowedCommands []string
	CommandTimeout  time.Duration
	MonitorTimeout  time.Duration
}

// OptionsFromConfig builds run options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		EnableGitHub:    cfg.Features.Push,
		CreateIssue:     cfg.Features.Issue,
		Monitor:         cfg.Features.Monitor,
		CreateRelease:   cfg.Features.Release,
		Version:         cfg.Deploy.Version,
		SecretEnv:       cfg.Deploy.SecretEnv,
		ExpectedFiles:   cfg.Deploy.ExpectedFiles,
		AllowedCommands: cfg.Deploy.AllowedCommands,
		CommandTimeout:  cfg.CommandTimeout(),
		MonitorTimeout:  cfg.MonitorTimeout(),
	}

	for i, raw := range cfg.Deploy.Commands {
		parts, err := cmdutil.ParseCommandList(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid deploy command %d: %w", i, err)
		}
		opts.Commands = append(opts.Commands, parts)
	}

	return opts, nil
}

// Archiver persists finished runs.
type Archiver interface {
	RecordDeployment(ctx context.Context, record *history.DeploymentRecord) error
}

// Orchestrator runs deployments and tracks their results.
// It is safe for concurrent use.
type Orchestrator struct {
	tool    githubtool.Tool
	tracker *tracker
	logger  *slog.Logger
	metrics *metrics.Metrics
	archive Archiver
	tracer  trace.Tracer

	lookupEnv func(string) (string, bool)
	now       func() time.Time
}

// New creates an orchestrator. A nil tool disables every GitHub step.
func New(tool githubtool.Tool, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		tool:      tool,
		tracker:   newTracker(),
		logger:    logger,
		tracer:    otel.Tracer("launchpad/orchestrator"),
		lookupEnv: os.LookupEnv,
		now:       time.Now,
	}
}

// WithMetrics records run counters and durations in m.
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithArchive stores a summary of every finished run in a.
func (o *Orchestrator) WithArchive(a Archiver) *Orchestrator {
	o.archive = a
	return o
}

// WithHistoryLimit keeps at most n finished runs in memory. n is clamped to
// MaxHistory, and n <= 0 restores it.
func (o *Orchestrator) WithHistoryLimit(n int) *Orchestrator {
	o.tracker.setMax(n)
	return o
}

// GitHubEnabled reports whether a GitHub tool is configured.
func (o *Orchestrator) GitHubEnabled() bool {
	return o.tool != nil
}

// Orchestrate runs every enabled step for st. Step failures are reported in the
// envelope with status failed; the only error returned is a ValidationError.
func (o *Orchestrator) Orchestrate(ctx context.Context, st *state.State, opts Options) (*Envelope, error) {
	if st.ProjectFolder == "" {
		return nil, &ValidationError{Err: ErrMissingProjectFolder}
	}

	id := opts.DeploymentID
	if id == "" {
		id = uuid.NewString()
	}

	started := o.now()
	env := &Envelope{
		ID:          id,
		Timestamp:   started.UTC().Format(time.RFC3339),
		ProjectName: projectName(st),
		Status:      StatusInProgress,
	}

	o.tracker.start(env.ID, env.ProjectName, started)
	o.metrics.DeploymentStarted()

	ctx, span := o.tracer.Start(ctx, "orchestrate", trace.WithAttributes(
		attribute.String("deployment.id", env.ID),
		attribute.String("project", env.ProjectName),
	))
	defer span.End()

	o.logger.Info("deployment_started", "deployment_id", env.ID, "project", env.ProjectName,
		"files", len(st.GeneratedDeploymentFiles), "github", opts.EnableGitHub && o.GitHubEnabled())

	if err := o.run(ctx, st, opts, env); err != nil {
		env.Status = StatusFailed
		env.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("deployment_failed", "deployment_id", env.ID, "project", env.ProjectName, "error", err)
	}

	completed := o.now()
	o.tracker.finish(env.ID, env.Status, completed, HistoryEntry{
		ID:          env.ID,
		ProjectName: env.ProjectName,
		Status:      env.Status,
		Timestamp:   env.Timestamp,
		Error:       env.Error,
	})

	st.DeploymentStatus = env.Status
	st.DeploymentResults = env

	duration := completed.Sub(started)
	o.metrics.DeploymentFinished(env.Status, duration.Seconds())
	o.archiveRun(ctx, st, env, started, completed)

	o.logger.Info("deployment_finished", "deployment_id", env.ID, "project", env.ProjectName,
		"status", env.Status, "duration_ms", duration.Milliseconds())
	return env, nil
}

func (o *Orchestrator) run(ctx context.Context, st *state.State, opts Options, env *Envelope) error {
	status := StatusSuccess

	err := o.step(ctx, "prepare_local", func(ctx context.Context) error {
		local, err := o.prepareLocal(ctx, st.ProjectFolder, st.GeneratedDeploymentFiles, opts)
		if err != nil {
			return err
		}
		env.Local = local
		if local.Status == StatusPartial {
			status = StatusPartial
			o.logger.Warn("expected_files_missing", "deployment_id", env.ID, "missing", local.MissingFiles)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !opts.EnableGitHub || o.tool == nil {
		env.Status = status
		return nil
	}

	err = o.step(ctx, "deploy", func(ctx context.Context) error {
		res, err := o.tool.Deploy(ctx, st.ProjectFolder, st.GeneratedDeploymentFiles)
		if err != nil {
			return err
		}
		if res == nil {
			return ErrNoResult
		}
		env.GitHub = res
		if res.WorkflowError != "" {
			o.logger.Warn("workflow_trigger_failed", "deployment_id", env.ID, "error", res.WorkflowError)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if secrets := o.collectSecrets(opts.SecretEnv); len(secrets) > 0 {
		err = o.step(ctx, "secrets", func(ctx context.Context) error {
			res, err := o.tool.SetSecrets(ctx, secrets)
			if err != nil {
				return err
			}
			env.Secrets = res
			return nil
		})
		if err != nil {
			return err
		}
	}

	version := st.Version
	if version == "" {
		version = opts.Version
	}
	if version == "" {
		version = config.DefaultVersion
	}

	if opts.CreateIssue {
		err = o.step(ctx, "issue", func(ctx context.Context) error {
			body, err := FormatIssueBody(st, version, o.now())
			if err != nil {
				return err
			}
			res, err := o.tool.CreateIssue(ctx, IssueTitle(projectName(st), version), body, IssueLabels(version))
			if err != nil {
				return err
			}
			if res == nil {
				return ErrNoResult
			}
			env.Issue = res
			return nil
		})
		if err != nil {
			return err
		}
	}

	if opts.Monitor {
		timeout := opts.MonitorTimeout
		if timeout <= 0 {
			timeout = config.DefaultMonitorTimeout * time.Second
		}
		err = o.step(ctx, "monitor", func(ctx context.Context) error {
			res, err := o.tool.Monitor(ctx, env.GitHub.DeploymentID, timeout)
			if err != nil {
				return err
			}
			if res == nil {
				return ErrNoResult
			}
			env.Workflow = res
			return nil
		})
		if err != nil {
			return err
		}
	}

	if opts.CreateRelease {
		err = o.step(ctx, "release", func(ctx context.Context) error {
			notes, err := FormatReleaseNotes(st)
			if err != nil {
				return err
			}
			res, err := o.tool.CreateRelease(ctx, version, notes)
			if err != nil {
				return err
			}
			if res == nil {
				return ErrNoResult
			}
			env.Release = res
			return nil
		})
		if err != nil {
			return err
		}
	}

	env.Status = status
	return nil
}

// step runs fn inside a span and prefixes its error with the step name.
// A panic in fn is returned as the step's error.
func (o *Orchestrator) step(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	ctx, span := o.tracer.Start(ctx, "step."+name)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("step_panicked", "step", name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s: panic: %v", name, r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	start := time.Now()
	if err = fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}

	o.logger.Debug("step_completed", "step", name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// collectSecrets reads names from the environment, skipping unset and empty values.
func (o *Orchestrator) collectSecrets(names []string) map[string]string {
	secrets := make(map[string]string, len(names))
	for _, name := range names {
		if value, ok := o.lookupEnv(name); ok && value != "" {
			secrets[name] = value
		}
	}
	return secrets
}

func (o *Orchestrator) archiveRun(ctx context.Context, st *state.State, env *Envelope, started, completed time.Time) {
	if o.archive == nil {
		return
	}

	duration := completed.Sub(started).Seconds()
	record := &history.DeploymentRecord{
		ID:              env.ID,
		Project:         env.ProjectName,
		Status:          env.Status,
		StartedAt:       started,
		CompletedAt:     &completed,
		DurationSeconds: &duration,
		FilesCount:      len(st.GeneratedDeploymentFiles),
	}
	if env.GitHub != nil && env.GitHub.RepositoryURL != "" {
		record.RepositoryURL = &env.GitHub.RepositoryURL
	}
	if env.Release != nil && env.Release.ReleaseURL != "" {
		record.ReleaseURL = &env.Release.ReleaseURL
	}
	if env.Error != "" {
		record.ErrorMessage = &env.Error
	}

	if err := o.archive.RecordDeployment(context.WithoutCancel(ctx), record); err != nil {
		o.logger.Error("history_archive_failed", "deployment_id", env.ID, "error", err)
	}
}

// Status returns the tracked record for id.
func (o *Orchestrator) Status(id string) (ActiveDeployment, error) {
	a, ok := o.tracker.get(id)
	if !ok {
		return ActiveDeployment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a, nil
}

// Overview returns every tracked deployment, their count, whether GitHub is
// configured and the full history.
func (o *Orchestrator) Overview() Overview {
	active := o.tracker.snapshot()
	return Overview{
		ActiveDeployments: active,
		TotalDeployments:  len(active),
		GitHubEnabled:     o.GitHubEnabled(),
		History:           o.tracker.recent(0),
	}
}

// History returns the last limit entries, oldest first. limit <= 0 returns all of them.
func (o *Orchestrator) History(limit int) []HistoryEntry {
	return o.tracker.recent(limit)
}

// CleanupCompleted drops finished runs from the active table and returns how many were removed.
func (o *Orchestrator) CleanupCompleted() int {
	removed := o.tracker.cleanup()
	if removed > 0 {
		o.logger.Info("deployments_cleaned_up", "removed", removed)
	}
	return removed
}
