package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"

	"launchpad/internal/config"
	"launchpad/internal/githubtool"
	"launchpad/internal/history"
	"launchpad/internal/metrics"
	"launchpad/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newState(t *testing.T) *state.State {
	t.Helper()
	return &state.State{
		ProjectFolder: filepath.Join(t.TempDir(), "shop"),
		ProjectName:   "shop",
		Version:       "2.0.0",
		Design:        "Go API behind nginx",
		GeneratedDeploymentFiles: map[string]string{
			"Dockerfile":                   "FROM golang:1.25",
			"k8s/deployment.yaml":          "kind: Deployment",
			".github/workflows/deploy.yml": "on: workflow_dispatch",
		},
	}
}

func newOrchestrator(tool githubtool.Tool, env map[string]string) *Orchestrator {
	o := New(tool, quietLogger())
	o.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return o
}

func allSteps() Options {
	return Options{
		EnableGitHub:  true,
		CreateIssue:   true,
		Monitor:       true,
		CreateRelease: true,
		SecretEnv:     []string{"DOCKER_USERNAME", "DOCKER_PASSWORD", "EMPTY_SECRET"},
	}
}

func TestOrchestrate_MissingProjectFolder(t *testing.T) {
	mock := githubtool.NewMock("octo", "shop")
	o := newOrchestrator(mock, nil)

	env, err := o.Orchestrate(context.Background(), &state.State{ProjectName: "shop"}, allSteps())
	if env != nil {
		t.Error("Expected no envelope")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrMissingProjectFolder) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if len(mock.Calls()) != 0 {
		t.Errorf("Expected no tool calls, got %v", mock.Calls())
	}
	if len(o.History(0)) != 0 || len(o.Overview().ActiveDeployments) != 0 {
		t.Error("Expected nothing tracked")
	}
}

func TestOrchestrate_LocalOnly(t *testing.T) {
	mock := githubtool.NewMock("octo", "shop")
	o := newOrchestrator(mock, nil)
	st := newState(t)

	opts := allSteps()
	opts.EnableGitHub = false

	env, err := o.Orchestrate(context.Background(), st, opts)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if env.Status != StatusSuccess {
		t.Errorf("Expected success, got %s (%s)", env.Status, env.Error)
	}
	if env.Local == nil {
		t.Fatal("Expected local result")
	}
	if env.GitHub != nil || env.Secrets != nil || env.Workflow != nil || env.Release != nil || env.Issue != nil {
		t.Errorf("Expected only local result, got %+v", env)
	}
	if len(mock.Calls()) != 0 {
		t.Errorf("Expected no tool calls, got %v", mock.Calls())
	}

	content, err := os.ReadFile(filepath.Join(st.ProjectFolder, "k8s", "deployment.yaml"))
	if err != nil {
		t.Fatalf("Expected generated file on disk: %v", err)
	}
	if string(content) != "kind: Deployment" {
		t.Errorf("Unexpected file content: %q", content)
	}

	want := []string{".github/workflows/deploy.yml", "Dockerfile", "k8s/deployment.yaml"}
	if diff := cmp.Diff(want, env.Local.FilesWritten); diff != "" {
		t.Errorf("FilesWritten mismatch (-want +got):\n%s", diff)
	}
}

func TestOrchestrate_NoTool(t *testing.T) {
	o := newOrchestrator(nil, nil)

	env, err := o.Orchestrate(context.Background(), newState(t), allSteps())
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if env.GitHub != nil || env.Release != nil {
		t.Error("Expected GitHub steps to be skipped without a tool")
	}
	if o.Overview().GitHubEnabled {
		t.Error("Expected GitHub integration to be reported disabled")
	}
}

func TestOrchestrate_FullRun(t *testing.T) {
	mock := githubtool.NewMock("octo", "shop")
	o := newOrchestrator(mock, map[string]string{
		"DOCKER_USERNAME": "octo",
		"DOCKER_PASSWORD": "hunter2-but-longer",
		"EMPTY_SECRET":    "",
	})
	st := newState(t)

	env, err := o.Orchestrate(context.Background(), st, allSteps())
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if env.Status != StatusSuccess {
		t.Fatalf("Expected success, got %s (%s)", env.Status, env.Error)
	}

	wantCalls := []string{"Deploy", "SetSecrets", "CreateIssue", "Monitor", "CreateRelease"}
	if diff := cmp.Diff(wantCalls, mock.Calls()); diff != "" {
		t.Errorf("Call order mismatch (-want +got):\n%s", diff)
	}

	wantSecrets := map[string]string{"DOCKER_USERNAME": "octo", "DOCKER_PASSWORD": "hunter2-but-longer"}
	if diff := cmp.Diff(wantSecrets, mock.Secrets()); diff != "" {
		t.Errorf("Secrets mismatch (-want +got):\n%s", diff)
	}
	if _, ok := env.Secrets["EMPTY_SECRET"]; ok {
		t.Error("Expected empty secret to be skipped")
	}

	if env.GitHub == nil || env.GitHub.Uploaded() != 3 {
		t.Errorf("Expected 3 uploaded files, got %+v", env.GitHub)
	}
	if env.Workflow == nil || env.Workflow.Status != githubtool.StatusCompleted {
		t.Errorf("Expected completed workflow, got %+v", env.Workflow)
	}
	if env.Release == nil || env.Release.TagName != "v2.0.0" {
		t.Errorf("Expected release v2.0.0, got %+v", env.Release)
	}

	releases := mock.Releases()
	if len(releases) != 1 || !strings.HasPrefix(releases[0].Notes, "# shop - Automated Deployment Release") {
		t.Errorf("Expected rendered release notes, got %+v", releases)
	}
	issues := mock.Issues()
	if len(issues) != 1 || issues[0].Title != "🚀 Deployment v2.0.0: shop" {
		t.Errorf("Unexpected issue: %+v", issues)
	}

	if st.DeploymentStatus != StatusSuccess {
		t.Errorf("Expected state status success, got %s", st.DeploymentStatus)
	}
	if st.DeploymentResults != env {
		t.Error("Expected state to carry the envelope")
	}

	active, err := o.Status(env.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if active.Status != StatusSuccess || active.CompletedAt == nil {
		t.Errorf("Expected finished active entry, got %+v", active)
	}
	if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
		t.Errorf("Expected RFC3339 timestamp, got %q", env.Timestamp)
	}
}

func TestOrchestrate_OptionalStepsOff(t *testing.T) {
	mock := githubtool.NewMock("octo", "shop")
	o := newOrchestrator(mock, nil)

	env, err := o.Orchestrate(context.Background(), newState(t), Options{EnableGitHub: true, SecretEnv: []string{"UNSET"}})
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if diff := cmp.Diff([]string{"Deploy"}, mock.Calls()); diff != "" {
		t.Errorf("Call mismatch (-want +got):\n%s", diff)
	}
	if env.Secrets != nil || env.Workflow != nil || env.Release != nil || env.Issue != nil {
		t.Error("Expected optional sections to stay nil")
	}
}

func TestOrchestrate_DeployFailureIsSwallowed(t *testing.T) {
	mock := githubtool.NewMock("octo", "shop")
	mock.DeployErr = errors.New("repository not found")
	o := newOrchestrator(mock, nil)

	env, err := o.Orchestrate(context.Background(), newState(t), allSteps())
	if err != nil {
		t.Fatalf("Expected step error to be swallowed, got %v", err)
	}
	if env.Status != StatusFailed {
		t.Errorf("Expected failed, got %s", env.Status)
	}
	if !strings.Contains(env.Error, "repository not found") {
		t.Errorf("Expected error text in envelope, got %q", env.Error)
	}
	if env.Local == nil {
		t.Error("Expected local result from the step that ran")
	}
	if env.Release != nil {
		t.Error("Expected later steps to be skipped")
	}

	hist := o.History(0)
	if len(hist) != 1 || hist[0].Status != StatusFailed || hist[0].Error == "" {
		t.Errorf("Unexpected history: %+v", hist)
	}
}

// brokenTool misbehaves on Deploy and defers everything else to the mock.
type brokenTool struct {
	*githubtool.Mock
	panics bool
}

func (b *brokenTool) Deploy(ctx context.Context, root string, files map[string]string) (*githubtool.DeployResult, error) {
	if b.panics {
		var uploads map[string]string
		uploads["Dockerfile"] = files["Dockerfile"]
	}
	return nil, nil
}

func TestOrchestrate_ToolPanicFailsRun(t *testing.T) {
	tool := &brokenTool{Mock: githubtool.NewMock("octo", "shop"), panics: true}
	o := newOrchestrator(tool, nil)

	env, err := o.Orchestrate(context.Background(), newState(t), allSteps())
	if err != nil {
		t.Fatalf("Expected panic to be swallowed, got %v", err)
	}
	if env.Status != StatusFailed {
		t.Errorf("Expected failed, got %s", env.Status)
	}
	if !strings.Contains(env.Error, "deploy: panic") || !strings.Contains(env.Error, "nil map") {
		t.Errorf("Expected panic text in envelope, got %q", env.Error)
	}

	active, err := o.Status(env.ID)
	if err != nil || active.Status != StatusFailed || active.CompletedAt == nil {
		t.Errorf("Expected finished failed entry, got %+v, %v", active, err)
	}
	if removed := o.CleanupCompleted(); removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
}

func TestOrchestrate_NilDeployResultFailsRun(t *testing.T) {
	tool := &brokenTool{Mock: githubtool.NewMock("octo", "shop")}
	o := newOrchestrator(tool, nil)

	env, err := o.Orchestrate(context.Background(), newState(t), allSteps())
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if env.Status != StatusFailed || !strings.Contains(env.Error, ErrNoResult.Error()) {
		t.Errorf("Expected failed run with %q, got %s %q", ErrNoResult, env.Status, env.Error)
	}
	if env.Workflow != nil || env.Release != nil {
		t.Error("Expected later steps to be skipped")
	}
}

func TestOrchestrate_PartialOnMissingExpectedFiles(t *testing.T) {
	o := newOrchestrator(githubtool.NewMock("octo", "shop"), nil)

	opts := Options{ExpectedFiles: []string{"Dockerfile", "docker-compose.yml"}}
	env, err := o.Orchestrate(context.Background(), newState(t), opts)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if env.Status != StatusPartial {
		t.Errorf("Expected partial, got %s", env.Status)
	}
	if diff := cmp.Diff([]string{"docker-compose.yml"}, env.Local.MissingFiles); diff != "" {
		t.Errorf("MissingFiles mismatch (-want +got):\n%s", diff)
	}
}

func TestOrchestrate_RejectsTraversal(t *testing.T) {
	o := newOrchestrator(nil, nil)
	st := newState(t)
	st.GeneratedDeploymentFiles = map[string]string{"../escape.txt": "x"}

	env, err := o.Orchestrate(context.Background(), st, Options{})
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if env.Status != StatusFailed {
		t.Errorf("Expected failed, got %s", env.Status)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(st.ProjectFolder), "escape.txt")); err == nil {
		t.Error("File escaped the project folder")
	}
}

func TestOrchestrate_DisallowedCommand(t *testing.T) {
	o := newOrchestrator(nil, nil)

	env, err := o.Orchestrate(context.Background(), newState(t), Options{Commands: [][]string{{"rm", "-rf", "."}}})
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if env.Status != StatusFailed || !strings.Contains(env.Error, "command not allowed") {
		t.Errorf("Expected disallowed command failure, got %s: %s", env.Status, env.Error)
	}
}

func TestOrchestrate_RunsCommands(t *testing.T) {
	o := newOrchestrator(nil, nil)

	opts := Options{
		Commands:        [][]string{{"ls"}},
		AllowedCommands: []string{"ls"},
		CommandTimeout:  10 * time.Second,
	}
	env, err := o.Orchestrate(context.Background(), newState(t), opts)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if env.Status != StatusSuccess {
		t.Fatalf("Expected success, got %s: %s", env.Status, env.Error)
	}
	if len(env.Local.Commands) != 1 || !strings.Contains(env.Local.Commands[0].Output, "Dockerfile") {
		t.Errorf("Expected ls output listing Dockerfile, got %+v", env.Local.Commands)
	}
}

func TestOrchestrate_RedactsSecretsInCommandOutput(t *testing.T) {
	o := newOrchestrator(nil, map[string]string{"DOCKER_PASSWORD": "s3cret-value"})

	opts := Options{
		SecretEnv:       []string{"DOCKER_PASSWORD"},
		Commands:        [][]string{{"echo", "password=s3cret-value"}},
		AllowedCommands: []string{"echo"},
		CommandTimeout:  10 * time.Second,
	}
	env, err := o.Orchestrate(context.Background(), newState(t), opts)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if len(env.Local.Commands) != 1 {
		t.Fatalf("Expected one command result, got %+v", env.Local.Commands)
	}
	if got := env.Local.Commands[0].Output; got != "password=***REDACTED***" {
		t.Errorf("Expected redacted output, got %q", got)
	}
}

func TestOrchestrator_OverviewAndCleanup(t *testing.T) {
	o := newOrchestrator(githubtool.NewMock("octo", "shop"), nil)
	ctx := context.Background()

	first, _ := o.Orchestrate(ctx, newState(t), Options{})
	second, _ := o.Orchestrate(ctx, newState(t), Options{})
	o.tracker.start("running", "blog", time.Now())

	ov := o.Overview()
	if ov.TotalDeployments != 3 || len(ov.ActiveDeployments) != 3 {
		t.Errorf("Expected 3 tracked deployments, got %d", ov.TotalDeployments)
	}
	if !ov.GitHubEnabled {
		t.Error("Expected GitHub integration enabled")
	}
	if len(ov.History) != 2 || ov.History[0].ID != first.ID || ov.History[1].ID != second.ID {
		t.Errorf("Unexpected history order: %+v", ov.History)
	}

	if removed := o.CleanupCompleted(); removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if _, err := o.Status(first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if a, err := o.Status("running"); err != nil || a.Status != StatusInProgress {
		t.Errorf("Expected in-progress entry to remain, got %+v, %v", a, err)
	}
	if len(o.History(1)) != 1 {
		t.Error("Expected cleanup to leave history untouched")
	}
}

func TestOrchestrator_HistoryBounded(t *testing.T) {
	o := newOrchestrator(nil, nil)
	ctx := context.Background()
	st := newState(t)

	for i := 0; i < MaxHistory+5; i++ {
		if _, err := o.Orchestrate(ctx, st, Options{}); err != nil {
			t.Fatalf("Orchestrate failed: %v", err)
		}
	}
	if n := len(o.History(0)); n != MaxHistory {
		t.Errorf("Expected %d history entries, got %d", MaxHistory, n)
	}
	if n := len(o.History(DefaultHistoryLimit)); n != DefaultHistoryLimit {
		t.Errorf("Expected %d entries, got %d", DefaultHistoryLimit, n)
	}
}

func TestOrchestrator_HistoryLimitCannotExceedMax(t *testing.T) {
	o := newOrchestrator(nil, nil).WithHistoryLimit(100)
	ctx := context.Background()
	st := newState(t)

	for i := 0; i < MaxHistory+10; i++ {
		if _, err := o.Orchestrate(ctx, st, Options{}); err != nil {
			t.Fatalf("Orchestrate failed: %v", err)
		}
	}
	if n := len(o.History(0)); n != MaxHistory {
		t.Errorf("Expected history capped at %d, got %d", MaxHistory, n)
	}

	o = newOrchestrator(nil, nil).WithHistoryLimit(5)
	for i := 0; i < 8; i++ {
		if _, err := o.Orchestrate(ctx, st, Options{}); err != nil {
			t.Fatalf("Orchestrate failed: %v", err)
		}
	}
	if n := len(o.History(0)); n != 5 {
		t.Errorf("Expected history capped at 5, got %d", n)
	}
}

func TestOrchestrator_ArchiveAndMetrics(t *testing.T) {
	hist, err := history.NewHistory(filepath.Join(t.TempDir(), "launchpad.db"))
	if err != nil {
		t.Fatalf("NewHistory failed: %v", err)
	}
	defer hist.Close()

	o := newOrchestrator(githubtool.NewMock("octo", "shop"), nil).
		WithArchive(hist).
		WithMetrics(metrics.New(prometheus.NewRegistry()))

	env, err := o.Orchestrate(context.Background(), newState(t), Options{EnableGitHub: true, CreateRelease: true})
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	record, err := hist.GetDeployment(context.Background(), env.ID)
	if err != nil || record == nil {
		t.Fatalf("Expected archived record, got %v, %v", record, err)
	}
	if record.Status != StatusSuccess || record.FilesCount != 3 {
		t.Errorf("Unexpected record: %+v", record)
	}
	if record.ReleaseURL == nil || !strings.HasSuffix(*record.ReleaseURL, "/releases/tag/v2.0.0") {
		t.Errorf("Expected release URL, got %v", record.ReleaseURL)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Features.Release = true
	cfg.Deploy.Commands = []any{"docker build -t shop .", []any{"kubectl", "apply", "-f", "k8s"}}

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig failed: %v", err)
	}
	if !opts.EnableGitHub || !opts.CreateRelease || opts.Monitor {
		t.Errorf("Unexpected feature flags: %+v", opts)
	}
	want := [][]string{{"docker", "build", "-t", "shop", "."}, {"kubectl", "apply", "-f", "k8s"}}
	if diff := cmp.Diff(want, opts.Commands); diff != "" {
		t.Errorf("Commands mismatch (-want +got):\n%s", diff)
	}
	if opts.MonitorTimeout != 300*time.Second {
		t.Errorf("Expected 300s monitor timeout, got %v", opts.MonitorTimeout)
	}

	cfg.Deploy.Commands = []any{42}
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("Expected error for invalid command")
	}
}
