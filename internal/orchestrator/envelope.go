// Package orchestrator sequences the deployment steps for a generated project and
// keeps track of active and recent runs.
package orchestrator

import (
	"errors"
	"time"

	"launchpad/internal/githubtool"
)

// Deployment status values
const (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

var (
	// ErrMissingProjectFolder is returned before any step runs when the state has no project folder.
	ErrMissingProjectFolder = errors.New("project folder is required")

	// ErrNotFound is returned by Status for unknown deployment ids.
	ErrNotFound = errors.New("deployment not found")

	// ErrNoResult marks a GitHub step whose tool call returned neither a result nor an error.
	ErrNoResult = errors.New("tool returned no result")
)

// ValidationError reports input that was rejected before orchestration started.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Envelope is the result of one orchestration run. Step sections stay nil unless the step ran.
type Envelope struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	ProjectName string `json:"project_name"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`

	Local    *LocalResult                       `json:"local,omitempty"`
	GitHub   *githubtool.DeployResult           `json:"github,omitempty"`
	Secrets  map[string]githubtool.SecretResult `json:"secrets,omitempty"`
	Workflow *githubtool.MonitorResult          `json:"workflow,omitempty"`
	Release  *githubtool.ReleaseResult          `json:"release,omitempty"`
	Issue    *githubtool.IssueResult            `json:"issue,omitempty"`
}

// LocalResult describes what local preparation wrote and ran.
type LocalResult struct {
	Status        string          `json:"status"`
	ProjectFolder string          `json:"project_folder"`
	FilesWritten  []string        `json:"files_written"`
	MissingFiles  []string        `json:"missing_files,omitempty"`
	Commands      []CommandResult `json:"commands,omitempty"`
}

// CommandResult is the outcome of one local command.
type CommandResult struct {
	Command  string  `json:"command"`
	ExitCode int     `json:"exit_code"`
	Output   string  `json:"output,omitempty"`
	Duration float64 `json:"duration"`
}

// ActiveDeployment is a tracked run.
type ActiveDeployment struct {
	ProjectName string     `json:"project_name"`
	StartedAt   time.Time  `json:"started_at"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HistoryEntry summarises a finished run.
type HistoryEntry struct {
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Error       string `json:"error,omitempty"`
}

// Overview bundles every active deployment with the full history.
type Overview struct {
	ActiveDeployments map[string]ActiveDeployment `json:"active_deployments"`
	TotalDeployments  int                         `json:"total_deployments"`
	GitHubEnabled     bool                        `json:"github_integration_enabled"`
	History           []HistoryEntry              `json:"deployment_history"`
}

func isTerminal(status string) bool {
	return status == StatusSuccess || status == StatusPartial || status == StatusFailed
}
