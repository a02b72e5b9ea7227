// Package githubtool pushes generated deployment files to a GitHub repository and drives
// the deployment, Actions, release and issue APIs around them.
package githubtool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned when a client is built without a token, owner or repository.
var ErrNotConfigured = errors.New("github integration not configured")

// Result status values
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCompleted = "completed"
	StatusTimeout   = "timeout"
)

// Tool is the GitHub automation surface the orchestrator depends on.
type Tool interface {
	Deploy(ctx context.Context, projectRoot string, files map[string]string) (*DeployResult, error)
	SetSecrets(ctx context.Context, secrets map[string]string) (map[string]SecretResult, error)
	Monitor(ctx context.Context, deploymentID int64, timeout time.Duration) (*MonitorResult, error)
	CreateRelease(ctx context.Context, version, notes string) (*ReleaseResult, error)
	CreateIssue(ctx context.Context, title, body string, labels []string) (*IssueResult, error)
}

// FileResult is the outcome of uploading one file.
type FileResult struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
	SHA    string `json:"sha,omitempty"`
	Error  string `json:"error,omitempty"`
}

// DeployResult is returned by Deploy.
type DeployResult struct {
	Status            string                `json:"status"`
	DeploymentID      int64                 `json:"deployment_id"`
	RepositoryURL     string                `json:"repository_url"`
	Files             map[string]FileResult `json:"files"`
	WorkflowTriggered bool                  `json:"workflow_triggered"`
	WorkflowError     string                `json:"workflow_error,omitempty"`
}

// Uploaded returns the number of files uploaded successfully.
func (r *DeployResult) Uploaded() int {
	n := 0
	for _, f := range r.Files {
		if f.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// SecretResult is the outcome of setting one repository secret.
type SecretResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// MonitorResult is returned by Monitor.
// Duration is in seconds.
type MonitorResult struct {
	Status     string  `json:"status"`
	Conclusion string  `json:"conclusion,omitempty"`
	RunURL     string  `json:"run_url,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// ReleaseResult is returned by CreateRelease.
type ReleaseResult struct {
	Status     string `json:"status"`
	ReleaseURL string `json:"release_url"`
	TagName    string `json:"tag_name"`
}

// IssueResult is returned by CreateIssue.
type IssueResult struct {
	Status string `json:"status"`
	Number int    `json:"issue_number"`
	URL    string `json:"issue_url"`
}

// TagName returns the release tag for a version.
func TagName(version string) string {
	return "v" + version
}

// ReleaseName returns the release title for a version.
func ReleaseName(version string) string {
	return "Release " + TagName(version)
}

// DefaultReleaseBody is used when no release notes are supplied.
func DefaultReleaseBody(version string) string {
	return "Automated release " + TagName(version)
}

func timeoutResult(timeout time.Duration) *MonitorResult {
	return &MonitorResult{
		Status:  StatusTimeout,
		Message: fmt.Sprintf("Deployment monitoring timed out after %d seconds", int(timeout/time.Second)),
	}
}
