package githubtool

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// Mock is an in-memory Tool that records every call.
// It backs dry runs and tests.
type Mock struct {
	Owner string
	Repo  string

	// Errors returned by the matching method when set
	DeployErr  error
	SecretsErr error
	MonitorErr error
	ReleaseErr error
	IssueErr   error

	// FailSecrets lists secret names that record an error result.
	FailSecrets map[string]bool

	// MonitorResult overrides the completed run Monitor returns.
	MonitorResult *MonitorResult

	mu       sync.Mutex
	calls    []string
	nextID   int64
	files    map[string]string
	secrets  map[string]string
	releases []ReleaseCall
	issues   []IssueCall
}

// ReleaseCall records one CreateRelease call.
type ReleaseCall struct {
	Version string
	Notes   string
}

// IssueCall records one CreateIssue call.
type IssueCall struct {
	Title  string
	Body   string
	Labels []string
}

// NewMock returns a Mock for owner/repo.
func NewMock(owner, repo string) *Mock {
	return &Mock{
		Owner:   owner,
		Repo:    repo,
		files:   make(map[string]string),
		secrets: make(map[string]string),
	}
}

func (m *Mock) record(call string) {
	m.calls = append(m.calls, call)
	if m.files == nil {
		m.files = make(map[string]string)
	}
	if m.secrets == nil {
		m.secrets = make(map[string]string)
	}
}

func (m *Mock) repositoryURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", m.Owner, m.Repo)
}

// Deploy stores files in memory and returns a new deployment id.
func (m *Mock) Deploy(ctx context.Context, projectRoot string, files map[string]string) (*DeployResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Deploy")

	if m.DeployErr != nil {
		return nil, m.DeployErr
	}

	m.nextID++
	result := &DeployResult{
		Status:            StatusSuccess,
		DeploymentID:      m.nextID,
		RepositoryURL:     m.repositoryURL(),
		Files:             make(map[string]FileResult, len(files)),
		WorkflowTriggered: true,
	}
	for name, content := range files {
		m.files[name] = content
		result.Files[name] = FileResult{Status: StatusSuccess}
	}
	return result, nil
}

// SetSecrets stores secrets in memory.
func (m *Mock) SetSecrets(ctx context.Context, secrets map[string]string) (map[string]SecretResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetSecrets")

	if m.SecretsErr != nil {
		return nil, m.SecretsErr
	}

	results := make(map[string]SecretResult, len(secrets))
	for name, value := range secrets {
		if m.FailSecrets[name] {
			results[name] = SecretResult{Status: StatusError, Error: "rejected by mock"}
			continue
		}
		m.secrets[name] = value
		results[name] = SecretResult{Status: StatusSuccess}
	}
	return results, nil
}

// Monitor returns MonitorResult, or a successful completed run.
func (m *Mock) Monitor(ctx context.Context, deploymentID int64, timeout time.Duration) (*MonitorResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Monitor")

	if m.MonitorErr != nil {
		return nil, m.MonitorErr
	}
	if m.MonitorResult != nil {
		result := *m.MonitorResult
		return &result, nil
	}
	return &MonitorResult{
		Status:     StatusCompleted,
		Conclusion: "success",
		RunURL:     fmt.Sprintf("%s/actions/runs/%d", m.repositoryURL(), deploymentID),
	}, nil
}

// CreateRelease records the release.
func (m *Mock) CreateRelease(ctx context.Context, version, notes string) (*ReleaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateRelease")

	if m.ReleaseErr != nil {
		return nil, m.ReleaseErr
	}
	if notes == "" {
		notes = DefaultReleaseBody(version)
	}
	m.releases = append(m.releases, ReleaseCall{Version: version, Notes: notes})

	return &ReleaseResult{
		Status:     StatusSuccess,
		ReleaseURL: fmt.Sprintf("%s/releases/tag/%s", m.repositoryURL(), TagName(version)),
		TagName:    TagName(version),
	}, nil
}

// CreateIssue records the issue.
func (m *Mock) CreateIssue(ctx context.Context, title, body string, labels []string) (*IssueResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateIssue")

	if m.IssueErr != nil {
		return nil, m.IssueErr
	}
	m.issues = append(m.issues, IssueCall{Title: title, Body: body, Labels: labels})
	number := len(m.issues)

	return &IssueResult{
		Status: StatusSuccess,
		Number: number,
		URL:    fmt.Sprintf("%s/issues/%d", m.repositoryURL(), number),
	}, nil
}

// Calls returns the method names called so far, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Files returns a copy of every deployed file.
func (m *Mock) Files() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.files)
}

// Secrets returns a copy of every stored secret.
func (m *Mock) Secrets() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.secrets)
}

// Releases returns the recorded releases.
func (m *Mock) Releases() []ReleaseCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReleaseCall(nil), m.releases...)
}

// Issues returns the recorded issues.
func (m *Mock) Issues() []IssueCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]IssueCall(nil), m.issues...)
}

var _ Tool = (*Mock)(nil)
var _ Tool = (*Client)(nil)
