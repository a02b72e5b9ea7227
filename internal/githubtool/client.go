package githubtool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	uploadMessage         = "Automated deployment files upload"
	deploymentEnvironment = "production"
	deploymentDescription = "Automated deployment via launchpad"
	defaultPollInterval   = 10 * time.Second
	monitorRunCount       = 5
	secretConcurrency     = 4
)

// Options configures a Client.
type Options struct {
	Token    string
	Owner    string
	Repo     string
	Branch   string
	Workflow string

	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string

	// TriggerWorkflow dispatches the deploy workflow after each deployment.
	TriggerWorkflow bool

	PollInterval time.Duration
	Logger       *slog.Logger
}

// Client implements Tool against the GitHub REST API.
type Client struct {
	gh       *github.Client
	owner    string
	repo     string
	branch   string
	workflow string

	triggerWorkflow bool
	pollInterval    time.Duration
	logger          *slog.Logger
}

// NewClient creates an authenticated GitHub client.
// Returns ErrNotConfigured when the token, owner or repository is missing.
func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" || opts.Owner == "" || opts.Repo == "" {
		return nil, ErrNotConfigured
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: opts.Token},
	)
	gh := github.NewClient(oauth2.NewClient(context.Background(), ts))

	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		gh.BaseURL = base
	}

	c := &Client{
		gh:              gh,
		owner:           opts.Owner,
		repo:            opts.Repo,
		branch:          opts.Branch,
		workflow:        opts.Workflow,
		triggerWorkflow: opts.TriggerWorkflow,
		pollInterval:    opts.PollInterval,
		logger:          opts.Logger,
	}
	if c.branch == "" {
		c.branch = "main"
	}
	if c.workflow == "" {
		c.workflow = "deploy.yml"
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// RepositoryURL returns the public URL of the target repository.
func (c *Client) RepositoryURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", c.owner, c.repo)
}

// Deploy uploads files, records a production deployment around the workflow dispatch and
// marks it successful. Upload and dispatch failures are recorded in the result; a failed
// deployment creation is returned as an error.
func (c *Client) Deploy(ctx context.Context, projectRoot string, files map[string]string) (*DeployResult, error) {
	c.logger.Info("github_deploy_started", "repo", c.owner+"/"+c.repo, "project_root", projectRoot, "files", len(files))

	result := &DeployResult{
		Status:        StatusSuccess,
		RepositoryURL: c.RepositoryURL(),
		Files:         make(map[string]FileResult, len(files)),
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fr, err := c.uploadFile(ctx, name, files[name])
		if err != nil {
			c.logger.Error("file_upload_failed", "file", name, "error", err)
			result.Files[name] = FileResult{Status: StatusError, Error: err.Error()}
			continue
		}
		c.logger.Info("file_uploaded", "file", name)
		result.Files[name] = *fr
	}

	deployment, _, err := c.gh.Repositories.CreateDeployment(ctx, c.owner, c.repo, &github.DeploymentRequest{
		Ref:              github.String(c.branch),
		Environment:      github.String(deploymentEnvironment),
		Description:      github.String(deploymentDescription),
		AutoMerge:        github.Bool(false),
		RequiredContexts: &[]string{},
	})
	if err != nil {
		return nil, fmt.Errorf("creating deployment: %w", err)
	}
	result.DeploymentID = deployment.GetID()

	if err := c.setDeploymentStatus(ctx, result.DeploymentID, "pending", "Deployment in progress"); err != nil {
		return nil, err
	}

	if c.triggerWorkflow {
		if err := c.dispatchWorkflow(ctx); err != nil {
			c.logger.Warn("workflow_trigger_failed", "workflow", c.workflow, "error", err)
			result.WorkflowError = err.Error()
		} else {
			c.logger.Info("workflow_triggered", "workflow", c.workflow)
			result.WorkflowTriggered = true
		}
	}

	if err := c.setDeploymentStatus(ctx, result.DeploymentID, "success", "Deployment completed successfully"); err != nil {
		return nil, err
	}

	return result, nil
}

// uploadFile creates or updates one file on the configured branch.
// A 404 from the contents API means the file is new.
func (c *Client) uploadFile(ctx context.Context, path, content string) (*FileResult, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(uploadMessage),
		Content: []byte(content),
		Branch:  github.String(c.branch),
	}

	existing, _, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, &github.RepositoryContentGetOptions{Ref: c.branch})
	switch {
	case err == nil && existing != nil:
		opts.SHA = github.String(existing.GetSHA())
	case resp != nil && resp.StatusCode == http.StatusNotFound:
	case err != nil:
		return nil, fmt.Errorf("checking existing file: %w", err)
	}

	var res *github.RepositoryContentResponse
	if opts.SHA != nil {
		res, _, err = c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
	} else {
		res, _, err = c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
	}
	if err != nil {
		return nil, err
	}

	return &FileResult{
		Status: StatusSuccess,
		URL:    res.GetContent().GetHTMLURL(),
		SHA:    res.Commit.GetSHA(),
	}, nil
}

func (c *Client) setDeploymentStatus(ctx context.Context, id int64, state, description string) error {
	_, _, err := c.gh.Repositories.CreateDeploymentStatus(ctx, c.owner, c.repo, id, &github.DeploymentStatusRequest{
		State:       github.String(state),
		Description: github.String(description),
		Environment: github.String(deploymentEnvironment),
	})
	if err != nil {
		return fmt.Errorf("setting deployment status %s: %w", state, err)
	}
	return nil
}

func (c *Client) dispatchWorkflow(ctx context.Context) error {
	_, err := c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, c.owner, c.repo, c.workflow, github.CreateWorkflowDispatchEventRequest{
		Ref: c.branch,
	})
	return err
}

// SetSecrets stores each secret as an Actions repository secret, at most
// secretConcurrency at a time. Failures are recorded per secret.
func (c *Client) SetSecrets(ctx context.Context, secrets map[string]string) (map[string]SecretResult, error) {
	results := make(map[string]SecretResult, len(secrets))
	if len(secrets) == 0 {
		return results, nil
	}

	key, _, err := c.gh.Actions.GetRepoPublicKey(ctx, c.owner, c.repo)
	if err != nil {
		for name := range secrets {
			results[name] = SecretResult{Status: StatusError, Error: fmt.Sprintf("fetching repository public key: %v", err)}
		}
		return results, nil
	}

	var mu sync.Mutex
	record := func(name string, res SecretResult) {
		mu.Lock()
		results[name] = res
		mu.Unlock()
	}

	var eg errgroup.Group
	eg.SetLimit(secretConcurrency)
	for name, value := range secrets {
		eg.Go(func() error {
			sealed, err := SealSecret(key.GetKey(), value)
			if err != nil {
				record(name, SecretResult{Status: StatusError, Error: err.Error()})
				return nil
			}

			_, err = c.gh.Actions.CreateOrUpdateRepoSecret(ctx, c.owner, c.repo, &github.EncryptedSecret{
				Name:           name,
				KeyID:          key.GetKeyID(),
				EncryptedValue: sealed,
			})
			if err != nil {
				c.logger.Error("secret_create_failed", "secret", name, "error", err)
				record(name, SecretResult{Status: StatusError, Error: err.Error()})
				return nil
			}

			c.logger.Info("secret_created", "secret", name)
			record(name, SecretResult{Status: StatusSuccess})
			return nil
		})
	}
	_ = eg.Wait()

	return results, nil
}

// Monitor polls the latest runs of the deploy workflow until one completes, the timeout
// elapses or ctx is done. Polling errors are logged and polling continues.
func (c *Client) Monitor(ctx context.Context, deploymentID int64, timeout time.Duration) (*MonitorResult, error) {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		runs, _, err := c.gh.Actions.ListWorkflowRunsByFileName(ctx, c.owner, c.repo, c.workflow, &github.ListWorkflowRunsOptions{
			ListOptions: github.ListOptions{PerPage: monitorRunCount},
		})
		if err != nil {
			c.logger.Error("workflow_poll_failed", "deployment_id", deploymentID, "error", err)
		} else if len(runs.WorkflowRuns) > 0 {
			latest := runs.WorkflowRuns[0]
			if latest.GetStatus() == StatusCompleted {
				return &MonitorResult{
					Status:     StatusCompleted,
					Conclusion: latest.GetConclusion(),
					RunURL:     latest.GetHTMLURL(),
					Duration:   time.Since(start).Seconds(),
				}, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return timeoutResult(timeout), nil
		}

		wait := min(c.pollInterval, remaining)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return timeoutResult(timeout), nil
		case <-timer.C:
		}
	}
}

// CreateRelease publishes release v<version>.
func (c *Client) CreateRelease(ctx context.Context, version, notes string) (*ReleaseResult, error) {
	if notes == "" {
		notes = DefaultReleaseBody(version)
	}

	release, _, err := c.gh.Repositories.CreateRelease(ctx, c.owner, c.repo, &github.RepositoryRelease{
		TagName:    github.String(TagName(version)),
		Name:       github.String(ReleaseName(version)),
		Body:       github.String(notes),
		Draft:      github.Bool(false),
		Prerelease: github.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("creating release: %w", err)
	}

	return &ReleaseResult{
		Status:     StatusSuccess,
		ReleaseURL: release.GetHTMLURL(),
		TagName:    release.GetTagName(),
	}, nil
}

// CreateIssue opens an issue.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (*IssueResult, error) {
	if labels == nil {
		labels = []string{}
	}
	issue, _, err := c.gh.Issues.Create(ctx, c.owner, c.repo, &github.IssueRequest{
		Title:  github.String(title),
		Body:   github.String(body),
		Labels: &labels,
	})
	if err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}

	return &IssueResult{
		Status: StatusSuccess,
		Number: issue.GetNumber(),
		URL:    issue.GetHTMLURL(),
	}, nil
}
