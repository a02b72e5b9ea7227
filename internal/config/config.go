// Package config loads launchpad settings from launchpad.yaml, a .env file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"launchpad/internal/security"
	"launchpad/pkg/cmdutil"
	"launchpad/pkg/fileutil"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file searched for in the default locations.
const FileName = "launchpad.yaml"

const (
	DefaultBranch         = "main"
	DefaultWorkflow       = "deploy.yml"
	DefaultVersion        = "1.0.0"
	DefaultMonitorTimeout = 300
	DefaultPollInterval   = 10
	DefaultHistoryLimit   = 50
	MaxHistoryLimit       = 50
	DefaultCommandTimeout = 300
	DefaultMaxRejections  = 3
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 5000
)

// Config is the full launchpad configuration.
type Config struct {
	GitHub   GitHubConfig  `yaml:"github"`
	Features FeatureConfig `yaml:"features"`
	Deploy   DeployConfig  `yaml:"deploy"`
	Review   ReviewConfig  `yaml:"review"`
	LLM      LLMConfig     `yaml:"llm"`
	Server   ServerConfig  `yaml:"server"`
}

// GitHubConfig identifies the repository deployments are pushed to.
type GitHubConfig struct {
	Token    string `yaml:"token"`
	Owner    string `yaml:"owner"`
	Repo     string `yaml:"repo"`
	Branch   string `yaml:"branch"`
	Workflow string `yaml:"workflow"`
	BaseURL  string `yaml:"base_url"`
}

// FeatureConfig toggles the optional orchestration steps.
type FeatureConfig struct {
	Push    bool `yaml:"push"`
	CICD    bool `yaml:"cicd"`
	Issue   bool `yaml:"issue"`
	Release bool `yaml:"release"`
	Monitor bool `yaml:"monitor"`
}

// DeployConfig controls local preparation and the orchestrator's bookkeeping.
type DeployConfig struct {
	Version         string   `yaml:"version"`
	SecretEnv       []string `yaml:"secret_env"`
	ExpectedFiles   []string `yaml:"expected_files"`
	Commands        []any    `yaml:"commands"`
	AllowedCommands []string `yaml:"allowed_commands"`
	CommandTimeout  int      `yaml:"command_timeout"`
	MonitorTimeout  int      `yaml:"monitor_timeout"`
	PollInterval    int      `yaml:"poll_interval"`
	HistoryLimit    int      `yaml:"history_limit"`
}

// ReviewConfig controls the review loops.
type ReviewConfig struct {
	// MaxRejections is the forced-approval threshold of the code and security
	// loops. The design loop always approves after three rejections.
	MaxRejections int `yaml:"max_rejections"`
}

// LLMConfig selects the chat model used by review gates.
type LLMConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	OpenAIKey    string `yaml:"openai_api_key"`
	AnthropicKey string `yaml:"anthropic_api_key"`
	GoogleKey    string `yaml:"google_api_key"`
	GroqKey      string `yaml:"groq_api_key"`
	BaseURL      string `yaml:"base_url"`
	MaxRetries   int    `yaml:"max_retries"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	APISecret string  `yaml:"api_secret"`
	LogFile   string  `yaml:"log_file"`
	DBPath    string  `yaml:"db_path"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			Branch:   DefaultBranch,
			Workflow: DefaultWorkflow,
		},
		Features: FeatureConfig{
			Push: true,
			CICD: true,
		},
		Deploy: DeployConfig{
			Version:        DefaultVersion,
			SecretEnv:      []string{"DOCKER_USERNAME", "DOCKER_PASSWORD"},
			CommandTimeout: DefaultCommandTimeout,
			MonitorTimeout: DefaultMonitorTimeout,
			PollInterval:   DefaultPollInterval,
			HistoryLimit:   DefaultHistoryLimit,
		},
		Review: ReviewConfig{
			MaxRejections: DefaultMaxRejections,
		},
		LLM: LLMConfig{
			Provider:   "mock",
			MaxRetries: 2,
		},
		Server: ServerConfig{
			Host:      DefaultHost,
			Port:      DefaultPort,
			LogFile:   "./launchpad.log",
			DBPath:    "./launchpad.db",
			RateLimit: 1,
			RateBurst: 5,
		},
	}
}

// Load reads configPath (or the first launchpad.yaml in the default locations when empty),
// then a .env file in the working directory, then environment overrides.
// A missing config file is not an error: defaults and the environment still apply.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = fileutil.FindConfig(FileName)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		if cfg.hasCredentials() {
			if err := security.ValidateSecurePermissions(configPath); err != nil {
				return nil, fmt.Errorf("config file holds credentials: %w", err)
			}
		}
	}

	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg.ApplyEnv()

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(problems, "\n"))
	}

	return cfg, nil
}

// ApplyEnv overrides config values from environment variables.
func (c *Config) ApplyEnv() {
	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.GitHub.Owner, "GITHUB_OWNER")
	setString(&c.GitHub.Repo, "GITHUB_REPO")
	setString(&c.GitHub.BaseURL, "LAUNCHPAD_GITHUB_BASE_URL")

	setBool(&c.Features.Push, "ENABLE_GITHUB_PUSH")
	setBool(&c.Features.CICD, "ENABLE_CICD_PIPELINE")
	setBool(&c.Features.Issue, "CREATE_DEPLOYMENT_ISSUE")
	setBool(&c.Features.Release, "CREATE_GITHUB_RELEASE")
	setBool(&c.Features.Monitor, "MONITOR_WORKFLOW")

	setString(&c.LLM.Provider, "LAUNCHPAD_LLM_PROVIDER")
	setString(&c.LLM.Model, "LAUNCHPAD_LLM_MODEL")
	setString(&c.LLM.OpenAIKey, "OPENAI_API_KEY")
	setString(&c.LLM.AnthropicKey, "ANTHROPIC_API_KEY")
	setString(&c.LLM.GoogleKey, "GOOGLE_API_KEY")
	setString(&c.LLM.GroqKey, "GROQ_API_KEY")

	setString(&c.Server.Host, "LAUNCHPAD_HOST")
	setInt(&c.Server.Port, "LAUNCHPAD_PORT")
	setString(&c.Server.APISecret, "LAUNCHPAD_API_SECRET")
	setString(&c.Server.LogFile, "LAUNCHPAD_LOG_FILE")
	setString(&c.Server.DBPath, "LAUNCHPAD_DB_PATH")
}

// Validate returns every configuration problem found.
func (c *Config) Validate() []string {
	var errors []string

	if c.GitHub.Owner != "" || c.GitHub.Repo != "" {
		if err := security.ValidateRepository(c.GitHub.Owner, c.GitHub.Repo); err != nil {
			errors = append(errors, fmt.Sprintf("  - github: %v", err))
		}
	}
	if err := security.ValidateBranchName(c.GitHub.Branch); err != nil {
		errors = append(errors, fmt.Sprintf("  - github.branch: %v", err))
	}

	for _, name := range c.Deploy.SecretEnv {
		if err := security.ValidateSecretName(name); err != nil {
			errors = append(errors, fmt.Sprintf("  - deploy.secret_env: %v", err))
		}
	}
	for i, cmd := range c.Deploy.Commands {
		if _, err := cmdutil.ParseCommandList(cmd); err != nil {
			errors = append(errors, fmt.Sprintf("  - deploy.commands[%d]: %v", i, err))
		}
	}

	positive := []struct {
		name  string
		value int
	}{
		{"deploy.command_timeout", c.Deploy.CommandTimeout},
		{"deploy.monitor_timeout", c.Deploy.MonitorTimeout},
		{"deploy.poll_interval", c.Deploy.PollInterval},
		{"deploy.history_limit", c.Deploy.HistoryLimit},
		{"review.max_rejections", c.Review.MaxRejections},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errors = append(errors, fmt.Sprintf("  - %s must be a positive integer, got %d", p.name, p.value))
		}
	}

	if c.Deploy.HistoryLimit > MaxHistoryLimit {
		errors = append(errors, fmt.Sprintf("  - deploy.history_limit cannot exceed %d, got %d", MaxHistoryLimit, c.Deploy.HistoryLimit))
	}

	if c.LLM.MaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("  - llm.max_retries cannot be negative, got %d", c.LLM.MaxRetries))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - server.port out of range: %d", c.Server.Port))
	}
	if c.Server.APISecret != "" {
		if err := security.ValidateSecret(c.Server.APISecret); err != nil {
			errors = append(errors, fmt.Sprintf("  - server.api_secret: %v", err))
		}
	}

	switch c.LLM.Provider {
	case "mock":
	case "openai":
		if c.LLM.OpenAIKey == "" {
			errors = append(errors, "  - llm: provider openai requires OPENAI_API_KEY")
		}
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			errors = append(errors, "  - llm: provider anthropic requires ANTHROPIC_API_KEY")
		}
	case "google":
		if c.LLM.GoogleKey == "" {
			errors = append(errors, "  - llm: provider google requires GOOGLE_API_KEY")
		}
	case "groq":
		if c.LLM.GroqKey == "" {
			errors = append(errors, "  - llm: provider groq requires GROQ_API_KEY")
		}
	default:
		errors = append(errors, fmt.Sprintf("  - llm: unknown provider %q", c.LLM.Provider))
	}

	return errors
}

// hasCredentials reports whether any token or API key is set.
func (c *Config) hasCredentials() bool {
	for _, v := range []string{
		c.GitHub.Token, c.Server.APISecret,
		c.LLM.OpenAIKey, c.LLM.AnthropicKey, c.LLM.GoogleKey, c.LLM.GroqKey,
	} {
		if v != "" {
			return true
		}
	}
	return false
}

// GitHubEnabled reports whether pushing to GitHub is switched on and credentials are present.
func (c *Config) GitHubEnabled() bool {
	return c.Features.Push && c.GitHub.Token != "" && c.GitHub.Owner != "" && c.GitHub.Repo != ""
}

// MonitorTimeout returns the workflow monitoring timeout.
func (c *Config) MonitorTimeout() time.Duration {
	return time.Duration(c.Deploy.MonitorTimeout) * time.Second
}

// PollInterval returns the workflow polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Deploy.PollInterval) * time.Second
}

// CommandTimeout returns the timeout for each local command.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Deploy.CommandTimeout) * time.Second
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = strings.ToLower(value) == "true"
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*dst = n
		}
	}
}
