package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"launchpad/internal/config"
	"launchpad/internal/githubtool"
	"launchpad/internal/orchestrator"
	"launchpad/internal/security"
	"launchpad/internal/state"
	"launchpad/pkg/fileutil"
)

var (
	deployState     string
	deployGitHub    bool
	deployDryRun    bool
	deployLLMOutput string
	deployVersion   string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run one deployment and print the result",
	Long: `Run one deployment for a workflow state file and print the result envelope as JSON.

With --llm-output, fenced file blocks in a model reply are parsed into the generated
deployment files before the run. With --dry-run, GitHub calls go to an in-memory mock.`,
	Example: `  launchpad deploy --state state.json
  launchpad deploy --state state.json --github --dry-run
  launchpad deploy --state state.json --llm-output reply.md`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&deployState, "state", "s", "", "Path to workflow state JSON (required)")
	deployCmd.Flags().BoolVar(&deployGitHub, "github", false, "Push to GitHub and run the enabled GitHub steps")
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "Use an in-memory GitHub mock")
	deployCmd.Flags().StringVar(&deployLLMOutput, "llm-output", "", "Model reply with fenced deployment files")
	deployCmd.Flags().StringVar(&deployVersion, "version", "", "Release version when the state has none")
	_ = deployCmd.MarkFlagRequired("state")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, logFile, err := setupLogging("", os.Stderr)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	st, err := readState(deployState)
	if err != nil {
		return err
	}
	if deployLLMOutput != "" {
		if err := applyLLMOutput(st, deployLLMOutput); err != nil {
			return err
		}
	}

	opts, err := orchestrator.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.EnableGitHub = deployGitHub
	if deployVersion != "" {
		opts.Version = deployVersion
	}

	var tool githubtool.Tool
	switch {
	case !deployGitHub:
	case deployDryRun:
		owner, repo := cfg.GitHub.Owner, cfg.GitHub.Repo
		if owner == "" || repo == "" {
			owner, repo = "dry-run", projectNameOrDefault(st)
		}
		tool = githubtool.NewMock(owner, repo)
	default:
		tool, err = newGitHubTool(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create GitHub client: %w", err)
		}
		if tool == nil {
			return fmt.Errorf("--github requires GITHUB_TOKEN, GITHUB_OWNER and GITHUB_REPO")
		}
	}

	env, err := orchestrator.New(tool, logger).Orchestrate(cmd.Context(), st, opts)
	if err != nil {
		return err
	}

	if err := printJSON(cmd.OutOrStdout(), env); err != nil {
		return err
	}
	if env.Status == orchestrator.StatusFailed {
		return fmt.Errorf("deployment failed: %s", env.Error)
	}
	return nil
}

// applyLLMOutput merges the fenced file blocks of a model reply into the state's deployment files.
func applyLLMOutput(st *state.State, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read model output: %w", err)
	}

	files := fileutil.ParseFileBlocks(string(data), security.IsValidFileName)
	if len(files) == 0 {
		return fmt.Errorf("no deployment files found in %s", path)
	}

	if st.GeneratedDeploymentFiles == nil {
		st.GeneratedDeploymentFiles = make(map[string]string, len(files))
	}
	for name, content := range files {
		st.GeneratedDeploymentFiles[name] = content
	}
	return nil
}

func projectNameOrDefault(st *state.State) string {
	if st.ProjectName != "" {
		return st.ProjectName
	}
	return "project"
}
