package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"launchpad/internal/config"
	"launchpad/internal/llm"
	"launchpad/internal/review"
)

var (
	reviewState string
	reviewGate  string
	reviewWrite bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run one review gate over a workflow state",
	Long: `Send the design or code in a workflow state file to the configured model and
print the feedback, the rejection count and the next workflow node.

Gates: design, code, security.`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewState, "state", "s", "", "Path to workflow state JSON (required)")
	reviewCmd.Flags().StringVarP(&reviewGate, "gate", "g", "design", "Review gate: design, code or security")
	reviewCmd.Flags().BoolVarP(&reviewWrite, "write", "w", false, "Write the updated state back to the file")
	_ = reviewCmd.MarkFlagRequired("state")
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, _, err := setupLogging("", os.Stderr)
	if err != nil {
		return err
	}

	gate := review.GateByName(reviewGate, cfg.Review.MaxRejections)
	if gate == nil {
		return fmt.Errorf("unknown review gate %q", reviewGate)
	}

	st, err := readState(reviewState)
	if err != nil {
		return err
	}

	model, err := llm.New(cmd.Context(), cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}
	defer llm.Close(model)

	next, err := review.NewReviewer(model, logger, nil).Run(cmd.Context(), gate, st)
	if err != nil {
		return err
	}

	if reviewWrite {
		f, err := os.Create(reviewState)
		if err != nil {
			return fmt.Errorf("failed to write state file: %w", err)
		}
		defer f.Close()
		if err := printJSON(f, st); err != nil {
			return fmt.Errorf("failed to write state file: %w", err)
		}
	}

	return printJSON(cmd.OutOrStdout(), map[string]any{
		"gate":       gate.Name,
		"feedback":   *gate.Feedback(st),
		"rejections": *gate.Counter(st),
		"next":       next,
	})
}
