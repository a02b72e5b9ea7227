package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"launchpad/internal/config"
	"launchpad/internal/history"
)

var (
	statusDB      string
	statusLimit   int
	statusProject string
)

var statusCmd = &cobra.Command{
	Use:   "status [deployment-id]",
	Short: "Show archived deployment history",
	Long: `Print archived deployment runs from the SQLite history database, newest first.

With a deployment id, print that run only. With --project, print the project's
latest run followed by its recent history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDB, "db", "", "Path to SQLite database (default from config)")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of runs to show")
	statusCmd.Flags().StringVar(&statusProject, "project", "", "Only show runs for this project")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", statusLimit)
	}

	dbPath := statusDB
	if dbPath == "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		dbPath = cfg.Server.DBPath
	}

	hist, err := history.NewHistory(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case len(args) == 1:
		record, err := hist.GetDeployment(ctx, args[0])
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("deployment %s not found", args[0])
		}
		return printRecords(out, []history.DeploymentRecord{*record})

	case statusProject != "":
		status, err := hist.GetProjectStatus(ctx, statusProject, statusLimit)
		if err != nil {
			return err
		}
		if status.LatestDeployment == nil {
			fmt.Fprintf(out, "No deployments recorded for %s\n", statusProject)
			return nil
		}
		latest := status.LatestDeployment
		fmt.Fprintf(out, "Project %s: latest %s (%s)\n\n", status.Project, latest.Status, latest.ID)
		return printRecords(out, status.RecentHistory)

	default:
		records, err := hist.GetRecentDeployments(ctx, statusLimit)
		if err != nil {
			return err
		}
		return printRecords(out, records)
	}
}

func printRecords(out io.Writer, records []history.DeploymentRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "No deployments recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROJECT\tSTATUS\tSTARTED\tDURATION\tFILES\tERROR")
	for _, r := range records {
		duration := "-"
		if r.DurationSeconds != nil {
			duration = fmt.Sprintf("%.1fs", *r.DurationSeconds)
		}
		errMsg := ""
		if r.ErrorMessage != nil {
			errMsg = *r.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Project, r.Status, r.StartedAt.Local().Format(time.DateTime), duration, r.FilesCount, errMsg)
	}
	return tw.Flush()
}
