package orchestrator

import (
	"fmt"
	"time"

	"launchpad/internal/state"
	"launchpad/pkg/templates"
)

// DefaultProjectName is used when the state carries no project name.
const DefaultProjectName = "Generated Project"

const summaryRunes = 200

type releaseNotesData struct {
	ProjectName string
	Summary     string
	Files       []string
}

type issueData struct {
	ProjectName string
	Version     string
	Timestamp   string
	Files       []string
}

func projectName(st *state.State) string {
	if st.ProjectName == "" {
		return DefaultProjectName
	}
	return st.ProjectName
}

// designSummary keeps the first 200 runes of the design and marks it with "..."
// once that length is reached.
func designSummary(design string) string {
	runes := []rune(design)
	if len(runes) < summaryRunes {
		return design
	}
	return string(runes[:summaryRunes]) + "..."
}

// FormatReleaseNotes renders the Markdown release notes for st.
func FormatReleaseNotes(st *state.State) (string, error) {
	return templates.Render(templates.ReleaseNotes, releaseNotesData{
		ProjectName: projectName(st),
		Summary:     designSummary(st.Design),
		Files:       st.DeploymentFileNames(),
	})
}

// IssueTitle returns the deployment tracking issue title.
func IssueTitle(name, version string) string {
	return fmt.Sprintf("🚀 Deployment v%s: %s", version, name)
}

// IssueLabels returns the labels put on a deployment tracking issue.
func IssueLabels(version string) []string {
	return []string{"deployment", "automation", "v" + version}
}

// FormatIssueBody renders the deployment tracking issue body.
func FormatIssueBody(st *state.State, version string, now time.Time) (string, error) {
	return templates.Render(templates.DeploymentIssue, issueData{
		ProjectName: projectName(st),
		Version:     version,
		Timestamp:   now.Format(time.DateTime),
		Files:       st.DeploymentFileNames(),
	})
}
