// Package state holds the workflow state passed between the review and deployment nodes.
package state

import "launchpad/pkg/fileutil"

// Node labels returned by review gates
const (
	NodeDesign         = "Design"
	NodeGenerateCode   = "Generate_Code"
	NodeFixCode        = "Fix_Code"
	NodeSecurityReview = "Security_Review"
	NodeFixSecurity    = "Code_After_Security"
	NodeWriteTestCases = "Write_Test_Cases"
)

// State is the shared record a workflow run mutates as it moves between nodes.
// The deployment orchestrator writes DeploymentStatus and DeploymentResults back into it.
type State struct {
	Requirements string `json:"requirements"`
	Story        string `json:"story,omitempty"`
	Design       string `json:"design,omitempty"`

	DesignFeedback   string            `json:"design_feedback,omitempty"`
	GeneratedCode    map[string]string `json:"generated_code,omitempty"`
	CodeFeedback     string            `json:"code_feedback,omitempty"`
	SecurityFeedback string            `json:"security_feedback,omitempty"`

	ProjectFolder            string            `json:"project_folder,omitempty"`
	ProjectName              string            `json:"project_name,omitempty"`
	Version                  string            `json:"version,omitempty"`
	GeneratedDeploymentFiles map[string]string `json:"generated_deployment_files,omitempty"`

	DesignRejections   int `json:"number_of_rejections_for_design"`
	CodeRejections     int `json:"number_of_rejections_for_code"`
	SecurityRejections int `json:"number_of_rejections_for_security"`

	DeploymentStatus  string `json:"deployment_status,omitempty"`
	DeploymentResults any    `json:"deployment_results,omitempty"`
}

// DeploymentFileNames returns the generated deployment file names in sorted order
func (s *State) DeploymentFileNames() []string {
	return fileutil.SortedNames(s.GeneratedDeploymentFiles)
}
