package history

import "time"

// DeploymentRecord is one archived orchestration run
type DeploymentRecord struct {
	ID              string // envelope id
	Project         string
	Status          string // success, partial, failed
	StartedAt       time.Time
	CompletedAt     *time.Time // nullable
	DurationSeconds *float64   // nullable
	FilesCount      int
	RepositoryURL   *string // nullable
	ReleaseURL      *string // nullable
	ErrorMessage    *string // nullable
}

// ProjectStatus is the latest archived state of a project
type ProjectStatus struct {
	Project          string             `json:"project"`
	LatestDeployment *DeploymentRecord  `json:"latest_deployment,omitempty"`
	RecentHistory    []DeploymentRecord `json:"recent_history"`
}
