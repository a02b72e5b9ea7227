// Package history archives orchestration results in SQLite so they survive restarts.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History stores deployment records in SQLite
type History struct {
	db *sql.DB
}

const selectColumns = `
	SELECT deployment_id, project, status, started_at, completed_at,
	       duration_seconds, files_count, repository_url, release_url, error_message
	FROM deployments`

// NewHistory opens (or creates) the archive at dbPath
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			deployment_id TEXT NOT NULL UNIQUE,
			project TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			files_count INTEGER NOT NULL DEFAULT 0,
			repository_url TEXT,
			release_url TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_project_seq
		ON deployments(project, seq DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordDeployment inserts a record, replacing any earlier record with the same id
func (h *History) RecordDeployment(ctx context.Context, record *DeploymentRecord) error {
	if record.ID == "" {
		return fmt.Errorf("deployment record has no id")
	}

	startedAt := record.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var completedAt *string
	if record.CompletedAt != nil {
		formatted := record.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &formatted
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO deployments
		(deployment_id, project, status, started_at, completed_at,
		 duration_seconds, files_count, repository_url, release_url, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(deployment_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			duration_seconds = excluded.duration_seconds,
			files_count = excluded.files_count,
			repository_url = excluded.repository_url,
			release_url = excluded.release_url,
			error_message = excluded.error_message
	`,
		record.ID,
		record.Project,
		record.Status,
		startedAt.UTC().Format(time.RFC3339),
		completedAt,
		record.DurationSeconds,
		record.FilesCount,
		record.RepositoryURL,
		record.ReleaseURL,
		record.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deployment record: %w", err)
	}

	return nil
}

// GetDeployment returns the record with the given id, or nil if there is none
func (h *History) GetDeployment(ctx context.Context, id string) (*DeploymentRecord, error) {
	row := h.db.QueryRowContext(ctx, selectColumns+` WHERE deployment_id = ?`, id)

	record, err := scanDeploymentRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment: %w", err)
	}
	return record, nil
}

// GetRecentDeployments returns up to limit records across all projects, newest first
func (h *History) GetRecentDeployments(ctx context.Context, limit int) ([]DeploymentRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+` ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent deployments: %w", err)
	}
	return collect(rows)
}

// GetDeploymentHistory returns up to limit records for a project, newest first
func (h *History) GetDeploymentHistory(ctx context.Context, project string, limit int) ([]DeploymentRecord, error) {
	rows, err := h.db.QueryContext(ctx, selectColumns+` WHERE project = ? ORDER BY seq DESC LIMIT ?`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment history: %w", err)
	}
	return collect(rows)
}

// GetProjectStatus returns the latest record and recent history for a project
func (h *History) GetProjectStatus(ctx context.Context, project string, limit int) (*ProjectStatus, error) {
	records, err := h.GetDeploymentHistory(ctx, project, limit)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{Project: project, RecentHistory: records}
	if len(records) > 0 {
		latest := records[0]
		status.LatestDeployment = &latest
	}
	if status.RecentHistory == nil {
		status.RecentHistory = []DeploymentRecord{}
	}
	return status, nil
}

func collect(rows *sql.Rows) ([]DeploymentRecord, error) {
	defer rows.Close()

	var records []DeploymentRecord
	for rows.Next() {
		record, err := scanDeploymentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanDeploymentRecord(s scanner) (*DeploymentRecord, error) {
	var record DeploymentRecord
	var startedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&record.ID,
		&record.Project,
		&record.Status,
		&startedAtStr,
		&completedAtStr,
		&record.DurationSeconds,
		&record.FilesCount,
		&record.RepositoryURL,
		&record.ReleaseURL,
		&record.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	return &record, nil
}
