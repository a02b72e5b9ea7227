package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"launchpad/internal/orchestrator"
	"launchpad/internal/review"
	"launchpad/internal/security"
	"launchpad/internal/state"
)

// MaxPayloadBytes bounds request bodies.
const MaxPayloadBytes = 5_000_000

// optionOverrides lets a request switch individual steps on or off.
type optionOverrides struct {
	EnableGitHub  *bool  `json:"github,omitempty"`
	CreateIssue   *bool  `json:"issue,omitempty"`
	Monitor       *bool  `json:"monitor,omitempty"`
	CreateRelease *bool  `json:"release,omitempty"`
	Version       string `json:"version,omitempty"`
}

type deployRequest struct {
	state.State
	Options *optionOverrides `json:"options,omitempty"`
}

func (s *Server) options(o *optionOverrides) orchestrator.Options {
	opts := s.Config.Options
	if o == nil {
		return opts
	}
	if o.EnableGitHub != nil {
		opts.EnableGitHub = *o.EnableGitHub
	}
	if o.CreateIssue != nil {
		opts.CreateIssue = *o.CreateIssue
	}
	if o.Monitor != nil {
		opts.Monitor = *o.Monitor
	}
	if o.CreateRelease != nil {
		opts.CreateRelease = *o.CreateRelease
	}
	if o.Version != "" {
		opts.Version = o.Version
	}
	return opts
}

// decodeJSON reads a JSON body into v, writing the error response itself on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength > MaxPayloadBytes {
		respondError(w, s.Logger, http.StatusRequestEntityTooLarge, "Payload too large")
		return false
	}

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		respondError(w, s.Logger, http.StatusUnsupportedMediaType, "Invalid content type")
		return false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
	if err != nil {
		respondError(w, s.Logger, http.StatusBadRequest, "Failed to read payload")
		return false
	}
	if len(body) > MaxPayloadBytes {
		respondError(w, s.Logger, http.StatusRequestEntityTooLarge, "Payload too large")
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		respondError(w, s.Logger, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

// lockKeys returns the keys guarding a deployment: the project name when set
// and the absolute project folder.
func lockKeys(req *deployRequest) ([]string, error) {
	folder, err := filepath.Abs(req.ProjectFolder)
	if err != nil {
		return nil, err
	}
	keys := []string{"folder:" + folder}
	if req.ProjectName != "" {
		keys = append([]string{"name:" + req.ProjectName}, keys...)
	}
	return keys, nil
}

// displayName is the project label used in responses and logs.
func (req *deployRequest) displayName() string {
	if req.ProjectName != "" {
		return req.ProjectName
	}
	return req.ProjectFolder
}

// prepareDeploy validates the request and takes the project locks.
// The caller must release the returned keys with UnlockAll.
func (s *Server) prepareDeploy(w http.ResponseWriter, r *http.Request) (*deployRequest, []string, bool) {
	var req deployRequest
	if !s.decodeJSON(w, r, &req) {
		return nil, nil, false
	}

	if req.ProjectFolder == "" {
		respondError(w, s.Logger, http.StatusBadRequest, orchestrator.ErrMissingProjectFolder.Error())
		return nil, nil, false
	}
	if req.ProjectName != "" {
		if err := security.ValidateProjectName(req.ProjectName); err != nil {
			respondError(w, s.Logger, http.StatusBadRequest, "Invalid project name: "+err.Error())
			return nil, nil, false
		}
	}

	keys, err := lockKeys(&req)
	if err != nil {
		respondError(w, s.Logger, http.StatusBadRequest, "Invalid project folder: "+err.Error())
		return nil, nil, false
	}
	if !s.LockManager.TryLockAll(keys...) {
		s.Logger.Warn("deployment_rejected_in_progress", "project", req.displayName())
		respondError(w, s.Logger, http.StatusTooManyRequests, "Deployment already in progress")
		return nil, nil, false
	}

	return &req, keys, true
}

// HandleDeploy starts an orchestration in the background and responds 202.
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	req, keys, ok := s.prepareDeploy(w, r)
	if !ok {
		return
	}

	opts := s.options(req.Options)
	opts.DeploymentID = uuid.NewString()
	st := req.State
	ctx := context.WithoutCancel(r.Context())

	s.deployWg.Add(1)
	go func() {
		defer s.deployWg.Done()
		defer s.LockManager.UnlockAll(keys...)
		if _, err := s.Orchestrator.Orchestrate(ctx, &st, opts); err != nil {
			s.Logger.Error("deployment_rejected", "deployment_id", opts.DeploymentID, "error", err)
		}
	}()

	respondJSON(w, s.Logger, http.StatusAccepted, map[string]string{
		"message": "Deployment accepted",
		"id":      opts.DeploymentID,
		"project": req.displayName(),
	})
}

// HandleDeploySync runs an orchestration and returns its envelope.
func (s *Server) HandleDeploySync(w http.ResponseWriter, r *http.Request) {
	req, keys, ok := s.prepareDeploy(w, r)
	if !ok {
		return
	}
	defer s.LockManager.UnlockAll(keys...)

	env, err := s.Orchestrator.Orchestrate(r.Context(), &req.State, s.options(req.Options))
	if err != nil {
		var verr *orchestrator.ValidationError
		if errors.As(err, &verr) {
			respondError(w, s.Logger, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, s.Logger, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, s.Logger, http.StatusOK, env)
}

// HandleHealth reports liveness and whether GitHub is configured.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	overview := s.Orchestrator.Overview()
	respondJSON(w, s.Logger, http.StatusOK, map[string]any{
		"status":                     "ok",
		"github_integration_enabled": overview.GitHubEnabled,
		"tracked_deployments":        overview.TotalDeployments,
		"review_enabled":             s.Reviewer != nil,
	})
}

// HandleOverview returns every tracked deployment and the history.
func (s *Server) HandleOverview(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.Logger, http.StatusOK, s.Orchestrator.Overview())
}

// HandleStatus returns one tracked deployment.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	active, err := s.Orchestrator.Status(id)
	if err != nil {
		respondError(w, s.Logger, http.StatusNotFound, "Deployment not found")
		return
	}

	respondJSON(w, s.Logger, http.StatusOK, map[string]any{
		"id":         id,
		"deployment": active,
	})
}

// HandleHistory returns the most recent history entries.
func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := orchestrator.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, s.Logger, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries := s.Orchestrator.History(limit)
	respondJSON(w, s.Logger, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// HandleCleanup removes finished deployments from the active table.
func (s *Server) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.Logger, http.StatusOK, map[string]int{
		"removed": s.Orchestrator.CleanupCompleted(),
	})
}

// HandleReview runs one review gate over the posted state.
func (s *Server) HandleReview(w http.ResponseWriter, r *http.Request) {
	if s.Reviewer == nil {
		respondError(w, s.Logger, http.StatusServiceUnavailable, "Review is not configured")
		return
	}

	gate := review.GateByName(chi.URLParam(r, "gate"), s.Config.MaxRejections)
	if gate == nil {
		respondError(w, s.Logger, http.StatusNotFound, "Unknown review gate")
		return
	}

	var st state.State
	if !s.decodeJSON(w, r, &st) {
		return
	}

	next, err := s.Reviewer.Run(r.Context(), gate, &st)
	if err != nil {
		s.Logger.Error("review_request_failed", "gate", gate.Name, "error", err)
		respondError(w, s.Logger, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, s.Logger, http.StatusOK, map[string]any{
		"gate":       gate.Name,
		"feedback":   *gate.Feedback(&st),
		"rejections": *gate.Counter(&st),
		"next":       next,
		"state":      st,
	})
}

func respondJSON(w http.ResponseWriter, logger *slog.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("json_encode_failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, logger *slog.Logger, statusCode int, message string) {
	respondJSON(w, logger, statusCode, map[string]string{"error": message})
}
