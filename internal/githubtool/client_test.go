package githubtool

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/nacl/box"
)

// fakeGitHub is a minimal GitHub REST API backed by httptest.
type fakeGitHub struct {
	t *testing.T

	mu             sync.Mutex
	existing       map[string]string // path -> sha
	puts           map[string]map[string]any
	statuses       []string
	secrets        map[string]string
	dispatchStatus int
	runStatus      func(call int) string
	runCalls       atomic.Int32
	publicKey      *[32]byte
	privateKey     *[32]byte
	release        map[string]any
	issue          map[string]any
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *Client) {
	t.Helper()

	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	f := &fakeGitHub{
		t:              t,
		existing:       make(map[string]string),
		puts:           make(map[string]map[string]any),
		secrets:        make(map[string]string),
		dispatchStatus: http.StatusNoContent,
		runStatus:      func(int) string { return "completed" },
		publicKey:      pub,
		privateKey:     priv,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/shop/contents/{path...}", f.getContents)
	mux.HandleFunc("PUT /repos/octo/shop/contents/{path...}", f.putContents)
	mux.HandleFunc("POST /repos/octo/shop/deployments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": 42})
	})
	mux.HandleFunc("POST /repos/octo/shop/deployments/42/statuses", func(w http.ResponseWriter, r *http.Request) {
		body := decode(t, r)
		f.mu.Lock()
		f.statuses = append(f.statuses, body["state"].(string))
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{"id": 1, "state": body["state"]})
	})
	mux.HandleFunc("POST /repos/octo/shop/actions/workflows/deploy.yml/dispatches", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.dispatchStatus
		f.mu.Unlock()
		if status != http.StatusNoContent {
			writeJSON(w, status, map[string]any{"message": "Not Found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /repos/octo/shop/actions/workflows/deploy.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		call := int(f.runCalls.Add(1))
		f.mu.Lock()
		status := f.runStatus(call)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"total_count": 1,
			"workflow_runs": []map[string]any{{
				"id":         7,
				"status":     status,
				"conclusion": "success",
				"html_url":   "https://github.com/octo/shop/actions/runs/7",
			}},
		})
	})
	mux.HandleFunc("GET /repos/octo/shop/actions/secrets/public-key", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"key_id": "key-1",
			"key":    base64.StdEncoding.EncodeToString(f.publicKey[:]),
		})
	})
	mux.HandleFunc("PUT /repos/octo/shop/actions/secrets/{name}", func(w http.ResponseWriter, r *http.Request) {
		body := decode(t, r)
		if body["key_id"] != "key-1" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "bad key id"})
			return
		}
		f.mu.Lock()
		f.secrets[r.PathValue("name")] = body["encrypted_value"].(string)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /repos/octo/shop/releases", func(w http.ResponseWriter, r *http.Request) {
		body := decode(t, r)
		f.mu.Lock()
		f.release = body
		f.mu.Unlock()
		tag, _ := body["tag_name"].(string)
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":       1,
			"tag_name": tag,
			"html_url": "https://github.com/octo/shop/releases/tag/" + tag,
		})
	})
	mux.HandleFunc("POST /repos/octo/shop/issues", func(w http.ResponseWriter, r *http.Request) {
		body := decode(t, r)
		f.mu.Lock()
		f.issue = body
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]any{
			"number":   12,
			"html_url": "https://github.com/octo/shop/issues/12",
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{
		Token:           "ghp_test",
		Owner:           "octo",
		Repo:            "shop",
		BaseURL:         srv.URL,
		TriggerWorkflow: true,
		PollInterval:    5 * time.Millisecond,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	return f, client
}

func (f *fakeGitHub) getContents(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	f.mu.Lock()
	sha, ok := f.existing[path]
	f.mu.Unlock()

	if path == "broken.txt" {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "boom"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"type": "file", "path": path, "sha": sha})
}

func (f *fakeGitHub) putContents(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	body := decode(f.t, r)
	f.mu.Lock()
	f.puts[path] = body
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"content": map[string]any{"path": path, "html_url": "https://github.com/octo/shop/blob/main/" + path},
		"commit":  map[string]any{"sha": "commit-" + path},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("Failed to decode request body: %v", err)
	}
	return body
}

func TestNewClient_NotConfigured(t *testing.T) {
	for _, opts := range []Options{
		{Owner: "octo", Repo: "shop"},
		{Token: "t", Repo: "shop"},
		{Token: "t", Owner: "octo"},
	} {
		if _, err := NewClient(opts); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("Expected ErrNotConfigured for %+v, got %v", opts, err)
		}
	}
}

func TestClient_Deploy(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mu.Lock()
	f.existing["Dockerfile"] = "old-sha"
	f.mu.Unlock()

	result, err := client.Deploy(context.Background(), "/tmp/shop", map[string]string{
		"Dockerfile":          "FROM alpine",
		"k8s/deployment.yaml": "kind: Deployment",
		"broken.txt":          "x",
	})
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if result.DeploymentID != 42 {
		t.Errorf("Expected deployment id 42, got %d", result.DeploymentID)
	}
	if result.RepositoryURL != "https://github.com/octo/shop" {
		t.Errorf("Expected repository URL, got %s", result.RepositoryURL)
	}
	if !result.WorkflowTriggered {
		t.Error("Expected workflow to be triggered")
	}
	if result.Uploaded() != 2 {
		t.Errorf("Expected 2 uploads, got %d", result.Uploaded())
	}
	if result.Files["broken.txt"].Status != StatusError {
		t.Errorf("Expected broken.txt to record an error, got %+v", result.Files["broken.txt"])
	}
	if result.Files["k8s/deployment.yaml"].SHA != "commit-k8s/deployment.yaml" {
		t.Errorf("Expected commit sha, got %+v", result.Files["k8s/deployment.yaml"])
	}

	if sha, ok := f.puts["Dockerfile"]["sha"]; !ok || sha != "old-sha" {
		t.Errorf("Expected update with existing sha, got %v", f.puts["Dockerfile"])
	}
	if _, ok := f.puts["k8s/deployment.yaml"]["sha"]; ok {
		t.Error("Expected new file to be created without sha")
	}
	if f.puts["Dockerfile"]["message"] != uploadMessage || f.puts["Dockerfile"]["branch"] != "main" {
		t.Errorf("Unexpected commit options: %v", f.puts["Dockerfile"])
	}
	content, _ := base64.StdEncoding.DecodeString(f.puts["Dockerfile"]["content"].(string))
	if string(content) != "FROM alpine" {
		t.Errorf("Expected uploaded content, got %q", content)
	}

	if strings.Join(f.statuses, ",") != "pending,success" {
		t.Errorf("Expected pending then success, got %v", f.statuses)
	}
}

func TestClient_Deploy_WorkflowFailureTolerated(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mu.Lock()
	f.dispatchStatus = http.StatusNotFound
	f.mu.Unlock()

	result, err := client.Deploy(context.Background(), "/tmp/shop", map[string]string{"Dockerfile": "FROM alpine"})
	if err != nil {
		t.Fatalf("Expected workflow failure to be tolerated, got %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if result.WorkflowTriggered {
		t.Error("Expected WorkflowTriggered to be false")
	}
	if result.WorkflowError == "" {
		t.Error("Expected workflow error to be recorded")
	}
	if strings.Join(f.statuses, ",") != "pending,success" {
		t.Errorf("Expected deployment to still succeed, got %v", f.statuses)
	}
}

func TestClient_SetSecrets(t *testing.T) {
	f, client := newFakeGitHub(t)

	results, err := client.SetSecrets(context.Background(), map[string]string{
		"DOCKER_PASSWORD": "hunter2-but-longer",
	})
	if err != nil {
		t.Fatalf("SetSecrets() error = %v", err)
	}
	if results["DOCKER_PASSWORD"].Status != StatusSuccess {
		t.Fatalf("Expected success, got %+v", results["DOCKER_PASSWORD"])
	}

	f.mu.Lock()
	encrypted := f.secrets["DOCKER_PASSWORD"]
	f.mu.Unlock()

	sealed, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		t.Fatalf("Expected base64 encrypted value: %v", err)
	}
	plain, ok := box.OpenAnonymous(nil, sealed, f.publicKey, f.privateKey)
	if !ok {
		t.Fatal("Failed to open sealed secret")
	}
	if string(plain) != "hunter2-but-longer" {
		t.Errorf("Expected decrypted secret, got %q", plain)
	}
}

func TestClient_SetSecrets_Many(t *testing.T) {
	f, client := newFakeGitHub(t)

	secrets := map[string]string{}
	for i := range 9 {
		secrets[fmt.Sprintf("SECRET_%d", i)] = fmt.Sprintf("value-%d", i)
	}

	results, err := client.SetSecrets(context.Background(), secrets)
	if err != nil {
		t.Fatalf("SetSecrets() error = %v", err)
	}
	if len(results) != len(secrets) {
		t.Fatalf("Expected %d results, got %d", len(secrets), len(results))
	}
	for name, res := range results {
		if res.Status != StatusSuccess {
			t.Errorf("Expected success for %s, got %+v", name, res)
		}
	}

	f.mu.Lock()
	stored := len(f.secrets)
	f.mu.Unlock()
	if stored != len(secrets) {
		t.Errorf("Expected %d stored secrets, got %d", len(secrets), stored)
	}
}

func TestClient_SetSecrets_Empty(t *testing.T) {
	_, client := newFakeGitHub(t)

	results, err := client.SetSecrets(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("Expected empty result, got %v, %v", results, err)
	}
}

func TestClient_Monitor(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mu.Lock()
	f.runStatus = func(call int) string {
		if call < 3 {
			return "in_progress"
		}
		return "completed"
	}
	f.mu.Unlock()

	result, err := client.Monitor(context.Background(), 42, time.Second)
	if err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("Expected completed, got %+v", result)
	}
	if result.Conclusion != "success" || result.RunURL == "" {
		t.Errorf("Expected conclusion and run url, got %+v", result)
	}
	if f.runCalls.Load() != 3 {
		t.Errorf("Expected 3 polls, got %d", f.runCalls.Load())
	}
}

func TestClient_Monitor_Timeout(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mu.Lock()
	f.runStatus = func(int) string { return "queued" }
	f.mu.Unlock()

	result, err := client.Monitor(context.Background(), 42, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}
	if result.Status != StatusTimeout {
		t.Errorf("Expected timeout, got %+v", result)
	}
	if !strings.HasPrefix(result.Message, "Deployment monitoring timed out after") {
		t.Errorf("Unexpected message: %s", result.Message)
	}
}

func TestClient_Monitor_ContextCancelled(t *testing.T) {
	f, client := newFakeGitHub(t)
	f.mu.Lock()
	f.runStatus = func(int) string { return "queued" }
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := client.Monitor(ctx, 42, time.Minute)
	if err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}
	if result.Status != StatusTimeout {
		t.Errorf("Expected timeout, got %+v", result)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("Expected Monitor to stop when the context is done")
	}
}

func TestClient_CreateRelease(t *testing.T) {
	f, client := newFakeGitHub(t)

	result, err := client.CreateRelease(context.Background(), "1.2.0", "")
	if err != nil {
		t.Fatalf("CreateRelease() error = %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if result.TagName != "v1.2.0" {
		t.Errorf("Expected tag v1.2.0, got %s", result.TagName)
	}
	if f.release["name"] != "Release v1.2.0" {
		t.Errorf("Expected release name, got %v", f.release["name"])
	}
	if f.release["body"] != "Automated release v1.2.0" {
		t.Errorf("Expected default body, got %v", f.release["body"])
	}
}

func TestClient_CreateIssue(t *testing.T) {
	f, client := newFakeGitHub(t)

	result, err := client.CreateIssue(context.Background(), "Deploy", "body", []string{"deployment", "v1.0.0"})
	if err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if result.Number != 12 {
		t.Errorf("Expected issue 12, got %d", result.Number)
	}
	labels, _ := f.issue["labels"].([]any)
	if len(labels) != 2 {
		t.Errorf("Expected 2 labels, got %v", f.issue["labels"])
	}
}
