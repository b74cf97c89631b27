package artifactstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GitHubOptions configures a GitHubStore.
type GitHubOptions struct {
	APIBase string
	Token   string
	Owner   string
	Branch  string
	Timeout time.Duration
}

// GitHubStore talks to the GitHub REST API (or a compatible server).
type GitHubStore struct {
	apiBase string
	token   string
	owner   string
	branch  string
	client  *http.Client
}

// NewGitHubStore builds a driver for the repositories of opts.Owner.
func NewGitHubStore(opts GitHubOptions) *GitHubStore {
	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}
	branch := opts.Branch
	if branch == "" {
		branch = "main"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GitHubStore{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   opts.Token,
		owner:   opts.Owner,
		branch:  branch,
		client:  &http.Client{Timeout: timeout},
	}
}

type ghRepo struct {
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
	Owner   struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (r ghRepo) project() Project {
	return Project{Name: r.Name, Owner: r.Owner.Login, URL: r.HTMLURL}
}

// CreateProject creates a public repository without an initial commit.
func (s *GitHubStore) CreateProject(ctx context.Context, name string) (Project, error) {
	payload := map[string]interface{}{
		"name":        name,
		"private":     false,
		"auto_init":   false,
		"description": fmt.Sprintf("Auto-generated app: %s", name),
	}
	var repo ghRepo
	status, body, err := s.do(ctx, http.MethodPost, "/user/repos", payload, &repo)
	if err != nil {
		return Project{}, err
	}
	switch status {
	case http.StatusCreated:
		return repo.project(), nil
	case http.StatusUnprocessableEntity:
		return Project{}, fmt.Errorf("create repository %s: %w", name, ErrProjectExists)
	default:
		return Project{}, statusError("create repository", status, body)
	}
}

// GetProject reads repository metadata.
func (s *GitHubStore) GetProject(ctx context.Context, name string) (Project, error) {
	var repo ghRepo
	status, body, err := s.do(ctx, http.MethodGet, s.repoPath(name), nil, &repo)
	if err != nil {
		return Project{}, err
	}
	switch status {
	case http.StatusOK:
		return repo.project(), nil
	case http.StatusNotFound:
		return Project{}, ErrProjectNotFound
	default:
		return Project{}, statusError("get repository", status, body)
	}
}

// FileVersion returns the blob sha of path on the default branch.
func (s *GitHubStore) FileVersion(ctx context.Context, project, path string) (string, error) {
	var file struct {
		SHA string `json:"sha"`
	}
	endpoint := s.contentsPath(project, path) + "?ref=" + url.QueryEscape(s.branch)
	status, body, err := s.do(ctx, http.MethodGet, endpoint, nil, &file)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK:
		return file.SHA, nil
	case http.StatusNotFound:
		return "", ErrFileNotFound
	default:
		return "", statusError("get file "+path, status, body)
	}
}

// PutFile creates or updates path. version must be the current blob sha
// when the file exists.
func (s *GitHubStore) PutFile(ctx context.Context, project, path string, content []byte, message, version string) (string, error) {
	payload := map[string]interface{}{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
		"branch":  s.branch,
	}
	if version != "" {
		payload["sha"] = version
	}
	var result struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	status, body, err := s.do(ctx, http.MethodPut, s.contentsPath(project, path), payload, &result)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		return result.Commit.SHA, nil
	case http.StatusConflict:
		return "", fmt.Errorf("push %s: %w", path, ErrVersionConflict)
	default:
		return "", statusError("push "+path, status, body)
	}
}

// HeadCommit returns the tip of the default branch.
func (s *GitHubStore) HeadCommit(ctx context.Context, project string) (string, error) {
	var commit struct {
		SHA string `json:"sha"`
	}
	endpoint := s.repoPath(project) + "/commits/" + url.PathEscape(s.branch)
	status, body, err := s.do(ctx, http.MethodGet, endpoint, nil, &commit)
	if err != nil {
		return "", err
	}
	switch status {
	case http.StatusOK:
		return commit.SHA, nil
	case http.StatusNotFound, http.StatusConflict:
		// 409 is returned for an empty repository.
		return "", ErrEmptyHistory
	default:
		return "", statusError("get commit", status, body)
	}
}

// EnablePublication turns on Pages served from the root of the default branch.
func (s *GitHubStore) EnablePublication(ctx context.Context, project string) (Publication, error) {
	payload := map[string]interface{}{
		"build_type": "legacy",
		"source": map[string]string{
			"branch": s.branch,
			"path":   "/",
		},
	}
	var pages struct {
		HTMLURL string `json:"html_url"`
		Status  string `json:"status"`
	}
	status, body, err := s.do(ctx, http.MethodPost, s.repoPath(project)+"/pages", payload, &pages)
	if err != nil {
		return Publication{}, err
	}
	switch status {
	case http.StatusCreated:
		return Publication{URL: pages.HTMLURL, Status: pages.Status}, nil
	case http.StatusConflict:
		return Publication{}, ErrPublicationExists
	default:
		return Publication{}, statusError("enable pages", status, body)
	}
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (s *GitHubStore) Close() {}

func (s *GitHubStore) repoPath(project string) string {
	return fmt.Sprintf("/repos/%s/%s", url.PathEscape(s.owner), url.PathEscape(project))
}

func (s *GitHubStore) contentsPath(project, path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return s.repoPath(project) + "/contents/" + strings.Join(parts, "/")
}

// do sends one request. Transport failures are returned as errors; any
// HTTP status is returned to the caller with the raw body. out is decoded
// only for 2xx responses.
func (s *GitHubStore) do(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.apiBase+endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}

func statusError(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("%s failed: %d", op, status)
	}
	return fmt.Errorf("%s failed: %d %s", op, status, msg)
}
