package models

import "fmt"

// Round numbers accepted by the pipeline.
const (
	RoundBootstrap = 1
	RoundUpdate    = 2
)

// Attachment describes a caller-supplied resource referenced in the brief.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TaskRequest is the decoded body of a task submission.
type TaskRequest struct {
	Secret        string       `json:"secret,omitempty"`
	Email         string       `json:"email"`
	Task          string       `json:"task"`
	Round         int          `json:"round"`
	Nonce         string       `json:"nonce"`
	Brief         string       `json:"brief"`
	Checks        []string     `json:"checks"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	EvaluationURL string       `json:"evaluation_url,omitempty"`
}

// ProjectName is the sole identity used for remote lookups. Two requests
// with the same task and nonce address the same project in every round.
func (r TaskRequest) ProjectName() string {
	return ProjectName(r.Task, r.Nonce)
}

// ProjectName joins a task name and nonce.
func ProjectName(task, nonce string) string {
	return fmt.Sprintf("%s_%s", task, nonce)
}

// Artifact is a named file produced for a project.
type Artifact struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// TextArtifact builds an Artifact from string content.
func TextArtifact(name, content string) Artifact {
	return Artifact{Name: name, Content: []byte(content)}
}

// ResultRecord is delivered to the callback and returned to the caller.
type ResultRecord struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// ProjectLinks are the URLs derived from the naming convention.
type ProjectLinks struct {
	Project  string `json:"project"`
	RepoURL  string `json:"repo_url"`
	PagesURL string `json:"pages_url"`
}

// TaskResponse is the 200 body of /handle_task.
type TaskResponse struct {
	Message string       `json:"message"`
	Result  ResultRecord `json:"result"`
}

// TaskErrorResponse is the non-200 body of /handle_task.
type TaskErrorResponse struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// ServiceStatus is returned by the root health endpoint.
type ServiceStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
