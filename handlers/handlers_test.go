package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/artifactstore"
	"taskdeploy-backend/models"
	"taskdeploy-backend/pipeline"
	"taskdeploy-backend/services"
)

type fakeRunner struct {
	calls  int
	result apperr.Result[models.ResultRecord]
}

func (f *fakeRunner) Run(ctx context.Context, req models.TaskRequest) apperr.Result[models.ResultRecord] {
	f.calls++
	return f.result
}

func postTask(t *testing.T, h *TaskHandler, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/handle_task", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.HandleTask(rr, req)

	var decoded map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not JSON: %q", rr.Body.String())
	}
	return rr, decoded
}

const taskBody = `{"secret":"s3cret","email":"a@b.c","task":"todo","round":%s,"nonce":"x1","brief":"b","checks":["c"]}`

func body(round string) string {
	return strings.Replace(taskBody, "%s", round, 1)
}

func TestHandleTaskWrongSecret(t *testing.T) {
	runner := &fakeRunner{}
	h := NewTaskHandler(pipeline.NewGate("other"), runner)

	rr, resp := postTask(t, h, body("1"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if resp["error"] != "Invalid secret" {
		t.Fatalf("error = %v", resp["error"])
	}
	if runner.calls != 0 {
		t.Fatalf("runner called %d times", runner.calls)
	}
}

func TestHandleTaskInvalidRound(t *testing.T) {
	runner := &fakeRunner{}
	h := NewTaskHandler(pipeline.NewGate("s3cret"), runner)

	rr, resp := postTask(t, h, body("3"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if resp["error"] != "Invalid round: 3. Must be 1 or 2" {
		t.Fatalf("error = %v", resp["error"])
	}
	if runner.calls != 0 {
		t.Fatalf("runner called %d times", runner.calls)
	}
}

func TestHandleTaskMissingFields(t *testing.T) {
	h := NewTaskHandler(pipeline.NewGate("s3cret"), &fakeRunner{})

	rr, resp := postTask(t, h, `{"secret":"s3cret","task":"todo"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if resp["error"] != "Missing required fields: email, round, nonce, brief, checks" {
		t.Fatalf("error = %v", resp["error"])
	}
}

func TestHandleTaskMalformedBody(t *testing.T) {
	h := NewTaskHandler(pipeline.NewGate("s3cret"), &fakeRunner{})
	rr, _ := postTask(t, h, `[1,2]`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleTaskSuccess(t *testing.T) {
	record := models.ResultRecord{
		Email: "a@b.c", Task: "todo", Round: 1, Nonce: "x1",
		RepoURL:   "https://github.com/octo/todo_x1",
		CommitSHA: "abc123",
		PagesURL:  "https://octo.github.io/todo_x1/",
	}
	runner := &fakeRunner{result: apperr.Success(record)}
	h := NewTaskHandler(pipeline.NewGate("s3cret"), runner)

	rr, resp := postTask(t, h, body("1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if resp["message"] != "Round 1 completed successfully" {
		t.Fatalf("message = %v", resp["message"])
	}
	result := resp["result"].(map[string]interface{})
	if result["commit_sha"] != "abc123" || result["pages_url"] != record.PagesURL {
		t.Fatalf("unexpected result %v", result)
	}
}

func TestHandleTaskRoundFailure(t *testing.T) {
	runner := &fakeRunner{result: apperr.Fail[models.ResultRecord](apperr.Remotef("create project", "boom"))}
	h := NewTaskHandler(pipeline.NewGate("s3cret"), runner)

	rr, resp := postTask(t, h, body("2"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if resp["error"] != "Round 2 failed: create project: boom" {
		t.Fatalf("error = %v", resp["error"])
	}
	if resp["kind"] != string(apperr.KindRemoteService) {
		t.Fatalf("kind = %v", resp["kind"])
	}
}

func TestHandleRoot(t *testing.T) {
	h := NewHealthHandler(services.NewHealthService("memory"))
	rr := httptest.NewRecorder()
	h.HandleRoot(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	var status models.ServiceStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Status != "ok" || status.Service != ServiceName {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestHandleLinks(t *testing.T) {
	pages := func(p string) string { return "https://octo.github.io/" + p + "/" }
	repo := func(p string) string { return "https://github.com/octo/" + p }
	h := NewProjectHandler(services.NewQRCodeService(pages), repo, pages)

	rr := httptest.NewRecorder()
	h.HandleLinks(rr, httptest.NewRequest(http.MethodGet, "/api/projects/links?task=todo&nonce=x1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"repo_url":"https://github.com/octo/todo_x1"`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.HandleQRCode(rr, httptest.NewRequest(http.MethodGet, "/api/projects/qrcode?name=todo_x1", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qrcode status %d type %q", rr.Code, rr.Header().Get("Content-Type"))
	}

	rr = httptest.NewRecorder()
	h.HandleQRCode(rr, httptest.NewRequest(http.MethodGet, "/api/projects/qrcode?name=../x", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleSite(t *testing.T) {
	pages := func(p string) string { return "http://localhost/sites/" + p + "/" }
	store := artifactstore.NewMemoryStore("octo", "https://github.com", pages)
	ctx := context.Background()
	if _, err := store.CreateProject(ctx, "todo_x1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.PutFile(ctx, "todo_x1", "index.html", []byte("<html>hi</html>"), "add", ""); err != nil {
		t.Fatal(err)
	}
	h := NewSiteHandler(store, "/sites/")

	rr := httptest.NewRecorder()
	h.HandleSite(rr, httptest.NewRequest(http.MethodGet, "/sites/todo_x1/", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unpublished status = %d, want 404", rr.Code)
	}

	if _, err := store.EnablePublication(ctx, "todo_x1"); err != nil {
		t.Fatal(err)
	}
	rr = httptest.NewRecorder()
	h.HandleSite(rr, httptest.NewRequest(http.MethodGet, "/sites/todo_x1/", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "<html>hi</html>" {
		t.Fatalf("status %d body %q", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("content type %q", rr.Header().Get("Content-Type"))
	}

	rr = httptest.NewRecorder()
	h.HandleSite(rr, httptest.NewRequest(http.MethodGet, "/sites/todo_x1", nil))
	if rr.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rr.Code)
	}
}
