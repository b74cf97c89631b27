package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/models"
)

const validHTML = "<!DOCTYPE html>\n<html><head><title>Todo</title></head><body><ul id=\"items\"></ul></body></html>"

func completionServer(t *testing.T, status int, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
}

func newTestGenerator(url string) *Generator {
	return New(Options{BaseURL: url, APIKey: "test-key", Model: "gpt-4o-mini", Temperature: 0.3})
}

func TestGenerateStripsFencesAndReturnsIndex(t *testing.T) {
	var seen chatRequest
	srv := completionServer(t, http.StatusOK, "```html\n"+validHTML+"\n```", &seen)
	defer srv.Close()

	files, err := newTestGenerator(srv.URL).Generate(context.Background(), "a todo app", []string{"can add item"}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(files) != 1 || files[0].Name != AppFileName {
		t.Fatalf("expected single %s artifact, got %+v", AppFileName, files)
	}
	if string(files[0].Content) != validHTML {
		t.Fatalf("fences not stripped: %q", files[0].Content)
	}
	if seen.Model != "gpt-4o-mini" || len(seen.Messages) != 2 || seen.Messages[0].Role != "system" {
		t.Fatalf("unexpected request: %+v", seen)
	}
	if !strings.Contains(seen.Messages[1].Content, "- can add item") {
		t.Fatalf("checks missing from prompt: %s", seen.Messages[1].Content)
	}
}

func TestGenerateRejectsInvalidOutput(t *testing.T) {
	cases := map[string]string{
		"too short":         "<html></html>",
		"fenced and short":  "```html\n<html>hi</html>\n```",
		"missing marker":    strings.Repeat("<div>no root document here</div>", 5),
		"empty":             "",
		"fenced no markers": "```\n" + strings.Repeat("plain text ", 20) + "\n```",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			srv := completionServer(t, http.StatusOK, content, nil)
			defer srv.Close()

			_, err := newTestGenerator(srv.URL).Generate(context.Background(), "", nil, nil)
			if !apperr.IsKind(err, apperr.KindGenerationInvalid) {
				t.Fatalf("expected generation invalid error, got %v", err)
			}
		})
	}
}

func TestGenerateSurfacesRemoteFailure(t *testing.T) {
	srv := completionServer(t, http.StatusInternalServerError, "", nil)
	defer srv.Close()

	_, err := newTestGenerator(srv.URL).Generate(context.Background(), "brief", nil, nil)
	if !apperr.IsKind(err, apperr.KindRemoteService) {
		t.Fatalf("expected remote service error, got %v", err)
	}
}

func TestGenerateDoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := newTestGenerator(srv.URL).Generate(context.Background(), "brief", nil, nil); err == nil {
		t.Fatalf("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one call, got %d", got)
	}
}

func TestGenerateReadmeAcceptsAnyContent(t *testing.T) {
	var seen chatRequest
	srv := completionServer(t, http.StatusOK, "```markdown\n# todo_x1\nshort\n```", &seen)
	defer srv.Close()

	readme, err := newTestGenerator(srv.URL).GenerateReadme(context.Background(), "a todo app", []string{"can add item"}, "todo_x1", 2)
	if err != nil {
		t.Fatalf("generate readme: %v", err)
	}
	if readme.Name != ReadmeFileName || string(readme.Content) != "# todo_x1\nshort" {
		t.Fatalf("unexpected readme %+v", readme)
	}
	if !strings.Contains(seen.Messages[0].Content, "Project Name: todo_x1") || !strings.Contains(seen.Messages[0].Content, "Round: 2") {
		t.Fatalf("prompt missing project identity: %s", seen.Messages[0].Content)
	}
}

func TestAttachmentURLsAreTruncated(t *testing.T) {
	long := "data:image/png;base64," + strings.Repeat("A", 500)
	prompt := appPrompt("brief", nil, []models.Attachment{{Name: "logo.png", URL: long}})
	if strings.Contains(prompt, long) {
		t.Fatalf("attachment url not truncated")
	}
	if !strings.Contains(prompt, "- logo.png: "+long[:attachmentURLPreview]+"...") {
		t.Fatalf("attachment descriptor missing: %s", prompt)
	}
}

func TestValidateAppCountsCharacters(t *testing.T) {
	short := "<html>" + strings.Repeat("é", 40)
	if len(short) < MinAppLength {
		t.Fatalf("fixture should be at least %d bytes", MinAppLength)
	}
	if err := ValidateApp(short); !apperr.IsKind(err, apperr.KindGenerationInvalid) {
		t.Fatalf("46 characters accepted: %v", err)
	}
	if err := ValidateApp("<html>" + strings.Repeat("é", 44)); err != nil {
		t.Fatalf("50 characters rejected: %v", err)
	}
}

func TestAttachmentURLTruncationKeepsRunesWhole(t *testing.T) {
	long := "data:text/plain," + strings.Repeat("ü", 200)
	prompt := appPrompt("brief", nil, []models.Attachment{{Name: "notes.txt", URL: long}})
	if !utf8.ValidString(prompt) {
		t.Fatalf("prompt is not valid UTF-8")
	}
	want := string([]rune(long)[:attachmentURLPreview])
	if !strings.Contains(prompt, "- notes.txt: "+want+"...") {
		t.Fatalf("attachment descriptor missing: %s", prompt)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"```\nbody\n```", "body"},
		{"```html\n<html>\n</html>\n```", "<html>\n</html>"},
		{"```js\nunterminated", "unterminated"},
		{"  \n```\nx\n```  \n", "x"},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
