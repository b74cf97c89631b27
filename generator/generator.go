package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/models"
)

const (
	// MinAppLength is the shortest generated entry point accepted as plausible.
	MinAppLength = 50

	AppFileName    = "index.html"
	ReadmeFileName = "README.md"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Options configures a Generator.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Generator turns briefs into files by calling a chat-completions service.
type Generator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

// New builds a Generator against an OpenAI-compatible endpoint.
func New(opts Options) *Generator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		client:      &http.Client{Timeout: timeout},
	}
}

// Generate produces the application entry point for a brief. The output is
// rejected when it is too short or lacks a root-document marker.
func (g *Generator) Generate(ctx context.Context, brief string, checks []string, attachments []models.Attachment) ([]models.Artifact, error) {
	messages := []Message{
		{Role: "system", Content: appSystemPrompt},
		{Role: "user", Content: appPrompt(brief, checks, attachments)},
	}
	text, err := g.complete(ctx, "generate app", messages)
	if err != nil {
		return nil, err
	}
	code := StripFences(text)
	if err := ValidateApp(code); err != nil {
		log.Printf("generator: rejected app output (%d chars): %v", len(code), err)
		return nil, err
	}
	return []models.Artifact{models.TextArtifact(AppFileName, code)}, nil
}

// GenerateReadme produces README.md. Its content is accepted as returned.
func (g *Generator) GenerateReadme(ctx context.Context, brief string, checks []string, projectName string, round int) (models.Artifact, error) {
	messages := []Message{
		{Role: "user", Content: readmePrompt(brief, checks, projectName, round)},
	}
	text, err := g.complete(ctx, "generate readme", messages)
	if err != nil {
		return models.Artifact{}, err
	}
	return models.TextArtifact(ReadmeFileName, StripFences(text)), nil
}

// ValidateApp checks the structural markers of a generated entry point.
func ValidateApp(code string) error {
	if utf8.RuneCountInString(code) < MinAppLength {
		return apperr.GenerationInvalid("generate app", "Generated code is too short or empty")
	}
	if !strings.Contains(code, "<!DOCTYPE") && !strings.Contains(code, "<html") {
		return apperr.GenerationInvalid("generate app", "Generated code doesn't appear to be valid HTML")
	}
	return nil
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (g *Generator) complete(ctx context.Context, op string, messages []Message) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Remote(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", apperr.Remote(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Remote(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperr.Remotef(op, "generation service returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperr.Remote(op, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return "", apperr.Remotef(op, "generation service error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.Remotef(op, "generation service returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
