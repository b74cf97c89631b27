package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"taskdeploy-backend/models"
)

func main() {
	serverURL := flag.String("server", envOr("TASKSVC_URL", "http://localhost:8000"), "base URL of the task service")
	taskFile := flag.String("file", "", "task submission as YAML or JSON")
	secret := flag.String("secret", os.Getenv("SECRET"), "shared secret (overrides the file)")
	round := flag.Int("round", 0, "round to run (overrides the file)")
	timeout := flag.Duration("timeout", 15*time.Minute, "how long to wait for the round to finish")
	flag.Parse()

	if strings.TrimSpace(*taskFile) == "" {
		die("--file is required")
	}
	submission, err := loadSubmission(*taskFile, *secret, *round)
	if err != nil {
		die("load task: %v", err)
	}

	status, body, err := submit(*serverURL, submission, *timeout)
	if err != nil {
		die("submit: %v", err)
	}
	fmt.Println(render(status, body))
	if status != http.StatusOK {
		os.Exit(1)
	}
}

// loadSubmission reads a task file and applies command-line overrides.
func loadSubmission(path, secret string, round int) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	submission := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &submission); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if secret != "" {
		submission["secret"] = secret
	}
	if round != 0 {
		submission["round"] = round
	}
	return submission, nil
}

func submit(serverURL string, submission map[string]interface{}, timeout time.Duration) (int, []byte, error) {
	payload, err := json.Marshal(submission)
	if err != nil {
		return 0, nil, err
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(strings.TrimRight(serverURL, "/")+"/handle_task", "application/json", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

var (
	okHeader  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5BD75B"))
	errHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	label     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(12)
	value     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	box       = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// render formats a /handle_task response for the terminal.
func render(status int, body []byte) string {
	if status == http.StatusOK {
		var resp models.TaskResponse
		if err := json.Unmarshal(body, &resp); err == nil {
			r := resp.Result
			rows := [][2]string{
				{"project", models.ProjectName(r.Task, r.Nonce)},
				{"round", fmt.Sprintf("%d", r.Round)},
				{"commit", r.CommitSHA},
				{"repository", r.RepoURL},
				{"pages", r.PagesURL},
			}
			lines := []string{okHeader.Render(resp.Message)}
			for _, row := range rows {
				lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, label.Render(row[0]), value.Render(row[1])))
			}
			return box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
		}
	}

	var resp models.TaskErrorResponse
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		msg = resp.Error
		if resp.Kind != "" {
			msg += " (" + resp.Kind + ")"
		}
	}
	header := errHeader.Render(fmt.Sprintf("HTTP %d", status))
	return box.Render(lipgloss.JoinVertical(lipgloss.Left, header, value.Render(msg)))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func die(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
