package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/models"
	"taskdeploy-backend/security"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Admitter validates raw task submissions.
type Admitter interface {
	Admit(raw map[string]json.RawMessage) (models.TaskRequest, error)
}

// Runner executes an admitted round.
type Runner interface {
	Run(ctx context.Context, req models.TaskRequest) apperr.Result[models.ResultRecord]
}

// QRCoder renders a project's public URL as a PNG.
type QRCoder interface {
	ProjectQRCode(project string, size int) ([]byte, error)
}

// Links derives project URLs from the naming convention.
type Links struct {
	RepoURL  func(project string) string
	PagesURL func(project string) string
}

// MCPServer wraps the mcp-go server with the task pipeline
type MCPServer struct {
	mcpServer *server.MCPServer
	gate      Admitter
	runner    Runner
	links     Links
	qr        QRCoder
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(gate Admitter, runner Runner, links Links, qr QRCoder) *MCPServer {
	mcpServer := server.NewMCPServer(
		"Task Deployment MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer: mcpServer,
		gate:      gate,
		runner:    runner,
		links:     links,
		qr:        qr,
	}

	s.registerTools()

	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_task_round",
		mcp.WithDescription("Generate, publish and report one round of a task. Round 1 creates the project, round 2 updates it."),
		mcp.WithString("secret", mcp.Required(), mcp.Description("Shared secret")),
		mcp.WithString("email", mcp.Required(), mcp.Description("Submitter email")),
		mcp.WithString("task", mcp.Required(), mcp.Description("Task id")),
		mcp.WithNumber("round", mcp.Required(), mcp.Description("Round number, 1 or 2")),
		mcp.WithString("nonce", mcp.Required(), mcp.Description("Nonce distinguishing submissions of the same task")),
		mcp.WithString("brief", mcp.Required(), mcp.Description("What the app should do")),
		mcp.WithArray("checks", mcp.Required(), mcp.Description("Acceptance checks"), mcp.WithStringItems()),
		mcp.WithArray("attachments", mcp.Description("Objects with name and url")),
		mcp.WithString("evaluation_url", mcp.Description("Callback that receives the result record")),
	), s.handleRunTaskRound)

	s.mcpServer.AddTool(mcp.NewTool("project_links",
		mcp.WithDescription("Repository and publication URLs of a project"),
		mcp.WithString("task", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("nonce", mcp.Required(), mcp.Description("Nonce")),
	), s.handleProjectLinks)

	s.mcpServer.AddTool(mcp.NewTool("project_qrcode",
		mcp.WithDescription("QR code (PNG) of a project's publication URL"),
		mcp.WithString("task", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("nonce", mcp.Required(), mcp.Description("Nonce")),
		mcp.WithNumber("size", mcp.Description("Edge length in pixels")),
	), s.handleProjectQRCode)
}

func (s *MCPServer) handleRunTaskRound(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := make(map[string]json.RawMessage)
	for key, value := range request.GetArguments() {
		data, err := json.Marshal(value)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid argument %s: %v", key, err)), nil
		}
		raw[key] = data
	}

	req, err := s.gate.Admit(raw)
	if err != nil {
		return toolError(apperr.As(err), ""), nil
	}

	res := s.runner.Run(ctx, req)
	if !res.IsSuccess() {
		return toolError(res.Err(), fmt.Sprintf("Round %d failed: ", req.Round)), nil
	}
	return jsonResult(models.TaskResponse{
		Message: fmt.Sprintf("Round %d completed successfully", req.Round),
		Result:  res.Value(),
	})
}

func (s *MCPServer) projectName(request mcp.CallToolRequest) (string, error) {
	task, err := request.RequireString("task")
	if err != nil {
		return "", err
	}
	nonce, err := request.RequireString("nonce")
	if err != nil {
		return "", err
	}
	return security.SanitizeProjectName(models.ProjectName(task, nonce))
}

func (s *MCPServer) handleProjectLinks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := s.projectName(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(models.ProjectLinks{
		Project:  name,
		RepoURL:  s.links.RepoURL(name),
		PagesURL: s.links.PagesURL(name),
	})
}

func (s *MCPServer) handleProjectQRCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := s.projectName(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	size := request.GetInt("size", 0)
	png, err := s.qr.ProjectQRCode(name, size)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate QR code: %v", err)), nil
	}
	return mcp.NewToolResultImage(s.links.PagesURL(name), base64.StdEncoding.EncodeToString(png), "image/png"), nil
}

func toolError(e *apperr.Error, prefix string) *mcp.CallToolResult {
	msg := e.Error()
	if e.HTTPStatus() >= 500 {
		msg = prefix + msg
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s (%s)", msg, e.Kind))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
