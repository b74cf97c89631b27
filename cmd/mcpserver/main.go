package main

import (
	"context"
	"log"
	"os"

	"taskdeploy-backend/config"
	"taskdeploy-backend/container"

	"github.com/mark3labs/mcp-go/server"
)

func main() {
	// stdout carries the protocol; keep logs on stderr.
	log.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	c, err := container.NewContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer c.Close()

	log.Printf("Task deployment MCP server starting (driver=%s, owner=%s)", cfg.StoreDriver, cfg.GitHubOwner)

	// Start the MCP server using stdio transport
	if err := server.ServeStdio(c.MCP.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
