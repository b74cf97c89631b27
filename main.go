package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/swaggo/swag"

	"taskdeploy-backend/config"
	"taskdeploy-backend/container"
	_ "taskdeploy-backend/docs"
	"taskdeploy-backend/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependency container
	c, err := container.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer c.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newHandler(c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Task deployment service starting on :%s (driver=%s, owner=%s)", cfg.Port, cfg.StoreDriver, cfg.GitHubOwner)
	log.Printf("Task endpoint at: http://localhost:%s/handle_task", cfg.Port)
	log.Printf("Metrics at: http://localhost:%s/metrics", cfg.Port)
	log.Printf("MCP endpoint at: http://localhost:%s/mcp", cfg.Port)
	if c.SiteHandler != nil {
		log.Printf("Published sites at: http://localhost:%s/sites/", cfg.Port)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	log.Println("server stopped")
}

// newHandler applies the middleware chain to all routes.
func newHandler(c *container.Container) http.Handler {
	mux := http.NewServeMux()
	return middleware.Recovery(
		middleware.Logging(c.Metrics)(
			middleware.SecurityHeaders(
				middleware.CORS(
					middleware.Timeout(c.Config.RequestTimeout)(
						setupRoutes(mux, c),
					),
				),
			),
		),
	)
}

func setupRoutes(mux *http.ServeMux, c *container.Container) http.Handler {
	// Health endpoints
	mux.HandleFunc("/", c.HealthHandler.HandleRoot)
	mux.HandleFunc("/api/health", c.HealthHandler.HandleHealth)

	// Task submission
	// Unwrapped: a wrong secret must answer 401 whatever the content type.
	mux.HandleFunc("/handle_task", c.TaskHandler.HandleTask)

	// Project links
	mux.Handle("/api/projects/links", middleware.ValidateProjectParams(http.HandlerFunc(c.ProjectHandler.HandleLinks)))
	mux.Handle("/api/projects/qrcode", middleware.ValidateProjectParams(http.HandlerFunc(c.ProjectHandler.HandleQRCode)))

	// Self-hosted publication
	if c.SiteHandler != nil {
		mux.HandleFunc("/sites/", c.SiteHandler.HandleSite)
	}

	// MCP over streamable HTTP
	mux.Handle("/mcp", middleware.ContentType(server.NewStreamableHTTPServer(c.MCP.GetMCPServer())))

	// Metrics and API docs
	mux.Handle("/metrics", c.Metrics.Handler())
	mux.HandleFunc("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		doc, err := swag.ReadDoc()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(doc))
	})

	return mux
}
