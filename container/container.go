package container

import (
	"context"
	"fmt"

	"taskdeploy-backend/artifactstore"
	"taskdeploy-backend/config"
	"taskdeploy-backend/generator"
	"taskdeploy-backend/handlers"
	"taskdeploy-backend/mcp"
	"taskdeploy-backend/metrics"
	"taskdeploy-backend/notifier"
	"taskdeploy-backend/pipeline"
	"taskdeploy-backend/publication"
	"taskdeploy-backend/services"
)

// Container holds all application dependencies
type Container struct {
	Config  config.Config
	Metrics *metrics.Metrics

	// Remote side
	Backend artifactstore.Backend
	Sites   artifactstore.SiteReader
	Client  *artifactstore.Client

	// Pipeline
	Generator    *generator.Generator
	Notifier     *notifier.Notifier
	Enabler      *publication.Enabler
	Gate         *pipeline.Gate
	Orchestrator *pipeline.Orchestrator

	// Services
	QRCodeService *services.QRCodeService
	HealthService *services.HealthService

	// Handlers
	HealthHandler  *handlers.HealthHandler
	TaskHandler    *handlers.TaskHandler
	ProjectHandler *handlers.ProjectHandler
	SiteHandler    *handlers.SiteHandler

	// MCP tools over the same pipeline
	MCP *mcp.MCPServer
}

// NewBackend opens the artifact store selected by cfg.StoreDriver.
func NewBackend(ctx context.Context, cfg config.Config) (artifactstore.Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverGitHub:
		return artifactstore.NewGitHubStore(artifactstore.GitHubOptions{
			APIBase: cfg.GitHubAPIBase,
			Token:   cfg.GitHubToken,
			Owner:   cfg.GitHubOwner,
			Branch:  cfg.DefaultBranch,
			Timeout: cfg.HTTPTimeout,
		}), nil
	case config.DriverPostgres:
		return artifactstore.NewPGStore(ctx, cfg.PGDSN, cfg.GitHubOwner, cfg.GitHubWebBase, cfg.PagesURL)
	case config.DriverMemory:
		return artifactstore.NewMemoryStore(cfg.GitHubOwner, cfg.GitHubWebBase, cfg.PagesURL), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewContainer creates a new dependency container
func NewContainer(ctx context.Context, cfg config.Config) (*Container, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewContainerWithBackend(cfg, backend), nil
}

// NewContainerWithBackend wires everything around an already opened backend.
func NewContainerWithBackend(cfg config.Config, backend artifactstore.Backend) *Container {
	m := metrics.New()

	client := artifactstore.NewClient(backend, artifactstore.ClientOptions{
		Owner:         cfg.GitHubOwner,
		RepoURL:       cfg.RepoURL,
		SettleTimeout: cfg.SettleTimeout,
		PollInterval:  cfg.PollInterval,
	})
	gen := generator.New(generator.Options{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Timeout:     cfg.HTTPTimeout,
	})
	notify := notifier.New(notifier.Options{
		BaseDelay: cfg.NotifyBaseDelay,
		Timeout:   cfg.HTTPTimeout,
		Observer:  m,
	})
	enabler := publication.NewEnabler(backend, cfg.PagesURL)
	gate := pipeline.NewGate(cfg.Secret)
	orch := pipeline.NewOrchestrator(gen, client, enabler, notify, pipeline.Options{
		RepoURL:           cfg.RepoURL,
		PagesURL:          cfg.PagesURL,
		NotifyMaxAttempts: cfg.NotifyMaxAttempts,
		LicenseYear:       cfg.LicenseYear,
		LicenseHolder:     cfg.LicenseHolder,
		Metrics:           m,
	})

	qrService := services.NewQRCodeService(cfg.PagesURL)
	healthService := services.NewHealthService(cfg.StoreDriver)

	c := &Container{
		Config:  cfg,
		Metrics: m,

		Backend: backend,
		Client:  client,

		Generator:    gen,
		Notifier:     notify,
		Enabler:      enabler,
		Gate:         gate,
		Orchestrator: orch,

		QRCodeService: qrService,
		HealthService: healthService,

		HealthHandler:  handlers.NewHealthHandler(healthService),
		TaskHandler:    handlers.NewTaskHandler(gate, orch),
		ProjectHandler: handlers.NewProjectHandler(qrService, cfg.RepoURL, cfg.PagesURL),

		MCP: mcp.NewMCPServer(gate, orch, mcp.Links{RepoURL: cfg.RepoURL, PagesURL: cfg.PagesURL}, qrService),
	}
	if sites, ok := backend.(artifactstore.SiteReader); ok {
		c.Sites = sites
		c.SiteHandler = handlers.NewSiteHandler(sites, "/sites/")
	}
	return c
}

// Close releases the backend.
func (c *Container) Close() {
	if c.Backend != nil {
		c.Backend.Close()
	}
}
