package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/artifactstore"
	"taskdeploy-backend/metrics"
	"taskdeploy-backend/models"
)

// Generator produces the files of a round.
type Generator interface {
	Generate(ctx context.Context, brief string, checks []string, attachments []models.Attachment) ([]models.Artifact, error)
	GenerateReadme(ctx context.Context, brief string, checks []string, projectName string, round int) (models.Artifact, error)
}

// ProjectStore is the artifact store as the pipeline sees it.
type ProjectStore interface {
	EnsureProject(ctx context.Context, name string) (artifactstore.Project, error)
	WaitForProject(ctx context.Context, name string)
	UpsertFile(ctx context.Context, project string, artifact models.Artifact, message string) (string, error)
	LatestIntegrationMarker(ctx context.Context, project, expected string) (string, error)
}

// Publisher enables public serving of a project.
type Publisher interface {
	Enable(ctx context.Context, project string) (artifactstore.Publication, error)
}

// Notifier delivers the result record to a callback URL.
type Notifier interface {
	Notify(ctx context.Context, url string, payload interface{}, maxAttempts int) bool
}

// Options carries the naming convention and tunables of an Orchestrator.
type Options struct {
	RepoURL           func(project string) string
	PagesURL          func(project string) string
	NotifyMaxAttempts int
	LicenseYear       int
	LicenseHolder     string
	Metrics           *metrics.Metrics
}

// Orchestrator runs one round of a task per call. It keeps no state
// between calls.
type Orchestrator struct {
	generator Generator
	store     ProjectStore
	publisher Publisher
	notifier  Notifier
	opts      Options
}

// NewOrchestrator wires the collaborators of the pipeline.
func NewOrchestrator(generator Generator, store ProjectStore, publisher Publisher, notifier Notifier, opts Options) *Orchestrator {
	if opts.NotifyMaxAttempts <= 0 {
		opts.NotifyMaxAttempts = 5
	}
	if opts.LicenseYear == 0 {
		opts.LicenseYear = time.Now().Year()
	}
	return &Orchestrator{
		generator: generator,
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		opts:      opts,
	}
}

type run struct {
	id  uuid.UUID
	req models.TaskRequest
}

func (r run) logf(format string, args ...interface{}) {
	log.Printf("[%s] %s: %s", r.id.String()[:8], r.req.ProjectName(), fmt.Sprintf(format, args...))
}

// Run executes the round selected by req.Round. The round runs on a
// context detached from ctx's cancellation: once started, each remote call
// runs to completion or its own timeout.
func (o *Orchestrator) Run(ctx context.Context, req models.TaskRequest) apperr.Result[models.ResultRecord] {
	r := run{id: uuid.New(), req: req}
	if err := ValidateRound(req.Round); err != nil {
		return apperr.Fail[models.ResultRecord](err).WithID(r.id)
	}
	ctx = context.WithoutCancel(ctx)

	r.logf("starting round %d", req.Round)
	var record models.ResultRecord
	var err error
	switch req.Round {
	case models.RoundBootstrap:
		record, err = o.bootstrap(ctx, r)
	case models.RoundUpdate:
		record, err = o.update(ctx, r)
	}

	if err != nil {
		e := apperr.As(err)
		r.logf("round %d failed: %v", req.Round, e)
		o.opts.Metrics.ObserveRound(req.Round, string(e.Kind))
		return apperr.Fail[models.ResultRecord](e).WithID(r.id)
	}
	r.logf("round %d completed (commit %s)", req.Round, record.CommitSHA)
	o.opts.Metrics.ObserveRound(req.Round, "success")
	return apperr.Success(record).WithID(r.id)
}

func (o *Orchestrator) bootstrap(ctx context.Context, r run) (models.ResultRecord, error) {
	name := r.req.ProjectName()

	files, err := o.generate(ctx, r)
	if err != nil {
		return models.ResultRecord{}, err
	}
	files = append(files, License(o.opts.LicenseYear, o.opts.LicenseHolder))
	r.logf("LICENSE added")

	if err := o.step("ensure_project", func() error {
		_, err := o.store.EnsureProject(ctx, name)
		return err
	}); err != nil {
		return models.ResultRecord{}, err
	}
	o.store.WaitForProject(ctx, name)

	commit, err := o.push(ctx, r, files)
	if err != nil {
		return models.ResultRecord{}, err
	}
	marker, err := o.marker(ctx, name, commit)
	if err != nil {
		return models.ResultRecord{}, err
	}

	if err := o.step("enable_publication", func() error {
		_, err := o.publisher.Enable(ctx, name)
		return err
	}); err != nil {
		return models.ResultRecord{}, err
	}

	return o.finish(ctx, r, marker), nil
}

func (o *Orchestrator) update(ctx context.Context, r run) (models.ResultRecord, error) {
	name := r.req.ProjectName()

	files, err := o.generate(ctx, r)
	if err != nil {
		return models.ResultRecord{}, err
	}
	commit, err := o.push(ctx, r, files)
	if err != nil {
		return models.ResultRecord{}, err
	}
	marker, err := o.marker(ctx, name, commit)
	if err != nil {
		return models.ResultRecord{}, err
	}
	return o.finish(ctx, r, marker), nil
}

// generate returns the app files followed by the README.
func (o *Orchestrator) generate(ctx context.Context, r run) ([]models.Artifact, error) {
	var files []models.Artifact
	err := o.step("generate_app", func() error {
		var err error
		files, err = o.generator.Generate(ctx, r.req.Brief, r.req.Checks, r.req.Attachments)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logf("code generated (%d files)", len(files))

	var readme models.Artifact
	err = o.step("generate_readme", func() error {
		var err error
		readme, err = o.generator.GenerateReadme(ctx, r.req.Brief, r.req.Checks, r.req.ProjectName(), r.req.Round)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logf("README generated")
	return append(files, readme), nil
}

// push upserts files in order and returns the commit of the last write.
func (o *Orchestrator) push(ctx context.Context, r run, files []models.Artifact) (string, error) {
	var commit string
	err := o.step("push_files", func() error {
		for _, f := range files {
			message := fmt.Sprintf("Round %d: Update %s", r.req.Round, f.Name)
			c, err := o.store.UpsertFile(ctx, r.req.ProjectName(), f, message)
			if err != nil {
				return err
			}
			commit = c
		}
		return nil
	})
	return commit, err
}

func (o *Orchestrator) marker(ctx context.Context, name, expected string) (string, error) {
	var marker string
	err := o.step("integration_marker", func() error {
		var err error
		marker, err = o.store.LatestIntegrationMarker(ctx, name, expected)
		return err
	})
	return marker, err
}

func (o *Orchestrator) finish(ctx context.Context, r run, marker string) models.ResultRecord {
	name := r.req.ProjectName()
	record := models.ResultRecord{
		Email:     r.req.Email,
		Task:      r.req.Task,
		Round:     r.req.Round,
		Nonce:     r.req.Nonce,
		RepoURL:   o.opts.RepoURL(name),
		CommitSHA: marker,
		PagesURL:  o.opts.PagesURL(name),
	}
	if r.req.EvaluationURL != "" {
		start := time.Now()
		delivered := o.notifier.Notify(ctx, r.req.EvaluationURL, record, o.opts.NotifyMaxAttempts)
		o.opts.Metrics.ObserveStep("notify", time.Since(start), nil)
		if !delivered {
			r.logf("evaluation URL %s was not notified", r.req.EvaluationURL)
		}
	}
	return record
}

func (o *Orchestrator) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.opts.Metrics.ObserveStep(name, time.Since(start), err)
	return err
}
