package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/models"
	"taskdeploy-backend/security"
)

// ClientOptions configures the settling behaviour of a Client.
type ClientOptions struct {
	Owner         string
	RepoURL       func(project string) string
	SettleTimeout time.Duration
	PollInterval  time.Duration
	// Sleep replaces time.Sleep in tests.
	Sleep func(time.Duration)
}

// Client layers the idempotent pipeline operations over a Store. Nothing
// here locks: two runs upserting into one project concurrently can lose an
// update, and callers must serialize rounds for the same project.
type Client struct {
	store         Store
	owner         string
	repoURL       func(string) string
	settleTimeout time.Duration
	pollInterval  time.Duration
	sleep         func(time.Duration)
}

// NewClient wraps store.
func NewClient(store Store, opts ClientOptions) *Client {
	c := &Client{
		store:         store,
		owner:         opts.Owner,
		repoURL:       opts.RepoURL,
		settleTimeout: opts.SettleTimeout,
		pollInterval:  opts.PollInterval,
		sleep:         opts.Sleep,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 500 * time.Millisecond
	}
	if c.settleTimeout < c.pollInterval {
		c.settleTimeout = c.pollInterval
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	return c
}

// polls is the number of reads a settle loop may make.
func (c *Client) polls() int {
	return int(c.settleTimeout/c.pollInterval) + 1
}

// EnsureProject creates the project. An existing project counts as success
// only when it is owned by the configured owner.
func (c *Client) EnsureProject(ctx context.Context, name string) (Project, error) {
	if _, err := security.SanitizeProjectName(name); err != nil {
		return Project{}, apperr.Validation(err.Error(), "task", "nonce")
	}

	project, err := c.store.CreateProject(ctx, name)
	if err == nil {
		log.Printf("artifactstore: created project %s", name)
		return c.withConventionalURL(project, name), nil
	}
	if !errors.Is(err, ErrProjectExists) {
		return Project{}, apperr.Remote("create project", err)
	}

	existing, getErr := c.store.GetProject(ctx, name)
	if getErr != nil {
		return Project{}, apperr.Remote("create project", fmt.Errorf("project %s reported as existing but could not be read: %w", name, getErr))
	}
	if !strings.EqualFold(existing.Owner, c.owner) {
		return Project{}, apperr.Remotef("create project", "project %s exists but is owned by %q, not %q", name, existing.Owner, c.owner)
	}
	log.Printf("artifactstore: project %s already exists, reusing", name)
	return c.withConventionalURL(existing, name), nil
}

func (c *Client) withConventionalURL(p Project, name string) Project {
	if p.Name == "" {
		p.Name = name
	}
	if p.Owner == "" {
		p.Owner = c.owner
	}
	if c.repoURL != nil {
		p.URL = c.repoURL(name)
	}
	return p
}

// WaitForProject polls until a freshly created project is readable. A
// project that never appears is logged and left for the first write to
// report.
func (c *Client) WaitForProject(ctx context.Context, name string) {
	for i := 0; i < c.polls(); i++ {
		if _, err := c.store.GetProject(ctx, name); err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.sleep(c.pollInterval)
	}
	log.Printf("artifactstore: project %s not visible after %s", name, c.settleTimeout)
}

// UpsertFile writes one artifact, reading its current version marker
// immediately before the write. Returns the commit of the write.
func (c *Client) UpsertFile(ctx context.Context, project string, artifact models.Artifact, message string) (string, error) {
	path, err := security.SanitizeArtifactPath(artifact.Name)
	if err != nil {
		return "", apperr.Validation(err.Error(), "name")
	}

	version, err := c.store.FileVersion(ctx, project, path)
	if err != nil {
		if !errors.Is(err, ErrFileNotFound) {
			return "", apperr.Remote("push "+path, err)
		}
		version = ""
	}

	commit, err := c.store.PutFile(ctx, project, path, artifact.Content, message, version)
	if err != nil {
		return "", apperr.Remote("push "+path, err)
	}
	log.Printf("artifactstore: pushed %s to %s (commit %s)", path, project, short(commit))
	return commit, nil
}

// LatestIntegrationMarker returns the tip of the default branch once it
// reflects expected. On deadline the last observed tip is returned; it is
// an error only if no tip was ever observed.
func (c *Client) LatestIntegrationMarker(ctx context.Context, project, expected string) (string, error) {
	var last string
	var lastErr error
	for i := 0; i < c.polls(); i++ {
		if i > 0 || expected == "" {
			c.sleep(c.pollInterval)
		}
		head, err := c.store.HeadCommit(ctx, project)
		if err != nil {
			lastErr = err
		} else {
			last = head
			if expected == "" || head == expected {
				return head, nil
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	if last != "" {
		log.Printf("artifactstore: head of %s did not reach %s within %s, using %s", project, short(expected), c.settleTimeout, short(last))
		return last, nil
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return "", apperr.Remote("get commit", lastErr)
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
