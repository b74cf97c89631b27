package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/artifactstore"
	"taskdeploy-backend/metrics"
	"taskdeploy-backend/models"
	"taskdeploy-backend/notifier"
	"taskdeploy-backend/publication"
)

const testOwner = "octo"

type fakeGenerator struct {
	mu        sync.Mutex
	app       string
	appErr    error
	readmeErr error
	calls     int
}

func (g *fakeGenerator) Generate(ctx context.Context, brief string, checks []string, attachments []models.Attachment) ([]models.Artifact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.appErr != nil {
		return nil, g.appErr
	}
	return []models.Artifact{models.TextArtifact("index.html", g.app)}, nil
}

func (g *fakeGenerator) GenerateReadme(ctx context.Context, brief string, checks []string, projectName string, round int) (models.Artifact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.readmeErr != nil {
		return models.Artifact{}, g.readmeErr
	}
	return models.TextArtifact("README.md", "# "+projectName), nil
}

type harness struct {
	store     *artifactstore.MemoryStore
	generator *fakeGenerator
	metrics   *metrics.Metrics
	orch      *Orchestrator
}

func pagesURL(project string) string {
	return "https://" + testOwner + ".github.io/" + project + "/"
}

func repoURL(project string) string {
	return "https://github.com/" + testOwner + "/" + project
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	noSleep := func(time.Duration) {}
	store := artifactstore.NewMemoryStore(testOwner, "https://github.com", pagesURL)
	client := artifactstore.NewClient(store, artifactstore.ClientOptions{
		Owner:         testOwner,
		RepoURL:       repoURL,
		SettleTimeout: 2 * time.Second,
		PollInterval:  100 * time.Millisecond,
		Sleep:         noSleep,
	})
	m := metrics.New()
	gen := &fakeGenerator{app: "<!DOCTYPE html><html><body>todo app goes here, long enough</body></html>"}
	orch := NewOrchestrator(gen, client, publication.NewEnabler(store, pagesURL),
		notifier.New(notifier.Options{Sleep: noSleep, Observer: m}),
		Options{
			RepoURL:           repoURL,
			PagesURL:          pagesURL,
			NotifyMaxAttempts: 3,
			LicenseYear:       2025,
			LicenseHolder:     "Test Holder",
			Metrics:           m,
		})
	return &harness{store: store, generator: gen, metrics: m, orch: orch}
}

func callbackServer(t *testing.T) (*httptest.Server, func() []models.ResultRecord) {
	t.Helper()
	var mu sync.Mutex
	var got []models.ResultRecord
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec models.ResultRecord
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		mu.Lock()
		got = append(got, rec)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []models.ResultRecord {
		mu.Lock()
		defer mu.Unlock()
		return append([]models.ResultRecord(nil), got...)
	}
}

func todoRequest(round int, evalURL string) models.TaskRequest {
	return models.TaskRequest{
		Email:         "a@b.c",
		Task:          "todo",
		Round:         round,
		Nonce:         "x1",
		Brief:         "Build a todo app",
		Checks:        []string{"has title"},
		EvaluationURL: evalURL,
	}
}

func TestBootstrapPublishesAndNotifies(t *testing.T) {
	h := newHarness(t)
	srv, received := callbackServer(t)

	res := h.orch.Run(context.Background(), todoRequest(1, srv.URL))
	require.True(t, res.IsSuccess(), "run failed: %v", res.Err())

	rec := res.Value()
	assert.Equal(t, "https://github.com/octo/todo_x1", rec.RepoURL)
	assert.Equal(t, "https://octo.github.io/todo_x1/", rec.PagesURL)
	assert.Equal(t, "a@b.c", rec.Email)
	assert.Equal(t, 1, rec.Round)
	assert.NotEmpty(t, rec.CommitSHA)

	head, err := h.store.HeadCommit(context.Background(), "todo_x1")
	require.NoError(t, err)
	assert.Equal(t, head, rec.CommitSHA)

	assert.Equal(t, []string{"LICENSE", "README.md", "index.html"}, h.store.Paths("todo_x1"))
	assert.Equal(t, 3, h.store.CommitCount("todo_x1"))
	assert.True(t, h.store.Published("todo_x1"))

	license, ok := h.store.File("todo_x1", "LICENSE")
	require.True(t, ok)
	assert.Contains(t, string(license), "Copyright (c) 2025 Test Holder")

	calls := received()
	require.Len(t, calls, 1)
	assert.Equal(t, rec, calls[0])
}

func TestUpdateRoundAddsNoLicense(t *testing.T) {
	h := newHarness(t)
	first := h.orch.Run(context.Background(), todoRequest(1, ""))
	require.True(t, first.IsSuccess())

	h.generator.app = "<!DOCTYPE html><html><body>updated todo app with more features</body></html>"
	second := h.orch.Run(context.Background(), todoRequest(2, ""))
	require.True(t, second.IsSuccess(), "update failed: %v", second.Err())

	assert.Equal(t, 5, h.store.CommitCount("todo_x1"))
	assert.NotEqual(t, first.Value().CommitSHA, second.Value().CommitSHA)
	assert.Equal(t, 2, second.Value().Round)

	app, ok := h.store.File("todo_x1", "index.html")
	require.True(t, ok)
	assert.Contains(t, string(app), "updated todo app")
}

func TestInvalidRoundMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	res := h.orch.Run(context.Background(), todoRequest(3, ""))
	require.False(t, res.IsSuccess())
	assert.Equal(t, apperr.KindInvalidRound, res.Kind())
	assert.Equal(t, "Invalid round: 3. Must be 1 or 2", res.Err().Message)
	assert.Zero(t, h.generator.calls)
	assert.Empty(t, h.store.Paths("todo_x1"))
}

func TestGenerationFailureAbortsBeforeStore(t *testing.T) {
	h := newHarness(t)
	srv, received := callbackServer(t)
	h.generator.appErr = apperr.GenerationInvalid("generate app", "Generated code is too short or empty")

	res := h.orch.Run(context.Background(), todoRequest(1, srv.URL))
	require.False(t, res.IsSuccess())
	assert.Equal(t, apperr.KindGenerationInvalid, res.Kind())
	_, err := h.store.GetProject(context.Background(), "todo_x1")
	assert.ErrorIs(t, err, artifactstore.ErrProjectNotFound)
	assert.Empty(t, received())
}

func TestReadmeFailureIsRemote(t *testing.T) {
	h := newHarness(t)
	h.generator.readmeErr = apperr.Remote("generate readme", errors.New("boom"))

	res := h.orch.Run(context.Background(), todoRequest(1, ""))
	require.False(t, res.IsSuccess())
	assert.Equal(t, apperr.KindRemoteService, res.Kind())
	assert.True(t, res.Err().Retryable())
}

func TestBootstrapTwiceReusesProject(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.orch.Run(context.Background(), todoRequest(1, "")).IsSuccess())

	res := h.orch.Run(context.Background(), todoRequest(1, ""))
	require.True(t, res.IsSuccess(), "rerun failed: %v", res.Err())
	assert.True(t, h.store.Published("todo_x1"))
	assert.Equal(t, 6, h.store.CommitCount("todo_x1"))
}

func TestForeignProjectFails(t *testing.T) {
	h := newHarness(t)
	h.store.AddForeignProject("todo_x1", "mallory")

	res := h.orch.Run(context.Background(), todoRequest(1, ""))
	require.False(t, res.IsSuccess())
	assert.Equal(t, apperr.KindRemoteService, res.Kind())
	assert.Contains(t, res.Err().Error(), "mallory")
	assert.Empty(t, h.store.Paths("todo_x1"))
}

func TestMarkerWaitsForLaggingReads(t *testing.T) {
	h := newHarness(t)
	h.store.SetReadLag(3)

	res := h.orch.Run(context.Background(), todoRequest(1, ""))
	require.True(t, res.IsSuccess())

	head, err := h.store.HeadCommit(context.Background(), "todo_x1")
	require.NoError(t, err)
	assert.Equal(t, head, res.Value().CommitSHA)
}

func TestUpdateOnMissingProjectFails(t *testing.T) {
	h := newHarness(t)
	res := h.orch.Run(context.Background(), todoRequest(2, ""))
	require.False(t, res.IsSuccess())
	assert.Equal(t, apperr.KindRemoteService, res.Kind())
	assert.True(t, strings.HasPrefix(res.Err().Error(), "push "))
}

func TestRunSurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.orch.Run(ctx, todoRequest(1, ""))
	require.True(t, res.IsSuccess(), "run failed: %v", res.Err())
	assert.True(t, h.store.Published("todo_x1"))
}

type failingPages struct{}

func (failingPages) EnablePublication(ctx context.Context, project string) (artifactstore.Publication, error) {
	return artifactstore.Publication{}, errors.New("pages: status 403")
}

// orderedPages records how far the project had settled when publication
// was enabled.
type orderedPages struct {
	store   *artifactstore.MemoryStore
	commits int
}

func (p *orderedPages) EnablePublication(ctx context.Context, project string) (artifactstore.Publication, error) {
	p.commits = p.store.CommitCount(project)
	return p.store.EnablePublication(ctx, project)
}

func TestBootstrapPublicationFailureAborts(t *testing.T) {
	h := newHarness(t)
	srv, received := callbackServer(t)
	h.orch.publisher = publication.NewEnabler(failingPages{}, pagesURL)

	res := h.orch.Run(context.Background(), todoRequest(1, srv.URL))
	require.False(t, res.IsSuccess())
	assert.Equal(t, apperr.KindRemoteService, res.Kind())
	assert.True(t, res.Err().Retryable())
	assert.Contains(t, res.Err().Error(), "pages: status 403")

	// files were pushed before the failure and are not rolled back
	assert.Equal(t, 3, h.store.CommitCount("todo_x1"))
	assert.False(t, h.store.Published("todo_x1"))
	assert.Empty(t, received())
}

func TestBootstrapSucceedsWhenCallbackAlwaysFails(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := h.orch.Run(context.Background(), todoRequest(1, srv.URL))
	require.True(t, res.IsSuccess(), "run failed: %v", res.Err())

	rec := res.Value()
	assert.Equal(t, models.ResultRecord{
		Email:     "a@b.c",
		Task:      "todo",
		Round:     1,
		Nonce:     "x1",
		RepoURL:   "https://github.com/octo/todo_x1",
		CommitSHA: rec.CommitSHA,
		PagesURL:  "https://octo.github.io/todo_x1/",
	}, rec)
	assert.NotEmpty(t, rec.CommitSHA)

	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()
}

func TestBootstrapEnablesPublicationAfterPushSettles(t *testing.T) {
	h := newHarness(t)
	pages := &orderedPages{store: h.store}
	h.orch.publisher = publication.NewEnabler(pages, pagesURL)

	res := h.orch.Run(context.Background(), todoRequest(1, ""))
	require.True(t, res.IsSuccess(), "run failed: %v", res.Err())
	assert.Equal(t, 3, pages.commits)
	assert.True(t, h.store.Published("todo_x1"))

	head, err := h.store.HeadCommit(context.Background(), "todo_x1")
	require.NoError(t, err)
	assert.Equal(t, head, res.Value().CommitSHA)
}
