package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/git-metrics/internal/aggregator"
	"github.com/kurihiro0119/git-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/git-metrics/internal/errors"
	"github.com/kurihiro0119/git-metrics/internal/provider"
	"github.com/kurihiro0119/git-metrics/internal/storage"
	"github.com/kurihiro0119/git-metrics/internal/storage/memory"
	"github.com/kurihiro0119/git-metrics/internal/syncer"
)

// stubProvider fakes hosting-service access for handler tests.
type stubProvider struct {
	accessOK bool
	result   *domain.FetchResult
	block    chan struct{}
}

func (p *stubProvider) ValidateAccess(ctx context.Context, repoURL, token string) (bool, error) {
	return p.accessOK, nil
}

func (p *stubProvider) GetRepositoryInfo(ctx context.Context, repoURL, token string) (*domain.RepoInfo, error) {
	return &domain.RepoInfo{Name: "widgets", FullName: "acme/widgets", Language: "Go"}, nil
}

func (p *stubProvider) FetchCommits(ctx context.Context, repoURL, token string, since *time.Time, limit int) (*domain.FetchResult, error) {
	if p.block != nil {
		<-p.block
	}
	if p.result != nil {
		return p.result, nil
	}
	return &domain.FetchResult{}, nil
}

type testAPI struct {
	router *gin.Engine
	store  storage.Store
	engine *aggregator.Engine
}

func newTestAPI(t *testing.T, prov *stubProvider) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := aggregator.New(store, logger)
	factory := func(name domain.ProviderName) (provider.Provider, error) {
		return prov, nil
	}
	sync := syncer.New(store, factory, engine, logger, 1000)
	handler := NewHandler(store, factory, sync, engine)
	return &testAPI{router: SetupRoutes(handler), store: store, engine: engine}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func (a *testAPI) seedRepo(t *testing.T) *domain.Repository {
	t.Helper()
	repo, err := a.store.UpsertRepository(context.Background(), &domain.Repository{
		Name:     "widgets",
		URL:      "https://github.com/acme/widgets",
		Provider: domain.ProviderGitHub,
	})
	require.NoError(t, err)
	return repo
}

func (a *testAPI) seedCommits(t *testing.T, repoID int64) {
	t.Helper()
	base := time.Now().UTC().AddDate(0, 0, -5)
	commits := []domain.Commit{
		{RepoID: repoID, SHA: "c1", AuthorName: "Alice", AuthorEmail: "alice@example.com",
			Message: "Add feature", CommitDate: base, LinesAdded: 10, LinesDeleted: 2, LinesChanged: 12, FilesChanged: 1},
		{RepoID: repoID, SHA: "c2", AuthorName: "Bob", AuthorEmail: "bob@example.com",
			Message: "Fix feature", CommitDate: base.Add(time.Hour), LinesAdded: 3, LinesDeleted: 1, LinesChanged: 4, FilesChanged: 1},
	}
	for _, c := range commits {
		c := c
		id, inserted, err := a.store.InsertCommit(context.Background(), &c)
		require.NoError(t, err)
		require.True(t, inserted)
		require.NoError(t, a.store.InsertFileChanges(context.Background(), id, []domain.FileChange{
			{FilePath: "main.go", LinesAdded: c.LinesAdded, LinesDeleted: c.LinesDeleted, Status: domain.ChangeModified},
		}))
	}
	require.NoError(t, a.engine.RebuildAggregates(context.Background(), repoID))
}

func TestHealthCheck(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})

	w := a.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestCreateRepository(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})

	w := a.do(t, http.MethodPost, "/api/repositories", gin.H{
		"name": "ignored", "url": "https://github.com/acme/widgets",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Repository added successfully", data["message"])
	// Provider metadata wins over the requested name.
	assert.Equal(t, "widgets", data["name"])

	repos, err := a.store.GetRepositories(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, domain.ProviderGitHub, repos[0].Provider)
}

func TestCreateRepositoryAccessDenied(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: false})

	w := a.do(t, http.MethodPost, "/api/repositories", gin.H{
		"url": "https://github.com/acme/private",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateRepositoryMissingURL(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})

	w := a.do(t, http.MethodPost, "/api/repositories", gin.H{"name": "widgets"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRepositoriesActiveFilter(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})
	repo := a.seedRepo(t)
	require.NoError(t, a.store.DeactivateRepository(context.Background(), repo.ID))

	w := a.do(t, http.MethodGet, "/api/repositories", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["data"])

	w = a.do(t, http.MethodGet, "/api/repositories?active_only=false", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["data"], 1)
}

func TestGetRepository(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})
	repo := a.seedRepo(t)

	w := a.do(t, http.MethodGet, "/api/repositories/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, repo.Name, data["name"])

	w = a.do(t, http.MethodGet, "/api/repositories/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/api/repositories/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteRepository(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})
	a.seedRepo(t)

	w := a.do(t, http.MethodDelete, "/api/repositories/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	repos, err := a.store.GetRepositories(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, repos)

	w = a.do(t, http.MethodDelete, "/api/repositories/1", nil)
	assert.Equal(t, http.StatusOK, w.Code) // deactivation is idempotent
}

func TestStartSyncAndStatus(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})
	repo := a.seedRepo(t)

	w := a.do(t, http.MethodPost, "/api/sync", gin.H{"repo_id": repo.ID})
	require.Equal(t, http.StatusAccepted, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Sync started", data["message"])
	task := data["task"].(map[string]interface{})
	assert.NotEmpty(t, task["task_id"])

	deadline := time.Now().Add(5 * time.Second)
	for {
		w = a.do(t, http.MethodGet, "/api/sync/1/status", nil)
		require.Equal(t, http.StatusOK, w.Code)
		status := decodeBody(t, w)["data"].(map[string]interface{})["status"]
		if status == string(domain.SyncCompleted) {
			break
		}
		require.NotEqual(t, string(domain.SyncError), status)
		require.True(t, time.Now().Before(deadline), "sync did not finish in time")
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartSyncValidation(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})

	w := a.do(t, http.MethodPost, "/api/sync", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartSyncConflict(t *testing.T) {
	block := make(chan struct{})
	a := newTestAPI(t, &stubProvider{accessOK: true, block: block})
	repo := a.seedRepo(t)

	w := a.do(t, http.MethodPost, "/api/sync", gin.H{"repo_id": repo.ID})
	require.Equal(t, http.StatusAccepted, w.Code)
	first := decodeBody(t, w)["data"].(map[string]interface{})["task"].(map[string]interface{})

	w = a.do(t, http.MethodPost, "/api/sync", gin.H{"repo_id": repo.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, string(apperrors.ErrCodeSyncInProgress), body["error"].(map[string]interface{})["code"])
	running := body["data"].(map[string]interface{})
	assert.Equal(t, first["task_id"], running["task_id"])

	close(block)
}

func TestSyncStatusNotStarted(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})
	a.seedRepo(t)

	w := a.do(t, http.MethodGet, "/api/sync/1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, string(domain.SyncNotStarted), data["status"])
}

func TestRepoMetricsEndpoints(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})
	repo := a.seedRepo(t)
	a.seedCommits(t, repo.ID)

	w := a.do(t, http.MethodGet, "/api/metrics/1/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total_commits"])
	assert.Equal(t, float64(2), data["total_contributors"])
	assert.Equal(t, float64(13), data["total_lines_added"])

	for _, path := range []string{
		"/api/metrics/1/contributors",
		"/api/metrics/1/hotspots",
		"/api/metrics/1/daily",
		"/api/metrics/1/churn",
		"/api/metrics/1/velocity",
		"/api/metrics/1/bus-factor",
		"/api/metrics/1/commit-patterns",
		"/api/metrics/1/quality",
		"/api/metrics/1/contributor-insights",
		"/api/metrics/1/comprehensive",
	} {
		w := a.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, w.Code, "GET %s", path)
	}
}

func TestComprehensiveRequiresCommits(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})
	repo := a.seedRepo(t)

	// A repository with no synced commits has no comprehensive report.
	w := a.do(t, http.MethodGet, "/api/metrics/1/comprehensive", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	a.seedCommits(t, repo.ID)
	w = a.do(t, http.MethodGet, "/api/metrics/1/comprehensive", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	summary := data["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["total_commits"])
}

func TestRepoMetricsUnknownRepository(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})

	w := a.do(t, http.MethodGet, "/api/metrics/7/summary", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCrossRepoEndpoints(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})
	repo := a.seedRepo(t)
	a.seedCommits(t, repo.ID)

	w := a.do(t, http.MethodGet, "/api/metrics/all/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	overall := data["overall"].(map[string]interface{})
	assert.Equal(t, float64(2), overall["total_commits"])

	w = a.do(t, http.MethodGet, "/api/metrics/all/comparison?metric=churn", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/metrics/all/comparison?metric=stars", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/metrics/all/contributors", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["data"], 2)

	w = a.do(t, http.MethodGet, "/api/metrics/all/churn", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestContributorProfileEndpoint(t *testing.T) {
	a := newTestAPI(t, &stubProvider{accessOK: true})
	repo := a.seedRepo(t)
	a.seedCommits(t, repo.ID)

	w := a.do(t, http.MethodGet, "/api/metrics/contributor/alice@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Alice", data["author_name"])
	assert.Equal(t, float64(1), data["repositories_count"])

	w = a.do(t, http.MethodGet, "/api/metrics/contributor/nobody@example.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
