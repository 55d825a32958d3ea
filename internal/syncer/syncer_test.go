package syncer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/git-metrics/internal/aggregator"
	"github.com/kurihiro0119/git-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/git-metrics/internal/errors"
	"github.com/kurihiro0119/git-metrics/internal/provider"
	"github.com/kurihiro0119/git-metrics/internal/storage"
	"github.com/kurihiro0119/git-metrics/internal/storage/memory"
)

// stubProvider serves canned fetch results. When block is non-nil,
// FetchCommits waits until it is closed.
type stubProvider struct {
	mu     sync.Mutex
	result *domain.FetchResult
	err    error
	block  chan struct{}
	since  *time.Time
}

func (p *stubProvider) ValidateAccess(ctx context.Context, repoURL, token string) (bool, error) {
	return true, nil
}

func (p *stubProvider) GetRepositoryInfo(ctx context.Context, repoURL, token string) (*domain.RepoInfo, error) {
	return &domain.RepoInfo{Name: "widgets"}, nil
}

func (p *stubProvider) FetchCommits(ctx context.Context, repoURL, token string, since *time.Time, limit int) (*domain.FetchResult, error) {
	p.mu.Lock()
	p.since = since
	block := p.block
	p.mu.Unlock()
	if block != nil {
		<-block
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func (p *stubProvider) lastSince() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.since
}

func stubFactory(p provider.Provider) provider.Factory {
	return func(name domain.ProviderName) (provider.Provider, error) {
		return p, nil
	}
}

func testSyncer(t *testing.T, prov provider.Provider) (*Syncer, storage.Store) {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := aggregator.New(store, logger)
	return New(store, stubFactory(prov), engine, logger, 1000), store
}

func seedRepo(t *testing.T, store storage.Store) *domain.Repository {
	t.Helper()
	repo, err := store.UpsertRepository(context.Background(), &domain.Repository{
		Name:     "widgets",
		URL:      "https://github.com/acme/widgets",
		Provider: domain.ProviderGitHub,
	})
	require.NoError(t, err)
	return repo
}

// waitForDone polls until the task leaves the running state.
func waitForDone(t *testing.T, s *Syncer, repoID int64) *domain.SyncTask {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task := s.Status(repoID)
		if task != nil && task.Status != domain.SyncRunning {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sync did not finish in time")
	return nil
}

func fetchResult(commits ...domain.CommitRecord) *domain.FetchResult {
	return &domain.FetchResult{Commits: commits}
}

func commitRecord(sha, email string, date time.Time) domain.CommitRecord {
	return domain.CommitRecord{
		SHA:          sha,
		AuthorName:   "Alice",
		AuthorEmail:  email,
		Message:      "Add feature",
		CommitDate:   date,
		LinesAdded:   10,
		LinesDeleted: 2,
		LinesChanged: 12,
		FilesChanged: 1,
		Files: []domain.FileChangeRecord{
			{FilePath: "main.go", LinesAdded: 10, LinesDeleted: 2, Status: domain.ChangeModified},
		},
	}
}

func TestSyncLifecycle(t *testing.T) {
	now := time.Now().UTC()
	prov := &stubProvider{result: fetchResult(
		commitRecord("c1", "alice@example.com", now.Add(-2*time.Hour)),
		commitRecord("c2", "alice@example.com", now.Add(-1*time.Hour)),
	)}
	s, store := testSyncer(t, prov)
	repo := seedRepo(t, store)

	task, err := s.StartSync(repo.ID, false)
	require.NoError(t, err)
	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, domain.SyncRunning, task.Status)

	done := waitForDone(t, s, repo.ID)
	assert.Equal(t, domain.SyncCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 2, done.CommitsProcessed)
	assert.Equal(t, "Sync completed. Processed 2 new commits.", done.Message)

	commits, err := store.GetCommits(context.Background(), repo.ID, nil)
	require.NoError(t, err)
	assert.Len(t, commits, 2)

	contributors, err := store.GetContributorAggregates(context.Background(), repo.ID)
	require.NoError(t, err)
	require.Len(t, contributors, 1)
	assert.Equal(t, 2, contributors[0].TotalCommits)

	updated, err := store.GetRepository(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastSync)
}

func TestSyncIncrementalUsesLastSyncTime(t *testing.T) {
	now := time.Now().UTC()
	prov := &stubProvider{result: fetchResult(commitRecord("c1", "alice@example.com", now))}
	s, store := testSyncer(t, prov)
	repo := seedRepo(t, store)

	lastSync := now.Add(-24 * time.Hour)
	require.NoError(t, store.UpdateRepositorySyncTime(context.Background(), repo.ID, lastSync))

	_, err := s.StartSync(repo.ID, false)
	require.NoError(t, err)
	waitForDone(t, s, repo.ID)

	since := prov.lastSince()
	require.NotNil(t, since)
	assert.True(t, since.Equal(lastSync))
}

func TestSyncFullIgnoresLastSyncTime(t *testing.T) {
	now := time.Now().UTC()
	prov := &stubProvider{result: fetchResult(commitRecord("c1", "alice@example.com", now))}
	s, store := testSyncer(t, prov)
	repo := seedRepo(t, store)

	require.NoError(t, store.UpdateRepositorySyncTime(context.Background(), repo.ID, now.Add(-24*time.Hour)))

	_, err := s.StartSync(repo.ID, true)
	require.NoError(t, err)
	waitForDone(t, s, repo.ID)

	assert.Nil(t, prov.lastSince())
}

func TestSyncDuplicatesNotCounted(t *testing.T) {
	now := time.Now().UTC()
	prov := &stubProvider{result: fetchResult(
		commitRecord("c1", "alice@example.com", now.Add(-2*time.Hour)),
		commitRecord("c2", "alice@example.com", now.Add(-1*time.Hour)),
	)}
	s, store := testSyncer(t, prov)
	repo := seedRepo(t, store)

	_, err := s.StartSync(repo.ID, false)
	require.NoError(t, err)
	first := waitForDone(t, s, repo.ID)
	assert.Equal(t, 2, first.CommitsProcessed)

	// The same commits again: everything is a duplicate.
	_, err = s.StartSync(repo.ID, true)
	require.NoError(t, err)
	second := waitForDone(t, s, repo.ID)
	assert.Equal(t, domain.SyncCompleted, second.Status)
	assert.Equal(t, 0, second.CommitsProcessed)
	assert.Equal(t, "Sync completed. Processed 0 new commits.", second.Message)

	commits, err := store.GetCommits(context.Background(), repo.ID, nil)
	require.NoError(t, err)
	assert.Len(t, commits, 2)
}

func TestSyncTruncatedFetchStillCompletes(t *testing.T) {
	// A page failure mid-fetch truncates the result; whatever was gathered
	// is still stored and the run finishes as completed, not error.
	now := time.Now().UTC()
	prov := &stubProvider{result: &domain.FetchResult{
		Commits: []domain.CommitRecord{
			commitRecord("c1", "alice@example.com", now.Add(-2*time.Hour)),
			commitRecord("c2", "alice@example.com", now.Add(-1*time.Hour)),
		},
		Truncated: true,
	}}
	s, store := testSyncer(t, prov)
	repo := seedRepo(t, store)

	_, err := s.StartSync(repo.ID, false)
	require.NoError(t, err)

	done := waitForDone(t, s, repo.ID)
	assert.Equal(t, domain.SyncCompleted, done.Status)
	assert.Equal(t, 2, done.CommitsProcessed)
	assert.Equal(t, "Sync completed. Processed 2 new commits.", done.Message)

	commits, err := store.GetCommits(context.Background(), repo.ID, nil)
	require.NoError(t, err)
	assert.Len(t, commits, 2)

	updated, err := store.GetRepository(context.Background(), repo.ID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastSync)
}

func TestSyncRepositoryNotFound(t *testing.T) {
	prov := &stubProvider{result: fetchResult()}
	s, _ := testSyncer(t, prov)

	_, err := s.StartSync(999, false)
	require.NoError(t, err)

	done := waitForDone(t, s, 999)
	assert.Equal(t, domain.SyncError, done.Status)
	assert.Equal(t, "Repository not found", done.Message)
}

func TestSyncConflict(t *testing.T) {
	block := make(chan struct{})
	prov := &stubProvider{result: fetchResult(), block: block}
	s, store := testSyncer(t, prov)
	repo := seedRepo(t, store)

	first, err := s.StartSync(repo.ID, false)
	require.NoError(t, err)

	second, err := s.StartSync(repo.ID, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsSyncInProgress(err))
	require.NotNil(t, second)
	assert.Equal(t, first.TaskID, second.TaskID)
	assert.Equal(t, domain.SyncRunning, second.Status)

	close(block)
	done := waitForDone(t, s, repo.ID)
	assert.Equal(t, domain.SyncCompleted, done.Status)

	// The slot is free again after completion.
	_, err = s.StartSync(repo.ID, false)
	require.NoError(t, err)
	waitForDone(t, s, repo.ID)
}

func TestSyncStatusBeforeAnyRun(t *testing.T) {
	prov := &stubProvider{result: fetchResult()}
	s, store := testSyncer(t, prov)
	repo := seedRepo(t, store)

	assert.Nil(t, s.Status(repo.ID))
}
