package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/git-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/git-metrics/internal/errors"
	"github.com/kurihiro0119/git-metrics/internal/storage"
)

// seedCrossRepos builds two repositories with commits plus one empty
// repository and rebuilds their aggregates.
func seedCrossRepos(t *testing.T, e *Engine, store storage.Store, now time.Time) (*domain.Repository, *domain.Repository, *domain.Repository) {
	t.Helper()

	repo1 := testRepo(t, store, "widgets")
	repo2 := testRepo(t, store, "gadgets")
	repo3 := testRepo(t, store, "empty")

	base := now.AddDate(0, 0, -10)
	addCommit(t, store, repo1.ID, "r1c1", "Alice", "alice@example.com", "Add widget core", base, 50, 10,
		change("core.go", 50, 10))
	addCommit(t, store, repo1.ID, "r1c2", "Alice", "alice@example.com", "Polish widget core", base.Add(time.Hour), 5, 5,
		change("core.go", 5, 5))
	addCommit(t, store, repo1.ID, "r1c3", "Bob", "bob@example.com", "Widget docs", base.Add(2*time.Hour), 20, 0,
		change("README.md", 20, 0))
	addCommit(t, store, repo2.ID, "r2c1", "Alice", "alice@example.com", "Add gadget", base.Add(3*time.Hour), 30, 0,
		change("gadget.go", 30, 0))

	require.NoError(t, e.RebuildAggregates(context.Background(), repo1.ID))
	require.NoError(t, e.RebuildAggregates(context.Background(), repo2.ID))
	return repo1, repo2, repo3
}

func TestOverallSummary(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e, store := testEngine(t, now)
	repo1, repo2, repo3 := seedCrossRepos(t, e, store, now)

	summary, err := e.OverallSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Overall.TotalRepositories)
	assert.Equal(t, 4, summary.Overall.TotalCommits)
	assert.Equal(t, 2, summary.Overall.TotalContributors)
	assert.Equal(t, 105, summary.Overall.TotalLinesAdded)
	assert.Equal(t, 15, summary.Overall.TotalLinesDeleted)

	require.Len(t, summary.Repositories, 3)
	assert.Equal(t, repo1.ID, summary.Repositories[0].ID)
	assert.Equal(t, 3, summary.Repositories[0].Commits)
	assert.Equal(t, repo2.ID, summary.Repositories[1].ID)
	assert.Equal(t, repo3.ID, summary.Repositories[2].ID)
	assert.Zero(t, summary.Repositories[2].Commits)
	assert.Nil(t, summary.Repositories[2].FirstCommit)
}

func TestComparison(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e, store := testEngine(t, now)
	repo1, repo2, repo3 := seedCrossRepos(t, e, store, now)

	entries, err := e.Comparison(context.Background(), domain.CompareCommits)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, repo1.ID, entries[0].ID)
	assert.Equal(t, 3, entries[0].Value)
	assert.Equal(t, repo2.ID, entries[1].ID)
	assert.Equal(t, repo3.ID, entries[2].ID)
	assert.Zero(t, entries[2].Value)

	entries, err = e.Comparison(context.Background(), domain.CompareChurn)
	require.NoError(t, err)
	assert.Equal(t, 90, entries[0].Value)
	assert.Equal(t, 30, entries[1].Value)

	entries, err = e.Comparison(context.Background(), domain.ComparisonMetric("stars"))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Nil(t, entries)
}

func TestCrossRepoContributors(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e, store := testEngine(t, now)
	repo1, repo2, _ := seedCrossRepos(t, e, store, now)

	contributors, err := e.CrossRepoContributors(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, contributors, 2)

	alice := contributors[0]
	assert.Equal(t, "alice@example.com", alice.AuthorEmail)
	assert.Equal(t, 2, alice.RepositoriesCount)
	assert.Equal(t, 3, alice.TotalCommits)
	assert.Equal(t, 85, alice.TotalLinesAdded)
	require.Len(t, alice.Repositories, 2)
	// Per-repo breakdown sorted by commits, most first.
	assert.Equal(t, repo1.ID, alice.Repositories[0].RepoID)
	assert.Equal(t, repo2.ID, alice.Repositories[1].RepoID)

	bob := contributors[1]
	assert.Equal(t, 1, bob.RepositoriesCount)
	assert.Equal(t, 1, bob.TotalCommits)
}

func TestCrossRepoContributorsLimit(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e, store := testEngine(t, now)
	seedCrossRepos(t, e, store, now)

	contributors, err := e.CrossRepoContributors(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, contributors, 1)
	assert.Equal(t, "alice@example.com", contributors[0].AuthorEmail)
}

func TestCrossRepoChurn(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e, store := testEngine(t, now)
	repo1, repo2, _ := seedCrossRepos(t, e, store, now)

	report, err := e.CrossRepoChurn(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 30, report.PeriodDays)
	assert.Equal(t, 120, report.TotalChurn)

	// The empty repository is skipped entirely.
	require.Len(t, report.RepositoryChurn, 2)
	assert.Equal(t, repo1.ID, report.RepositoryChurn[0].ID)
	assert.Equal(t, 90, report.RepositoryChurn[0].Churn)
	assert.Equal(t, repo2.ID, report.RepositoryChurn[1].ID)

	require.Len(t, report.ContributorChurn, 2)
	alice := report.ContributorChurn[0]
	assert.Equal(t, "alice@example.com", alice.AuthorEmail)
	assert.Equal(t, 100, alice.Churn)
	assert.Equal(t, 2, alice.Repositories)
	assert.Equal(t, 3, alice.Commits)
}

func TestContributorByEmail(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	e, store := testEngine(t, now)
	repo1, _, _ := seedCrossRepos(t, e, store, now)

	profile, err := e.ContributorByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Alice", profile.AuthorName)
	assert.Equal(t, 2, profile.RepositoriesCount)
	assert.Equal(t, 3, profile.TotalCommits)
	require.Len(t, profile.Repositories, 2)
	assert.Equal(t, repo1.ID, profile.Repositories[0].RepoID)

	// All seeded commits land within the 30-day activity window on one day.
	require.Len(t, profile.RecentActivity, 1)
	assert.Equal(t, 3, profile.RecentActivity[0].Commits)

	missing, err := e.ContributorByEmail(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
