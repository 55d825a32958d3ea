package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kurihiro0119/git-metrics/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence contract for repositories, normalized
// commit facts and derived aggregates. Implementations exist for SQLite,
// PostgreSQL and an in-memory map.
type Store interface {
	// Repository registry

	// UpsertRepository registers a repository keyed by URL. Registering a
	// URL that already exists reactivates the row and refreshes its name
	// and token instead of creating a duplicate. The stored row, with its
	// assigned ID, is returned.
	UpsertRepository(ctx context.Context, repo *domain.Repository) (*domain.Repository, error)
	GetRepositories(ctx context.Context, activeOnly bool) ([]*domain.Repository, error)
	GetRepository(ctx context.Context, id int64) (*domain.Repository, error)
	DeactivateRepository(ctx context.Context, id int64) error
	UpdateRepositorySyncTime(ctx context.Context, id int64, syncedAt time.Time) error

	// Commit facts

	// InsertCommit stores one commit, keyed by (repo_id, sha). A duplicate
	// insert is not an error: it reports inserted=false and leaves the
	// existing row untouched.
	InsertCommit(ctx context.Context, commit *domain.Commit) (id int64, inserted bool, err error)
	InsertFileChanges(ctx context.Context, commitID int64, files []domain.FileChange) error
	GetCommits(ctx context.Context, repoID int64, since *time.Time) ([]*domain.Commit, error)
	GetFileActivity(ctx context.Context, repoID int64, since *time.Time) ([]*domain.FileActivity, error)

	// Derived aggregates

	// ReplaceAggregates atomically swaps all three aggregate tables for a
	// repository. Readers never observe a partially rebuilt state.
	ReplaceAggregates(ctx context.Context, repoID int64, contributors []*domain.ContributorAggregate, hotspots []*domain.FileHotspot, dailies []*domain.DailyMetric) error
	GetContributorAggregates(ctx context.Context, repoID int64) ([]*domain.ContributorAggregate, error)
	GetFileHotspots(ctx context.Context, repoID int64, limit int) ([]*domain.FileHotspot, error)
	GetDailyMetrics(ctx context.Context, repoID int64, days int) ([]*domain.DailyMetric, error)

	Migrate(ctx context.Context) error
	Close() error
}
