package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kurihiro0119/git-metrics/internal/domain"
	"github.com/kurihiro0119/git-metrics/internal/storage"
)

// memoryStore implements the Store interface with in-process maps. It backs
// the "memory" storage type and doubles as the test store.
type memoryStore struct {
	mu sync.RWMutex

	nextRepoID   int64
	nextCommitID int64
	nextFileID   int64

	repos        map[int64]*domain.Repository
	reposByURL   map[string]int64
	commits      map[int64]*domain.Commit
	commitBySHA  map[commitKey]int64
	fileChanges  map[int64][]domain.FileChange // commit id -> changes
	contributors map[int64][]*domain.ContributorAggregate
	hotspots     map[int64][]*domain.FileHotspot
	dailies      map[int64][]*domain.DailyMetric
}

type commitKey struct {
	repoID int64
	sha    string
}

// NewStore creates a new in-memory store instance
func NewStore() storage.Store {
	return &memoryStore{
		repos:        make(map[int64]*domain.Repository),
		reposByURL:   make(map[string]int64),
		commits:      make(map[int64]*domain.Commit),
		commitBySHA:  make(map[commitKey]int64),
		fileChanges:  make(map[int64][]domain.FileChange),
		contributors: make(map[int64][]*domain.ContributorAggregate),
		hotspots:     make(map[int64][]*domain.FileHotspot),
		dailies:      make(map[int64][]*domain.DailyMetric),
	}
}

// Migrate is a no-op for the in-memory store
func (s *memoryStore) Migrate(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store
func (s *memoryStore) Close() error { return nil }

// UpsertRepository registers a repository, reactivating an existing row for
// the same URL.
func (s *memoryStore) UpsertRepository(ctx context.Context, repo *domain.Repository) (*domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.reposByURL[repo.URL]; ok {
		existing := s.repos[id]
		existing.Name = repo.Name
		existing.Provider = repo.Provider
		existing.AccessToken = repo.AccessToken
		existing.IsActive = true
		out := *existing
		return &out, nil
	}

	s.nextRepoID++
	stored := &domain.Repository{
		ID:          s.nextRepoID,
		Name:        repo.Name,
		URL:         repo.URL,
		Provider:    repo.Provider,
		AccessToken: repo.AccessToken,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	s.repos[stored.ID] = stored
	s.reposByURL[stored.URL] = stored.ID

	out := *stored
	return &out, nil
}

// GetRepositories retrieves repositories, optionally only active ones
func (s *memoryStore) GetRepositories(ctx context.Context, activeOnly bool) ([]*domain.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var repos []*domain.Repository
	for _, r := range s.repos {
		if activeOnly && !r.IsActive {
			continue
		}
		out := *r
		repos = append(repos, &out)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].ID < repos[j].ID })
	return repos, nil
}

// GetRepository retrieves a repository by ID
func (s *memoryStore) GetRepository(ctx context.Context, id int64) (*domain.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.repos[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *r
	return &out, nil
}

// DeactivateRepository soft-deletes a repository
func (s *memoryStore) DeactivateRepository(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.repos[id]
	if !ok {
		return storage.ErrNotFound
	}
	r.IsActive = false
	return nil
}

// UpdateRepositorySyncTime records the completion time of a sync run
func (s *memoryStore) UpdateRepositorySyncTime(ctx context.Context, id int64, syncedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.repos[id]
	if !ok {
		return storage.ErrNotFound
	}
	t := syncedAt
	r.LastSync = &t
	return nil
}

// InsertCommit stores a commit, ignoring duplicates on (repo_id, sha)
func (s *memoryStore) InsertCommit(ctx context.Context, c *domain.Commit) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := commitKey{repoID: c.RepoID, sha: c.SHA}
	if id, ok := s.commitBySHA[key]; ok {
		return id, false, nil
	}

	s.nextCommitID++
	stored := *c
	stored.ID = s.nextCommitID
	s.commits[stored.ID] = &stored
	s.commitBySHA[key] = stored.ID
	return stored.ID, true, nil
}

// InsertFileChanges stores the file changes of one commit
func (s *memoryStore) InsertFileChanges(ctx context.Context, commitID int64, files []domain.FileChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range files {
		s.nextFileID++
		f.ID = s.nextFileID
		f.CommitID = commitID
		s.fileChanges[commitID] = append(s.fileChanges[commitID], f)
	}
	return nil
}

// GetCommits retrieves commits for a repository, newest first
func (s *memoryStore) GetCommits(ctx context.Context, repoID int64, since *time.Time) ([]*domain.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var commits []*domain.Commit
	for _, c := range s.commits {
		if c.RepoID != repoID {
			continue
		}
		if since != nil && c.CommitDate.Before(*since) {
			continue
		}
		out := *c
		commits = append(commits, &out)
	}
	sort.Slice(commits, func(i, j int) bool { return commits[i].CommitDate.After(commits[j].CommitDate) })
	return commits, nil
}

// GetFileActivity retrieves file changes joined to commit author and date
func (s *memoryStore) GetFileActivity(ctx context.Context, repoID int64, since *time.Time) ([]*domain.FileActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var activity []*domain.FileActivity
	for commitID, files := range s.fileChanges {
		c, ok := s.commits[commitID]
		if !ok || c.RepoID != repoID {
			continue
		}
		if since != nil && c.CommitDate.Before(*since) {
			continue
		}
		for _, f := range files {
			activity = append(activity, &domain.FileActivity{
				RepoID:       repoID,
				FilePath:     f.FilePath,
				AuthorEmail:  c.AuthorEmail,
				CommitDate:   c.CommitDate,
				LinesAdded:   f.LinesAdded,
				LinesDeleted: f.LinesDeleted,
			})
		}
	}
	sort.Slice(activity, func(i, j int) bool { return activity[i].CommitDate.After(activity[j].CommitDate) })
	return activity, nil
}

// ReplaceAggregates swaps all aggregate rows for a repository atomically
func (s *memoryStore) ReplaceAggregates(ctx context.Context, repoID int64, contributors []*domain.ContributorAggregate, hotspots []*domain.FileHotspot, dailies []*domain.DailyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := make([]*domain.ContributorAggregate, len(contributors))
	for i, c := range contributors {
		out := *c
		out.RepoID = repoID
		cs[i] = &out
	}
	hs := make([]*domain.FileHotspot, len(hotspots))
	for i, h := range hotspots {
		out := *h
		out.RepoID = repoID
		hs[i] = &out
	}
	ds := make([]*domain.DailyMetric, len(dailies))
	for i, d := range dailies {
		out := *d
		out.RepoID = repoID
		ds[i] = &out
	}

	s.contributors[repoID] = cs
	s.hotspots[repoID] = hs
	s.dailies[repoID] = ds
	return nil
}

// GetContributorAggregates retrieves contributor rollups, most commits first
func (s *memoryStore) GetContributorAggregates(ctx context.Context, repoID int64) ([]*domain.ContributorAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.contributors[repoID]
	result := make([]*domain.ContributorAggregate, len(stored))
	for i, c := range stored {
		out := *c
		result[i] = &out
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalCommits != result[j].TotalCommits {
			return result[i].TotalCommits > result[j].TotalCommits
		}
		return result[i].AuthorEmail < result[j].AuthorEmail
	})
	return result, nil
}

// GetFileHotspots retrieves the most changed files
func (s *memoryStore) GetFileHotspots(ctx context.Context, repoID int64, limit int) ([]*domain.FileHotspot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	stored := s.hotspots[repoID]
	result := make([]*domain.FileHotspot, len(stored))
	for i, h := range stored {
		out := *h
		result[i] = &out
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ChangeCount != result[j].ChangeCount {
			return result[i].ChangeCount > result[j].ChangeCount
		}
		return result[i].FilePath < result[j].FilePath
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetDailyMetrics retrieves per-day rollups for the last N days
func (s *memoryStore) GetDailyMetrics(ctx context.Context, repoID int64, days int) ([]*domain.DailyMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	var result []*domain.DailyMetric
	for _, d := range s.dailies[repoID] {
		if d.Date < cutoff {
			continue
		}
		out := *d
		result = append(result, &out)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}
