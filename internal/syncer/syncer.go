package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kurihiro0119/git-metrics/internal/aggregator"
	"github.com/kurihiro0119/git-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/git-metrics/internal/errors"
	"github.com/kurihiro0119/git-metrics/internal/provider"
	"github.com/kurihiro0119/git-metrics/internal/storage"
)

// Syncer orchestrates repository sync runs: fetch commits from the hosting
// provider, persist new facts, rebuild aggregates, record the sync time.
// At most one run per repository is in flight at a time.
type Syncer struct {
	store      storage.Store
	providers  provider.Factory
	engine     *aggregator.Engine
	tracker    *TaskTracker
	logger     *slog.Logger
	fetchLimit int
}

// New creates a syncer
func New(store storage.Store, providers provider.Factory, engine *aggregator.Engine, logger *slog.Logger, fetchLimit int) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if fetchLimit <= 0 {
		fetchLimit = 1000
	}
	return &Syncer{
		store:      store,
		providers:  providers,
		engine:     engine,
		tracker:    NewTaskTracker(),
		logger:     logger,
		fetchLimit: fetchLimit,
	}
}

// StartSync begins a background sync run for a repository. It returns the
// task immediately; progress is observed through Status. A second call while
// a run is in flight returns ErrCodeSyncInProgress together with the running
// task.
func (s *Syncer) StartSync(repoID int64, fullSync bool) (*domain.SyncTask, error) {
	task, started := s.tracker.TryStart(repoID)
	if !started {
		return task, apperrors.NewSyncInProgressError(repoID)
	}

	// The run outlives the triggering request.
	go s.run(context.Background(), repoID, fullSync)

	return task, nil
}

// Status returns the current task for a repository, or nil when no sync has
// been started since the process came up.
func (s *Syncer) Status(repoID int64) *domain.SyncTask {
	return s.tracker.Get(repoID)
}

func (s *Syncer) run(ctx context.Context, repoID int64, fullSync bool) {
	repo, err := s.store.GetRepository(ctx, repoID)
	if err != nil {
		if err == storage.ErrNotFound {
			s.tracker.Fail(repoID, "Repository not found")
		} else {
			s.tracker.Fail(repoID, fmt.Sprintf("Sync failed: %v", err))
		}
		return
	}

	prov, err := s.providers(repo.Provider)
	if err != nil {
		s.tracker.Fail(repoID, fmt.Sprintf("Sync failed: %v", err))
		return
	}

	var since *time.Time
	if !fullSync && repo.LastSync != nil {
		since = repo.LastSync
	}

	s.tracker.Update(repoID, 10, "Fetching commits...")

	result, err := prov.FetchCommits(ctx, repo.URL, repo.AccessToken, since, s.fetchLimit)
	if err != nil {
		s.tracker.Fail(repoID, fmt.Sprintf("Sync failed: %v", err))
		return
	}
	if result.Truncated {
		s.logger.Warn("commit fetch truncated", "repo_id", repoID, "fetched", len(result.Commits))
	}
	for _, skipped := range result.Skipped {
		s.logger.Warn("commit skipped during fetch", "repo_id", repoID, "sha", skipped.SHA, "reason", skipped.Reason)
	}

	s.tracker.Update(repoID, 50, fmt.Sprintf("Processing %d commits...", len(result.Commits)))

	// Duplicates are swallowed silently and do not count as processed.
	processed := 0
	for _, record := range result.Commits {
		commit := &domain.Commit{
			RepoID:         repoID,
			SHA:            record.SHA,
			AuthorName:     record.AuthorName,
			AuthorEmail:    record.AuthorEmail,
			CommitterName:  record.CommitterName,
			CommitterEmail: record.CommitterEmail,
			Message:        record.Message,
			CommitDate:     record.CommitDate,
			LinesAdded:     record.LinesAdded,
			LinesDeleted:   record.LinesDeleted,
			LinesChanged:   record.LinesChanged,
			FilesChanged:   record.FilesChanged,
		}
		commitID, inserted, err := s.store.InsertCommit(ctx, commit)
		if err != nil {
			s.tracker.Fail(repoID, fmt.Sprintf("Sync failed: %v", err))
			return
		}
		if !inserted {
			continue
		}
		processed++

		files := make([]domain.FileChange, 0, len(record.Files))
		for _, f := range record.Files {
			files = append(files, domain.FileChange{
				FilePath:     f.FilePath,
				LinesAdded:   f.LinesAdded,
				LinesDeleted: f.LinesDeleted,
				Status:       f.Status,
			})
		}
		if err := s.store.InsertFileChanges(ctx, commitID, files); err != nil {
			s.tracker.Fail(repoID, fmt.Sprintf("Sync failed: %v", err))
			return
		}
	}

	s.tracker.Update(repoID, 80, "Updating metrics...")

	if err := s.engine.RebuildAggregates(ctx, repoID); err != nil {
		s.tracker.Fail(repoID, fmt.Sprintf("Sync failed: %v", err))
		return
	}

	// The sync timestamp is the completion wall-clock time, not the newest
	// commit date, so the next incremental run re-covers any fetch gap.
	if err := s.store.UpdateRepositorySyncTime(ctx, repoID, time.Now().UTC()); err != nil {
		s.tracker.Fail(repoID, fmt.Sprintf("Sync failed: %v", err))
		return
	}

	s.tracker.Complete(repoID, fmt.Sprintf("Sync completed. Processed %d new commits.", processed), processed)
	s.logger.Info("sync completed", "repo_id", repoID, "commits_processed", processed)
}
