package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/git-metrics/internal/domain"
	"github.com/kurihiro0119/git-metrics/internal/storage"
)

// postgresStore implements the Store interface for PostgreSQL
type postgresStore struct {
	db *sql.DB
}

// NewStore creates a new PostgreSQL store instance
func NewStore(connStr string) (storage.Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &postgresStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate creates the schema
func (s *postgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		provider TEXT NOT NULL DEFAULT 'github',
		access_token TEXT NOT NULL DEFAULT '',
		last_sync TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS commits (
		id BIGSERIAL PRIMARY KEY,
		repo_id BIGINT NOT NULL REFERENCES repositories(id),
		sha TEXT NOT NULL,
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL DEFAULT '',
		committer_name TEXT NOT NULL DEFAULT '',
		committer_email TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		commit_date TIMESTAMPTZ NOT NULL,
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_deleted INTEGER NOT NULL DEFAULT 0,
		lines_changed INTEGER NOT NULL DEFAULT 0,
		files_changed INTEGER NOT NULL DEFAULT 0,
		UNIQUE(repo_id, sha)
	);

	CREATE INDEX IF NOT EXISTS idx_commits_repo_date ON commits(repo_id, commit_date);
	CREATE INDEX IF NOT EXISTS idx_commits_author_email ON commits(author_email);

	CREATE TABLE IF NOT EXISTS file_changes (
		id BIGSERIAL PRIMARY KEY,
		commit_id BIGINT NOT NULL REFERENCES commits(id),
		file_path TEXT NOT NULL,
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_deleted INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'modified'
	);

	CREATE INDEX IF NOT EXISTS idx_file_changes_commit ON file_changes(commit_id);
	CREATE INDEX IF NOT EXISTS idx_file_changes_path ON file_changes(file_path);

	CREATE TABLE IF NOT EXISTS contributors (
		id BIGSERIAL PRIMARY KEY,
		repo_id BIGINT NOT NULL REFERENCES repositories(id),
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL,
		total_commits INTEGER NOT NULL DEFAULT 0,
		total_lines_added INTEGER NOT NULL DEFAULT 0,
		total_lines_deleted INTEGER NOT NULL DEFAULT 0,
		total_lines_changed INTEGER NOT NULL DEFAULT 0,
		first_commit_date TIMESTAMPTZ,
		last_commit_date TIMESTAMPTZ,
		files_touched INTEGER NOT NULL DEFAULT 0,
		UNIQUE(repo_id, author_email)
	);

	CREATE TABLE IF NOT EXISTS file_hotspots (
		id BIGSERIAL PRIMARY KEY,
		repo_id BIGINT NOT NULL REFERENCES repositories(id),
		file_path TEXT NOT NULL,
		change_count INTEGER NOT NULL DEFAULT 0,
		total_lines_changed INTEGER NOT NULL DEFAULT 0,
		unique_contributors INTEGER NOT NULL DEFAULT 0,
		last_changed TIMESTAMPTZ,
		UNIQUE(repo_id, file_path)
	);

	CREATE TABLE IF NOT EXISTS daily_metrics (
		id BIGSERIAL PRIMARY KEY,
		repo_id BIGINT NOT NULL REFERENCES repositories(id),
		date TEXT NOT NULL,
		commits INTEGER NOT NULL DEFAULT 0,
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_deleted INTEGER NOT NULL DEFAULT 0,
		active_contributors INTEGER NOT NULL DEFAULT 0,
		files_changed INTEGER NOT NULL DEFAULT 0,
		UNIQUE(repo_id, date)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// UpsertRepository registers a repository, reactivating an existing row for
// the same URL.
func (s *postgresStore) UpsertRepository(ctx context.Context, repo *domain.Repository) (*domain.Repository, error) {
	query := `
		INSERT INTO repositories (name, url, provider, access_token, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (url) DO UPDATE SET
			name = EXCLUDED.name,
			provider = EXCLUDED.provider,
			access_token = EXCLUDED.access_token,
			is_active = TRUE
		RETURNING id, name, url, provider, access_token, last_sync, is_active, created_at
	`
	row := s.db.QueryRowContext(ctx, query, repo.Name, repo.URL, string(repo.Provider), repo.AccessToken)
	return scanRepository(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRepository(row rowScanner) (*domain.Repository, error) {
	var r domain.Repository
	var provider string
	var lastSync sql.NullTime

	err := row.Scan(&r.ID, &r.Name, &r.URL, &provider, &r.AccessToken, &lastSync, &r.IsActive, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Provider = domain.ProviderName(provider)
	if lastSync.Valid {
		r.LastSync = &lastSync.Time
	}
	return &r, nil
}

// GetRepositories retrieves repositories, optionally only active ones
func (s *postgresStore) GetRepositories(ctx context.Context, activeOnly bool) ([]*domain.Repository, error) {
	query := `
		SELECT id, name, url, provider, access_token, last_sync, is_active, created_at
		FROM repositories
	`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*domain.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// GetRepository retrieves a repository by ID
func (s *postgresStore) GetRepository(ctx context.Context, id int64) (*domain.Repository, error) {
	query := `
		SELECT id, name, url, provider, access_token, last_sync, is_active, created_at
		FROM repositories WHERE id = $1
	`
	r, err := scanRepository(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return r, err
}

// DeactivateRepository soft-deletes a repository
func (s *postgresStore) DeactivateRepository(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE repositories SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateRepositorySyncTime records the completion time of a sync run
func (s *postgresStore) UpdateRepositorySyncTime(ctx context.Context, id int64, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE repositories SET last_sync = $1 WHERE id = $2`, syncedAt, id)
	return err
}

// InsertCommit stores a commit, ignoring duplicates on (repo_id, sha)
func (s *postgresStore) InsertCommit(ctx context.Context, c *domain.Commit) (int64, bool, error) {
	query := `
		INSERT INTO commits (
			repo_id, sha, author_name, author_email, committer_name, committer_email,
			message, commit_date, lines_added, lines_deleted, lines_changed, files_changed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (repo_id, sha) DO NOTHING
		RETURNING id
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query,
		c.RepoID, c.SHA, c.AuthorName, c.AuthorEmail, c.CommitterName, c.CommitterEmail,
		c.Message, c.CommitDate, c.LinesAdded, c.LinesDeleted, c.LinesChanged, c.FilesChanged,
	).Scan(&id)
	if err == sql.ErrNoRows {
		// Conflict: look up the existing row.
		err := s.db.QueryRowContext(ctx, `SELECT id FROM commits WHERE repo_id = $1 AND sha = $2`, c.RepoID, c.SHA).Scan(&id)
		return id, false, err
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// InsertFileChanges stores the file changes of one commit
func (s *postgresStore) InsertFileChanges(ctx context.Context, commitID int64, files []domain.FileChange) error {
	if len(files) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_changes (commit_id, file_path, lines_added, lines_deleted, status)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, commitID, f.FilePath, f.LinesAdded, f.LinesDeleted, string(f.Status)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetCommits retrieves commits for a repository, newest first
func (s *postgresStore) GetCommits(ctx context.Context, repoID int64, since *time.Time) ([]*domain.Commit, error) {
	query := `
		SELECT id, repo_id, sha, author_name, author_email, committer_name, committer_email,
			message, commit_date, lines_added, lines_deleted, lines_changed, files_changed
		FROM commits
		WHERE repo_id = $1
	`
	args := []interface{}{repoID}
	if since != nil {
		query += ` AND commit_date >= $2`
		args = append(args, *since)
	}
	query += ` ORDER BY commit_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []*domain.Commit
	for rows.Next() {
		var c domain.Commit
		err := rows.Scan(&c.ID, &c.RepoID, &c.SHA, &c.AuthorName, &c.AuthorEmail,
			&c.CommitterName, &c.CommitterEmail, &c.Message, &c.CommitDate,
			&c.LinesAdded, &c.LinesDeleted, &c.LinesChanged, &c.FilesChanged)
		if err != nil {
			return nil, err
		}
		commits = append(commits, &c)
	}
	return commits, rows.Err()
}

// GetFileActivity retrieves file changes joined to commit author and date
func (s *postgresStore) GetFileActivity(ctx context.Context, repoID int64, since *time.Time) ([]*domain.FileActivity, error) {
	query := `
		SELECT c.repo_id, f.file_path, c.author_email, c.commit_date, f.lines_added, f.lines_deleted
		FROM file_changes f
		JOIN commits c ON c.id = f.commit_id
		WHERE c.repo_id = $1
	`
	args := []interface{}{repoID}
	if since != nil {
		query += ` AND c.commit_date >= $2`
		args = append(args, *since)
	}
	query += ` ORDER BY c.commit_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activity []*domain.FileActivity
	for rows.Next() {
		var a domain.FileActivity
		err := rows.Scan(&a.RepoID, &a.FilePath, &a.AuthorEmail, &a.CommitDate, &a.LinesAdded, &a.LinesDeleted)
		if err != nil {
			return nil, err
		}
		activity = append(activity, &a)
	}
	return activity, rows.Err()
}

// ReplaceAggregates swaps all aggregate rows for a repository in one
// transaction.
func (s *postgresStore) ReplaceAggregates(ctx context.Context, repoID int64, contributors []*domain.ContributorAggregate, hotspots []*domain.FileHotspot, dailies []*domain.DailyMetric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"contributors", "file_hotspots", "daily_metrics"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE repo_id = $1`, repoID); err != nil {
			return err
		}
	}

	for _, c := range contributors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contributors (repo_id, author_name, author_email, total_commits,
				total_lines_added, total_lines_deleted, total_lines_changed,
				first_commit_date, last_commit_date, files_touched)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, repoID, c.AuthorName, c.AuthorEmail, c.TotalCommits,
			c.TotalLinesAdded, c.TotalLinesDeleted, c.TotalLinesChanged,
			c.FirstCommitDate, c.LastCommitDate, c.FilesTouched)
		if err != nil {
			return err
		}
	}

	for _, h := range hotspots {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO file_hotspots (repo_id, file_path, change_count,
				total_lines_changed, unique_contributors, last_changed)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, repoID, h.FilePath, h.ChangeCount, h.TotalLinesChanged, h.UniqueContributors, h.LastChanged)
		if err != nil {
			return err
		}
	}

	for _, d := range dailies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO daily_metrics (repo_id, date, commits, lines_added,
				lines_deleted, active_contributors, files_changed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, repoID, d.Date, d.Commits, d.LinesAdded, d.LinesDeleted, d.ActiveContributors, d.FilesChanged)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetContributorAggregates retrieves contributor rollups, most commits first
func (s *postgresStore) GetContributorAggregates(ctx context.Context, repoID int64) ([]*domain.ContributorAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_id, author_name, author_email, total_commits,
			total_lines_added, total_lines_deleted, total_lines_changed,
			first_commit_date, last_commit_date, files_touched
		FROM contributors
		WHERE repo_id = $1
		ORDER BY total_commits DESC, author_email
	`, repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.ContributorAggregate
	for rows.Next() {
		var c domain.ContributorAggregate
		var first, last sql.NullTime
		err := rows.Scan(&c.RepoID, &c.AuthorName, &c.AuthorEmail, &c.TotalCommits,
			&c.TotalLinesAdded, &c.TotalLinesDeleted, &c.TotalLinesChanged,
			&first, &last, &c.FilesTouched)
		if err != nil {
			return nil, err
		}
		if first.Valid {
			c.FirstCommitDate = first.Time
		}
		if last.Valid {
			c.LastCommitDate = last.Time
		}
		result = append(result, &c)
	}
	return result, rows.Err()
}

// GetFileHotspots retrieves the most changed files
func (s *postgresStore) GetFileHotspots(ctx context.Context, repoID int64, limit int) ([]*domain.FileHotspot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_id, file_path, change_count, total_lines_changed, unique_contributors, last_changed
		FROM file_hotspots
		WHERE repo_id = $1
		ORDER BY change_count DESC, file_path
		LIMIT $2
	`, repoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.FileHotspot
	for rows.Next() {
		var h domain.FileHotspot
		var last sql.NullTime
		err := rows.Scan(&h.RepoID, &h.FilePath, &h.ChangeCount, &h.TotalLinesChanged, &h.UniqueContributors, &last)
		if err != nil {
			return nil, err
		}
		if last.Valid {
			h.LastChanged = last.Time
		}
		result = append(result, &h)
	}
	return result, rows.Err()
}

// GetDailyMetrics retrieves per-day rollups for the last N days
func (s *postgresStore) GetDailyMetrics(ctx context.Context, repoID int64, days int) ([]*domain.DailyMetric, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_id, date, commits, lines_added, lines_deleted, active_contributors, files_changed
		FROM daily_metrics
		WHERE repo_id = $1 AND date >= $2
		ORDER BY date
	`, repoID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.DailyMetric
	for rows.Next() {
		var d domain.DailyMetric
		err := rows.Scan(&d.RepoID, &d.Date, &d.Commits, &d.LinesAdded, &d.LinesDeleted, &d.ActiveContributors, &d.FilesChanged)
		if err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}

// Close closes the database connection
func (s *postgresStore) Close() error {
	return s.db.Close()
}
