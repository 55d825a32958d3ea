package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/git-metrics/internal/domain"
	"github.com/kurihiro0119/git-metrics/internal/storage"
)

// sqliteStore implements the Store interface for SQLite
type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite store instance
func NewStore(dbPath string) (storage.Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	s := &sqliteStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// Migrate creates the schema
func (s *sqliteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		provider TEXT NOT NULL DEFAULT 'github',
		access_token TEXT NOT NULL DEFAULT '',
		last_sync TIMESTAMP,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS commits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repositories(id),
		sha TEXT NOT NULL,
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL DEFAULT '',
		committer_name TEXT NOT NULL DEFAULT '',
		committer_email TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		commit_date TIMESTAMP NOT NULL,
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_deleted INTEGER NOT NULL DEFAULT 0,
		lines_changed INTEGER NOT NULL DEFAULT 0,
		files_changed INTEGER NOT NULL DEFAULT 0,
		UNIQUE(repo_id, sha)
	);

	CREATE INDEX IF NOT EXISTS idx_commits_repo_date ON commits(repo_id, commit_date);
	CREATE INDEX IF NOT EXISTS idx_commits_author_email ON commits(author_email);

	CREATE TABLE IF NOT EXISTS file_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		commit_id INTEGER NOT NULL REFERENCES commits(id),
		file_path TEXT NOT NULL,
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_deleted INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'modified'
	);

	CREATE INDEX IF NOT EXISTS idx_file_changes_commit ON file_changes(commit_id);
	CREATE INDEX IF NOT EXISTS idx_file_changes_path ON file_changes(file_path);

	CREATE TABLE IF NOT EXISTS contributors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repositories(id),
		author_name TEXT NOT NULL DEFAULT '',
		author_email TEXT NOT NULL,
		total_commits INTEGER NOT NULL DEFAULT 0,
		total_lines_added INTEGER NOT NULL DEFAULT 0,
		total_lines_deleted INTEGER NOT NULL DEFAULT 0,
		total_lines_changed INTEGER NOT NULL DEFAULT 0,
		first_commit_date TIMESTAMP,
		last_commit_date TIMESTAMP,
		files_touched INTEGER NOT NULL DEFAULT 0,
		UNIQUE(repo_id, author_email)
	);

	CREATE TABLE IF NOT EXISTS file_hotspots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repositories(id),
		file_path TEXT NOT NULL,
		change_count INTEGER NOT NULL DEFAULT 0,
		total_lines_changed INTEGER NOT NULL DEFAULT 0,
		unique_contributors INTEGER NOT NULL DEFAULT 0,
		last_changed TIMESTAMP,
		UNIQUE(repo_id, file_path)
	);

	CREATE TABLE IF NOT EXISTS daily_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo_id INTEGER NOT NULL REFERENCES repositories(id),
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
func (s *sqliteStore) UpsertRepository(ctx context.Context, repo *domain.Repository) (*domain.Repository, error) {
	query := `
		INSERT INTO repositories (name, url, provider, access_token, is_active, created_at)
		VALUES (?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(url) DO UPDATE SET
			name = excluded.name,
			provider = excluded.provider,
			access_token = excluded.access_token,
			is_active = 1
	`
	if _, err := s.db.ExecContext(ctx, query, repo.Name, repo.URL, string(repo.Provider), repo.AccessToken); err != nil {
		return nil, err
	}

	return s.getRepositoryBy(ctx, "url = ?", repo.URL)
}

func (s *sqliteStore) getRepositoryBy(ctx context.Context, where string, arg interface{}) (*domain.Repository, error) {
	query := `
		SELECT id, name, url, provider, access_token, last_sync, is_active, created_at
		FROM repositories WHERE ` + where
	return scanRepository(s.db.QueryRowContext(ctx, query, arg))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRepository(row rowScanner) (*domain.Repository, error) {
	var r domain.Repository
	var provider string
	var lastSync sql.NullTime
	var isActive int

	err := row.Scan(&r.ID, &r.Name, &r.URL, &provider, &r.AccessToken, &lastSync, &isActive, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Provider = domain.ProviderName(provider)
	r.IsActive = isActive == 1
	if lastSync.Valid {
		r.LastSync = &lastSync.Time
	}
	return &r, nil
}

// GetRepositories retrieves repositories, optionally only active ones
func (s *sqliteStore) GetRepositories(ctx context.Context, activeOnly bool) ([]*domain.Repository, error) {
	query := `
		SELECT id, name, url, provider, access_token, last_sync, is_active, created_at
		FROM repositories
	`
	if activeOnly {
		query += ` WHERE is_active = 1`
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
func (s *sqliteStore) GetRepository(ctx context.Context, id int64) (*domain.Repository, error) {
	r, err := s.getRepositoryBy(ctx, "id = ?", id)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return r, err
}

// DeactivateRepository soft-deletes a repository
func (s *sqliteStore) DeactivateRepository(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE repositories SET is_active = 0 WHERE id = ?`, id)
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
func (s *sqliteStore) UpdateRepositorySyncTime(ctx context.Context, id int64, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE repositories SET last_sync = ? WHERE id = ?`, syncedAt, id)
	return err
}

// InsertCommit stores a commit, ignoring duplicates on (repo_id, sha)
func (s *sqliteStore) InsertCommit(ctx context.Context, c *domain.Commit) (int64, bool, error) {
	query := `
		INSERT OR IGNORE INTO commits (
			repo_id, sha, author_name, author_email, committer_name, committer_email,
			message, commit_date, lines_added, lines_deleted, lines_changed, files_changed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		c.RepoID, c.SHA, c.AuthorName, c.AuthorEmail, c.CommitterName, c.CommitterEmail,
		c.Message, c.CommitDate, c.LinesAdded, c.LinesDeleted, c.LinesChanged, c.FilesChanged,
	)
	if err != nil {
		return 0, false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		var id int64
		err := s.db.QueryRowContext(ctx, `SELECT id FROM commits WHERE repo_id = ? AND sha = ?`, c.RepoID, c.SHA).Scan(&id)
		return id, false, err
	}

	id, err := res.LastInsertId()
	return id, true, err
}

// InsertFileChanges stores the file changes of one commit
func (s *sqliteStore) InsertFileChanges(ctx context.Context, commitID int64, files []domain.FileChange) error {
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
		VALUES (?, ?, ?, ?, ?)
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
func (s *sqliteStore) GetCommits(ctx context.Context, repoID int64, since *time.Time) ([]*domain.Commit, error) {
	query := `
		SELECT id, repo_id, sha, author_name, author_email, committer_name, committer_email,
			message, commit_date, lines_added, lines_deleted, lines_changed, files_changed
		FROM commits
		WHERE repo_id = ?
	`
	args := []interface{}{repoID}
	if since != nil {
		query += ` AND commit_date >= ?`
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
func (s *sqliteStore) GetFileActivity(ctx context.Context, repoID int64, since *time.Time) ([]*domain.FileActivity, error) {
	query := `
		SELECT c.repo_id, f.file_path, c.author_email, c.commit_date, f.lines_added, f.lines_deleted
		FROM file_changes f
		JOIN commits c ON c.id = f.commit_id
		WHERE c.repo_id = ?
	`
	args := []interface{}{repoID}
	if since != nil {
		query += ` AND c.commit_date >= ?`
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
func (s *sqliteStore) ReplaceAggregates(ctx context.Context, repoID int64, contributors []*domain.ContributorAggregate, hotspots []*domain.FileHotspot, dailies []*domain.DailyMetric) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"contributors", "file_hotspots", "daily_metrics"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE repo_id = ?`, repoID); err != nil {
			return err
		}
	}

	for _, c := range contributors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contributors (repo_id, author_name, author_email, total_commits,
				total_lines_added, total_lines_deleted, total_lines_changed,
				first_commit_date, last_commit_date, files_touched)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
			VALUES (?, ?, ?, ?, ?, ?)
		`, repoID, h.FilePath, h.ChangeCount, h.TotalLinesChanged, h.UniqueContributors, h.LastChanged)
		if err != nil {
			return err
		}
	}

	for _, d := range dailies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO daily_metrics (repo_id, date, commits, lines_added,
				lines_deleted, active_contributors, files_changed)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, repoID, d.Date, d.Commits, d.LinesAdded, d.LinesDeleted, d.ActiveContributors, d.FilesChanged)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetContributorAggregates retrieves contributor rollups, most commits first
func (s *sqliteStore) GetContributorAggregates(ctx context.Context, repoID int64) ([]*domain.ContributorAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_id, author_name, author_email, total_commits,
			total_lines_added, total_lines_deleted, total_lines_changed,
			first_commit_date, last_commit_date, files_touched
		FROM contributors
		WHERE repo_id = ?
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
func (s *sqliteStore) GetFileHotspots(ctx context.Context, repoID int64, limit int) ([]*domain.FileHotspot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_id, file_path, change_count, total_lines_changed, unique_contributors, last_changed
		FROM file_hotspots
		WHERE repo_id = ?
		ORDER BY change_count DESC, file_path
		LIMIT ?
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
func (s *sqliteStore) GetDailyMetrics(ctx context.Context, repoID int64, days int) ([]*domain.DailyMetric, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	rows, err := s.db.QueryContext(ctx, `
		SELECT repo_id, date, commits, lines_added, lines_deleted, active_contributors, files_changed
		FROM daily_metrics
		WHERE repo_id = ? AND date >= ?
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
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
