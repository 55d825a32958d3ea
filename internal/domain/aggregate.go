package domain

import "time"

// ContributorAggregate is a derived per-(repo, author email) rollup. Fully
// recomputed from commits and file changes on every rebuild.
type ContributorAggregate struct {
	RepoID            int64     `json:"repo_id"`
	AuthorName        string    `json:"author_name"`
	AuthorEmail       string    `json:"author_email"`
	TotalCommits      int       `json:"total_commits"`
	TotalLinesAdded   int       `json:"total_lines_added"`
	TotalLinesDeleted int       `json:"total_lines_deleted"`
	TotalLinesChanged int       `json:"total_lines_changed"`
	FirstCommitDate   time.Time `json:"first_commit_date"`
	LastCommitDate    time.Time `json:"last_commit_date"`
	FilesTouched      int       `json:"files_touched"`
}

// FileHotspot is a derived per-(repo, file path) rollup.
type FileHotspot struct {
	RepoID             int64     `json:"repo_id"`
	FilePath           string    `json:"file_path"`
	ChangeCount        int       `json:"change_count"`
	TotalLinesChanged  int       `json:"total_lines_changed"`
	UniqueContributors int       `json:"unique_contributors"`
	LastChanged        time.Time `json:"last_changed"`
}

// DailyMetric is a derived per-(repo, calendar date) rollup.
type DailyMetric struct {
	RepoID             int64  `json:"repo_id"`
	Date               string `json:"date"` // YYYY-MM-DD
	Commits            int    `json:"commits"`
	LinesAdded         int    `json:"lines_added"`
	LinesDeleted       int    `json:"lines_deleted"`
	ActiveContributors int    `json:"active_contributors"`
	FilesChanged       int    `json:"files_changed"`
}
