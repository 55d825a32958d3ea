package domain

import "time"

// ChangeStatus describes how a file was touched by a commit.
type ChangeStatus string

const (
	ChangeAdded    ChangeStatus = "added"
	ChangeModified ChangeStatus = "modified"
	ChangeDeleted  ChangeStatus = "deleted"
	ChangeRenamed  ChangeStatus = "renamed"
)

// Commit is an immutable stored commit fact, unique per (repo, sha).
type Commit struct {
	ID             int64     `json:"id"`
	RepoID         int64     `json:"repo_id"`
	SHA            string    `json:"sha"`
	AuthorName     string    `json:"author_name"`
	AuthorEmail    string    `json:"author_email"`
	CommitterName  string    `json:"committer_name,omitempty"`
	CommitterEmail string    `json:"committer_email,omitempty"`
	Message        string    `json:"message"`
	CommitDate     time.Time `json:"commit_date"`
	LinesAdded     int       `json:"lines_added"`
	LinesDeleted   int       `json:"lines_deleted"`
	LinesChanged   int       `json:"lines_changed"`
	FilesChanged   int       `json:"files_changed"`
}

// FileChange is one file touched by a commit. Append-only.
type FileChange struct {
	ID           int64        `json:"id"`
	CommitID     int64        `json:"commit_id"`
	FilePath     string       `json:"file_path"`
	LinesAdded   int          `json:"lines_added"`
	LinesDeleted int          `json:"lines_deleted"`
	Status       ChangeStatus `json:"status"`
}

// FileActivity is a file change joined to its commit's author and date,
// used by windowed aggregation reads.
type FileActivity struct {
	RepoID       int64
	FilePath     string
	AuthorEmail  string
	CommitDate   time.Time
	LinesAdded   int
	LinesDeleted int
}

// CommitRecord is the canonical, provider-agnostic representation of a
// commit and its file changes as fetched from a hosting service.
type CommitRecord struct {
	SHA            string
	AuthorName     string
	AuthorEmail    string
	CommitterName  string
	CommitterEmail string
	Message        string
	CommitDate     time.Time
	LinesAdded     int
	LinesDeleted   int
	LinesChanged   int
	FilesChanged   int
	Files          []FileChangeRecord
}

// FileChangeRecord is a per-file entry within a CommitRecord.
type FileChangeRecord struct {
	FilePath     string
	LinesAdded   int
	LinesDeleted int
	Status       ChangeStatus
}

// SkippedCommit records a commit dropped during a fetch, with the reason.
type SkippedCommit struct {
	SHA    string
	Reason string
}

// FetchResult carries everything a fetch run produced. Truncated marks a run
// that stopped early because a page fetch failed; the accumulated commits are
// still valid.
type FetchResult struct {
	Commits   []CommitRecord
	Skipped   []SkippedCommit
	Truncated bool
}
