package domain

import "time"

// SyncStatus is the state of a repository's sync task.
type SyncStatus string

const (
	SyncNotStarted SyncStatus = "not_started"
	SyncRunning    SyncStatus = "running"
	SyncCompleted  SyncStatus = "completed"
	SyncError      SyncStatus = "error"
)

// SyncTask tracks one repository's sync run. Tasks live only for the
// lifetime of the process; every new request for a repository overwrites
// its previous task.
type SyncTask struct {
	TaskID           string     `json:"task_id"`
	RepoID           int64      `json:"repo_id"`
	Status           SyncStatus `json:"status"`
	Progress         int        `json:"progress"`
	Message          string     `json:"message,omitempty"`
	CommitsProcessed int        `json:"commits_processed,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
