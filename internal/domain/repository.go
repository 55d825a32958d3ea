package domain

import "time"

// ProviderName identifies a hosting service.
type ProviderName string

const (
	ProviderGitHub    ProviderName = "github"
	ProviderBitbucket ProviderName = "bitbucket"
)

// Repository represents a tracked source repository.
type Repository struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Provider    ProviderName `json:"provider"`
	AccessToken string       `json:"-"`
	LastSync    *time.Time   `json:"last_sync"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
}

// RepoInfo holds provider-side repository metadata returned by a single probe.
type RepoInfo struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	Language    string `json:"language"`
}
