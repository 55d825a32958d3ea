package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/kurihiro0119/git-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/git-metrics/internal/errors"
)

// Provider is the canonical commit-fetch contract implemented once per
// hosting service.
type Provider interface {
	// ValidateAccess issues a single metadata probe. It returns false for
	// any access or transport problem and errors only when the repository
	// URL itself is malformed.
	ValidateAccess(ctx context.Context, repoURL, token string) (bool, error)

	// GetRepositoryInfo fetches repository metadata. Transport and HTTP
	// failures propagate to the caller.
	GetRepositoryInfo(ctx context.Context, repoURL, token string) (*domain.RepoInfo, error)

	// FetchCommits produces a finite, best-effort sequence of canonical
	// commit records bounded by limit. Commits whose author date is
	// strictly older than since are excluded; the author date is the
	// canonical date field for both providers. A failed per-commit detail
	// fetch skips that commit; a failed page fetch stops pagination and
	// marks the result truncated. Partial results are valid.
	FetchCommits(ctx context.Context, repoURL, token string, since *time.Time, limit int) (*domain.FetchResult, error)
}

// Options configures provider construction.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Factory returns the Provider for a hosting service name.
type Factory func(name domain.ProviderName) (Provider, error)

// New returns the Provider variant registered under name. An unrecognized
// name is a configuration error surfaced synchronously.
func New(name domain.ProviderName, opts Options) (Provider, error) {
	switch name {
	case domain.ProviderGitHub:
		return NewGitHub(opts), nil
	case domain.ProviderBitbucket:
		return NewBitbucket(opts), nil
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported provider: %s", name))
	}
}

// DefaultFactory builds providers on demand with shared options.
func DefaultFactory(opts Options) Factory {
	return func(name domain.ProviderName) (Provider, error) {
		return New(name, opts)
	}
}

// parseRepoPath extracts the owner and repository name from an HTTP(S) or
// SSH repository URL for the given host.
func parseRepoPath(repoURL, host string) (string, string, error) {
	var path string
	if strings.HasPrefix(repoURL, "git@") {
		path = strings.TrimPrefix(repoURL, "git@"+host+":")
	} else {
		u, err := url.Parse(repoURL)
		if err != nil {
			return "", "", err
		}
		path = u.Path
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected <owner>/<repo> in %q", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
