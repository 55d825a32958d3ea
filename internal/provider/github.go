package provider

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/git-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/git-metrics/internal/errors"
)

const githubHost = "github.com"

// githubProvider implements Provider against the GitHub REST API using
// page-number pagination with Link-header next-page signaling.
type githubProvider struct {
	rateLimiter RateLimiter
	timeout     time.Duration
	logger      *slog.Logger
	baseURL     string // overridden in tests
}

// NewGitHub creates the GitHub provider variant
func NewGitHub(opts Options) Provider {
	opts = opts.withDefaults()
	return &githubProvider{
		rateLimiter: NewRateLimiter(opts.Logger),
		timeout:     opts.Timeout,
		logger:      opts.Logger,
	}
}

// clientFor builds a go-github client, authenticated when a token is given.
func (p *githubProvider) clientFor(ctx context.Context, token string) *github.Client {
	httpClient := &http.Client{Timeout: p.timeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = p.timeout
	}

	client := github.NewClient(httpClient)
	if p.baseURL != "" {
		if c, err := client.WithEnterpriseURLs(p.baseURL, p.baseURL); err == nil {
			client = c
		}
	}
	return client
}

// ValidateAccess probes the repository metadata endpoint.
func (p *githubProvider) ValidateAccess(ctx context.Context, repoURL, token string) (bool, error) {
	owner, repo, err := parseRepoPath(repoURL, githubHost)
	if err != nil {
		return false, apperrors.NewValidationError("invalid GitHub repository URL: " + repoURL)
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return false, nil
	}

	client := p.clientFor(ctx, token)
	_, resp, err := client.Repositories.Get(ctx, owner, repo)
	p.updateRateLimit(resp)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// GetRepositoryInfo fetches repository metadata.
func (p *githubProvider) GetRepositoryInfo(ctx context.Context, repoURL, token string) (*domain.RepoInfo, error) {
	owner, repo, err := parseRepoPath(repoURL, githubHost)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid GitHub repository URL: " + repoURL)
	}

	if err := p.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	client := p.clientFor(ctx, token)
	r, resp, err := client.Repositories.Get(ctx, owner, repo)
	p.updateRateLimit(resp)
	if err != nil {
		return nil, err
	}

	return &domain.RepoInfo{
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Description: r.GetDescription(),
		CreatedAt:   r.GetCreatedAt().Format(time.RFC3339),
		UpdatedAt:   r.GetUpdatedAt().Format(time.RFC3339),
		Language:    r.GetLanguage(),
	}, nil
}

// FetchCommits pages through commit summaries and fetches per-commit detail
// for stats and file changes.
func (p *githubProvider) FetchCommits(ctx context.Context, repoURL, token string, since *time.Time, limit int) (*domain.FetchResult, error) {
	owner, repo, err := parseRepoPath(repoURL, githubHost)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid GitHub repository URL: " + repoURL)
	}

	client := p.clientFor(ctx, token)
	result := &domain.FetchResult{}

	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if since != nil {
		opts.Since = *since
	}

	for {
		if err := p.rateLimiter.Wait(ctx); err != nil {
			result.Truncated = true
			return result, nil
		}

		commits, resp, err := client.Repositories.ListCommits(ctx, owner, repo, opts)
		if err != nil {
			// A failing page truncates pagination; everything gathered so
			// far is still a valid result.
			p.logger.Warn("commit page fetch failed", "owner", owner, "repo", repo, "error", err)
			result.Truncated = true
			return result, nil
		}
		p.updateRateLimit(resp)

		if len(commits) == 0 {
			return result, nil
		}

		for _, summary := range commits {
			if len(result.Commits) >= limit {
				return result, nil
			}

			if err := p.rateLimiter.Wait(ctx); err != nil {
				result.Truncated = true
				return result, nil
			}

			detail, detailResp, err := client.Repositories.GetCommit(ctx, owner, repo, summary.GetSHA(), nil)
			if err != nil {
				p.logger.Warn("commit detail fetch failed", "sha", summary.GetSHA(), "error", err)
				result.Skipped = append(result.Skipped, domain.SkippedCommit{
					SHA:    summary.GetSHA(),
					Reason: err.Error(),
				})
				continue
			}
			p.updateRateLimit(detailResp)

			record := toCommitRecord(detail)
			if since != nil && record.CommitDate.Before(*since) {
				continue
			}
			result.Commits = append(result.Commits, record)
		}

		if resp.NextPage == 0 {
			return result, nil
		}
		opts.Page = resp.NextPage
	}
}

// toCommitRecord normalizes a detailed GitHub commit into the canonical
// record. The author date is the canonical commit date.
func toCommitRecord(c *github.RepositoryCommit) domain.CommitRecord {
	record := domain.CommitRecord{
		SHA:            c.GetSHA(),
		AuthorName:     c.GetCommit().GetAuthor().GetName(),
		AuthorEmail:    c.GetCommit().GetAuthor().GetEmail(),
		CommitterName:  c.GetCommit().GetCommitter().GetName(),
		CommitterEmail: c.GetCommit().GetCommitter().GetEmail(),
		Message:        c.GetCommit().GetMessage(),
		CommitDate:     c.GetCommit().GetAuthor().GetDate().Time,
		LinesAdded:     c.GetStats().GetAdditions(),
		LinesDeleted:   c.GetStats().GetDeletions(),
		LinesChanged:   c.GetStats().GetTotal(),
		FilesChanged:   len(c.Files),
	}

	for _, f := range c.Files {
		record.Files = append(record.Files, domain.FileChangeRecord{
			FilePath:     f.GetFilename(),
			LinesAdded:   f.GetAdditions(),
			LinesDeleted: f.GetDeletions(),
			Status:       toChangeStatus(f.GetStatus()),
		})
	}
	return record
}

func toChangeStatus(s string) domain.ChangeStatus {
	switch s {
	case "added":
		return domain.ChangeAdded
	case "removed", "deleted":
		return domain.ChangeDeleted
	case "renamed":
		return domain.ChangeRenamed
	default:
		return domain.ChangeModified
	}
}

func (p *githubProvider) updateRateLimit(resp *github.Response) {
	if resp != nil && resp.Rate.Remaining >= 0 {
		p.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}
