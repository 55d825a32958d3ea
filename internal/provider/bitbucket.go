package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kurihiro0119/git-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/git-metrics/internal/errors"
)

const (
	bitbucketHost    = "bitbucket.org"
	bitbucketAPIBase = "https://api.bitbucket.org/2.0"
)

// bitbucketProvider implements Provider against the Bitbucket 2.0 REST API
// using opaque cursor pagination via the `next` URL in each page body.
type bitbucketProvider struct {
	httpClient  *http.Client
	rateLimiter RateLimiter
	logger      *slog.Logger
	baseURL     string
}

// NewBitbucket creates the Bitbucket provider variant
func NewBitbucket(opts Options) Provider {
	opts = opts.withDefaults()
	return &bitbucketProvider{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		rateLimiter: NewRateLimiter(opts.Logger),
		logger:      opts.Logger,
		baseURL:     bitbucketAPIBase,
	}
}

type bbRepository struct {
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Language    string `json:"language"`
	CreatedOn   string `json:"created_on"`
	UpdatedOn   string `json:"updated_on"`
}

type bbCommitPage struct {
	Values []bbCommit `json:"values"`
	Next   string     `json:"next"`
}

type bbCommit struct {
	Hash    string `json:"hash"`
	Date    string `json:"date"`
	Message string `json:"message"`
	Author  struct {
		Raw  string `json:"raw"`
		User struct {
			DisplayName string `json:"display_name"`
		} `json:"user"`
	} `json:"author"`
}

type bbDiffstatPage struct {
	Values []bbDiffstat `json:"values"`
	Next   string       `json:"next"`
}

type bbDiffstat struct {
	Status       string `json:"status"`
	LinesAdded   int    `json:"lines_added"`
	LinesRemoved int    `json:"lines_removed"`
	New          *struct {
		Path string `json:"path"`
	} `json:"new"`
	Old *struct {
		Path string `json:"path"`
	} `json:"old"`
}

// get performs an authenticated GET and decodes the JSON body into out.
func (p *bitbucketProvider) get(ctx context.Context, rawURL, token string, out interface{}) (int, error) {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("bitbucket API returned status %d for %s", resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

func (p *bitbucketProvider) repoEndpoint(owner, repo string) string {
	return fmt.Sprintf("%s/repositories/%s/%s", p.baseURL, owner, repo)
}

// ValidateAccess probes the repository metadata endpoint.
func (p *bitbucketProvider) ValidateAccess(ctx context.Context, repoURL, token string) (bool, error) {
	owner, repo, err := parseRepoPath(repoURL, bitbucketHost)
	if err != nil {
		return false, apperrors.NewValidationError("invalid Bitbucket repository URL: " + repoURL)
	}

	var info bbRepository
	if _, err := p.get(ctx, p.repoEndpoint(owner, repo), token, &info); err != nil {
		return false, nil
	}
	return true, nil
}

// GetRepositoryInfo fetches repository metadata.
func (p *bitbucketProvider) GetRepositoryInfo(ctx context.Context, repoURL, token string) (*domain.RepoInfo, error) {
	owner, repo, err := parseRepoPath(repoURL, bitbucketHost)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid Bitbucket repository URL: " + repoURL)
	}

	var info bbRepository
	if _, err := p.get(ctx, p.repoEndpoint(owner, repo), token, &info); err != nil {
		return nil, err
	}

	return &domain.RepoInfo{
		Name:        info.Name,
		FullName:    info.FullName,
		Description: info.Description,
		CreatedAt:   info.CreatedOn,
		UpdatedAt:   info.UpdatedOn,
		Language:    info.Language,
	}, nil
}

// FetchCommits walks the commit list cursor and fetches a diffstat per commit.
func (p *bitbucketProvider) FetchCommits(ctx context.Context, repoURL, token string, since *time.Time, limit int) (*domain.FetchResult, error) {
	owner, repo, err := parseRepoPath(repoURL, bitbucketHost)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid Bitbucket repository URL: " + repoURL)
	}

	result := &domain.FetchResult{}
	pageURL := p.repoEndpoint(owner, repo) + "/commits?pagelen=100"

	for pageURL != "" {
		var page bbCommitPage
		if _, err := p.get(ctx, pageURL, token, &page); err != nil {
			p.logger.Warn("commit page fetch failed", "owner", owner, "repo", repo, "error", err)
			result.Truncated = true
			return result, nil
		}

		if len(page.Values) == 0 {
			return result, nil
		}

		for _, c := range page.Values {
			if len(result.Commits) >= limit {
				return result, nil
			}

			commitDate, err := time.Parse(time.RFC3339, c.Date)
			if err != nil {
				result.Skipped = append(result.Skipped, domain.SkippedCommit{
					SHA:    c.Hash,
					Reason: "unparseable commit date: " + c.Date,
				})
				continue
			}

			// Bitbucket lists newest first; once we cross the since
			// boundary every remaining commit is older.
			if since != nil && commitDate.Before(*since) {
				return result, nil
			}

			name, email := parseRawAuthor(c.Author.Raw)
			if c.Author.User.DisplayName != "" {
				name = c.Author.User.DisplayName
			}

			record := domain.CommitRecord{
				SHA:            c.Hash,
				AuthorName:     name,
				AuthorEmail:    email,
				CommitterName:  name,
				CommitterEmail: email,
				Message:        c.Message,
				CommitDate:     commitDate,
			}

			// Diffstat failure zeroes the stats but keeps the commit.
			files, err := p.fetchDiffstat(ctx, owner, repo, c.Hash, token)
			if err != nil {
				p.logger.Warn("diffstat fetch failed", "sha", c.Hash, "error", err)
			} else {
				for _, f := range files {
					record.LinesAdded += f.LinesAdded
					record.LinesDeleted += f.LinesDeleted
					record.Files = append(record.Files, f)
				}
				record.LinesChanged = record.LinesAdded + record.LinesDeleted
				record.FilesChanged = len(files)
			}

			result.Commits = append(result.Commits, record)
		}

		pageURL = page.Next
	}
	return result, nil
}

// fetchDiffstat returns the per-file change list for one commit, following
// diffstat pagination.
func (p *bitbucketProvider) fetchDiffstat(ctx context.Context, owner, repo, sha, token string) ([]domain.FileChangeRecord, error) {
	var files []domain.FileChangeRecord
	pageURL := fmt.Sprintf("%s/diffstat/%s?pagelen=100", p.repoEndpoint(owner, repo), url.PathEscape(sha))

	for pageURL != "" {
		var page bbDiffstatPage
		if _, err := p.get(ctx, pageURL, token, &page); err != nil {
			return nil, err
		}

		for _, d := range page.Values {
			path := ""
			if d.New != nil {
				path = d.New.Path
			} else if d.Old != nil {
				path = d.Old.Path
			}
			files = append(files, domain.FileChangeRecord{
				FilePath:     path,
				LinesAdded:   d.LinesAdded,
				LinesDeleted: d.LinesRemoved,
				Status:       toBitbucketStatus(d.Status),
			})
		}
		pageURL = page.Next
	}
	return files, nil
}

func toBitbucketStatus(s string) domain.ChangeStatus {
	switch s {
	case "added":
		return domain.ChangeAdded
	case "removed":
		return domain.ChangeDeleted
	case "renamed":
		return domain.ChangeRenamed
	default:
		return domain.ChangeModified
	}
}

// parseRawAuthor splits the Bitbucket raw author string "Name <email>".
func parseRawAuthor(raw string) (string, string) {
	open := strings.LastIndex(raw, "<")
	end := strings.LastIndex(raw, ">")
	if open >= 0 && end > open {
		return strings.TrimSpace(raw[:open]), strings.TrimSpace(raw[open+1 : end])
	}
	return strings.TrimSpace(raw), ""
}
