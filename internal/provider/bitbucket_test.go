package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/git-metrics/internal/domain"
)

const bbRepoURL = "https://bitbucket.org/acme/widgets"

func newTestBitbucket(t *testing.T, handler http.Handler) *bitbucketProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &bitbucketProvider{
		httpClient:  srv.Client(),
		rateLimiter: noopLimiter{},
		logger:      testLogger(),
		baseURL:     srv.URL,
	}
}

func bbCommitJSON(hash, date, message, raw string) string {
	return fmt.Sprintf(`{
		"hash": %q,
		"date": %q,
		"message": %q,
		"author": {"raw": %q}
	}`, hash, date, message, raw)
}

func TestBitbucketFetchCommitsCursorPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprintf(w, `{"values": [%s]}`,
				bbCommitJSON("b1", "2024-03-01T08:00:00+00:00", "Initial import", "Bob <bob@example.com>"))
			return
		}
		next := fmt.Sprintf("http://%s/repositories/acme/widgets/commits?page=2", r.Host)
		fmt.Fprintf(w, `{"values": [%s], "next": %q}`,
			bbCommitJSON("a1", "2024-03-05T10:00:00+00:00", "Add exporter", "Alice Smith <alice@example.com>"), next)
	})
	mux.HandleFunc("/repositories/acme/widgets/diffstat/a1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"values": [
			{"status": "added", "lines_added": 20, "lines_removed": 0, "new": {"path": "exporter.go"}},
			{"status": "modified", "lines_added": 3, "lines_removed": 1, "new": {"path": "main.go"}}
		]}`)
	})
	mux.HandleFunc("/repositories/acme/widgets/diffstat/b1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"values": [
			{"status": "removed", "lines_added": 0, "lines_removed": 7, "old": {"path": "legacy.go"}}
		]}`)
	})

	p := newTestBitbucket(t, mux)
	result, err := p.FetchCommits(context.Background(), bbRepoURL, "token", nil, 100)
	require.NoError(t, err)
	require.Len(t, result.Commits, 2)
	assert.False(t, result.Truncated)

	first := result.Commits[0]
	assert.Equal(t, "a1", first.SHA)
	assert.Equal(t, "Alice Smith", first.AuthorName)
	assert.Equal(t, "alice@example.com", first.AuthorEmail)
	assert.Equal(t, 23, first.LinesAdded)
	assert.Equal(t, 1, first.LinesDeleted)
	assert.Equal(t, 24, first.LinesChanged)
	assert.Equal(t, 2, first.FilesChanged)
	require.Len(t, first.Files, 2)
	assert.Equal(t, "exporter.go", first.Files[0].FilePath)
	assert.Equal(t, domain.ChangeAdded, first.Files[0].Status)

	second := result.Commits[1]
	assert.Equal(t, "b1", second.SHA)
	assert.Equal(t, "Bob", second.AuthorName)
	require.Len(t, second.Files, 1)
	assert.Equal(t, "legacy.go", second.Files[0].FilePath)
	assert.Equal(t, domain.ChangeDeleted, second.Files[0].Status)
}

func TestBitbucketFetchCommitsDiffstatFailureKeepsCommit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"values": [%s]}`,
			bbCommitJSON("a1", "2024-03-05T10:00:00+00:00", "Add exporter", "Alice <alice@example.com>"))
	})
	mux.HandleFunc("/repositories/acme/widgets/diffstat/a1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	p := newTestBitbucket(t, mux)
	result, err := p.FetchCommits(context.Background(), bbRepoURL, "", nil, 100)
	require.NoError(t, err)
	require.Len(t, result.Commits, 1)
	c := result.Commits[0]
	assert.Equal(t, "a1", c.SHA)
	assert.Zero(t, c.LinesAdded)
	assert.Zero(t, c.LinesDeleted)
	assert.Zero(t, c.FilesChanged)
	assert.Empty(t, c.Files)
}

func TestBitbucketFetchCommitsStopsAtSinceBoundary(t *testing.T) {
	// Commits list newest first; crossing the boundary must stop the walk
	// without following the next cursor.
	var page2Hit bool
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			page2Hit = true
			fmt.Fprint(w, `{"values": []}`)
			return
		}
		next := fmt.Sprintf("http://%s/repositories/acme/widgets/commits?page=2", r.Host)
		fmt.Fprintf(w, `{"values": [%s, %s], "next": %q}`,
			bbCommitJSON("recent", "2024-03-10T10:00:00+00:00", "Add exporter", "Alice <alice@example.com>"),
			bbCommitJSON("old", "2024-01-01T10:00:00+00:00", "Ancient change", "Alice <alice@example.com>"),
			next)
	})
	mux.HandleFunc("/repositories/acme/widgets/diffstat/recent", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"values": []}`)
	})

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := newTestBitbucket(t, mux)
	result, err := p.FetchCommits(context.Background(), bbRepoURL, "", &since, 100)
	require.NoError(t, err)
	require.Len(t, result.Commits, 1)
	assert.Equal(t, "recent", result.Commits[0].SHA)
	assert.False(t, page2Hit)
}

func TestBitbucketFetchCommitsSkipsUnparseableDate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"values": [%s]}`,
			bbCommitJSON("weird", "not-a-date", "Broken clock", "Alice <alice@example.com>"))
	})

	p := newTestBitbucket(t, mux)
	result, err := p.FetchCommits(context.Background(), bbRepoURL, "", nil, 100)
	require.NoError(t, err)
	assert.Empty(t, result.Commits)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "weird", result.Skipped[0].SHA)
}

func TestBitbucketFetchCommitsTruncatedOnPageFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	p := newTestBitbucket(t, mux)
	result, err := p.FetchCommits(context.Background(), bbRepoURL, "", nil, 100)
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Empty(t, result.Commits)
}

func TestBitbucketValidateAccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"name": "widgets"}`)
	})

	p := newTestBitbucket(t, mux)

	ok, err := p.ValidateAccess(context.Background(), bbRepoURL, "token")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.ValidateAccess(context.Background(), "https://bitbucket.org/acme/missing", "token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBitbucketGetRepositoryInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repositories/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"name": "widgets",
			"full_name": "acme/widgets",
			"description": "widget factory",
			"language": "go",
			"created_on": "2020-01-02T03:04:05+00:00",
			"updated_on": "2024-02-03T04:05:06+00:00"
		}`)
	})

	p := newTestBitbucket(t, mux)
	info, err := p.GetRepositoryInfo(context.Background(), bbRepoURL, "")
	require.NoError(t, err)
	assert.Equal(t, "widgets", info.Name)
	assert.Equal(t, "acme/widgets", info.FullName)
	assert.Equal(t, "go", info.Language)
	assert.Equal(t, "2020-01-02T03:04:05+00:00", info.CreatedAt)
}
