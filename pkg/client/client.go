package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kurihiro0119/git-metrics/internal/domain"
)

// Client is the API client for git-metrics
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get("/api/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "healthy" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

// ListRepositories retrieves the configured repositories
func (c *Client) ListRepositories(activeOnly bool) ([]*domain.Repository, error) {
	params := url.Values{}
	if !activeOnly {
		params.Set("active_only", "false")
	}

	var response struct {
		Data []*domain.Repository `json:"data"`
	}
	if err := c.get("/api/repositories", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// CreateRepositoryResult is the response of a repository registration.
type CreateRepositoryResult struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Message string          `json:"message"`
	Info    domain.RepoInfo `json:"info"`
}

// CreateRepository registers a repository
func (c *Client) CreateRepository(name, repoURL, provider, accessToken string) (*CreateRepositoryResult, error) {
	body := map[string]string{
		"name":         name,
		"url":          repoURL,
		"provider":     provider,
		"access_token": accessToken,
	}

	var response struct {
		Data *CreateRepositoryResult `json:"data"`
	}
	if err := c.post("/api/repositories", body, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// DeleteRepository deactivates a repository
func (c *Client) DeleteRepository(id int64) error {
	u, err := url.Parse(c.baseURL + "/api/repositories/" + strconv.FormatInt(id, 10))
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodDelete, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return nil
}

// StartSync triggers a background sync for a repository
func (c *Client) StartSync(repoID int64, fullSync bool) (*domain.SyncTask, error) {
	body := map[string]interface{}{
		"repo_id":   repoID,
		"full_sync": fullSync,
	}

	var response struct {
		Data struct {
			Message string           `json:"message"`
			Task    *domain.SyncTask `json:"task"`
		} `json:"data"`
	}
	if err := c.post("/api/sync", body, &response); err != nil {
		return nil, err
	}
	return response.Data.Task, nil
}

// SyncStatus retrieves the sync task for a repository
func (c *Client) SyncStatus(repoID int64) (*domain.SyncTask, error) {
	var response struct {
		Data *domain.SyncTask `json:"data"`
	}
	path := fmt.Sprintf("/api/sync/%d/status", repoID)
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetSummary retrieves headline totals for a repository
func (c *Client) GetSummary(repoID int64) (*domain.RepoSummary, error) {
	var response struct {
		Data *domain.RepoSummary `json:"data"`
	}
	path := fmt.Sprintf("/api/metrics/%d/summary", repoID)
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetContributors retrieves contributor aggregates for a repository
func (c *Client) GetContributors(repoID int64) ([]*domain.ContributorAggregate, error) {
	var response struct {
		Data []*domain.ContributorAggregate `json:"data"`
	}
	path := fmt.Sprintf("/api/metrics/%d/contributors", repoID)
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetChurn retrieves windowed code churn for a repository
func (c *Client) GetChurn(repoID int64, days int) (*domain.ChurnReport, error) {
	params := url.Values{}
	if days > 0 {
		params.Set("days", strconv.Itoa(days))
	}

	var response struct {
		Data *domain.ChurnReport `json:"data"`
	}
	path := fmt.Sprintf("/api/metrics/%d/churn", repoID)
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetVelocity retrieves weekly velocity trends for a repository
func (c *Client) GetVelocity(repoID int64, weeks int) (*domain.VelocityReport, error) {
	params := url.Values{}
	if weeks > 0 {
		params.Set("weeks", strconv.Itoa(weeks))
	}

	var response struct {
		Data *domain.VelocityReport `json:"data"`
	}
	path := fmt.Sprintf("/api/metrics/%d/velocity", repoID)
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetBusFactor retrieves the knowledge concentration report for a repository
func (c *Client) GetBusFactor(repoID int64) (*domain.BusFactorReport, error) {
	var response struct {
		Data *domain.BusFactorReport `json:"data"`
	}
	path := fmt.Sprintf("/api/metrics/%d/bus-factor", repoID)
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetComprehensive retrieves every metric family for a repository
func (c *Client) GetComprehensive(repoID int64) (*domain.ComprehensiveReport, error) {
	var response struct {
		Data *domain.ComprehensiveReport `json:"data"`
	}
	path := fmt.Sprintf("/api/metrics/%d/comprehensive", repoID)
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetOverallSummary retrieves totals across all active repositories
func (c *Client) GetOverallSummary() (*domain.OverallSummary, error) {
	var response struct {
		Data *domain.OverallSummary `json:"data"`
	}
	if err := c.get("/api/metrics/all/summary", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetComparison retrieves repositories ranked by one metric
func (c *Client) GetComparison(metric string) ([]domain.ComparisonEntry, error) {
	params := url.Values{}
	if metric != "" {
		params.Set("metric", metric)
	}

	var response struct {
		Data []domain.ComparisonEntry `json:"data"`
	}
	if err := c.get("/api/metrics/all/comparison", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetCrossContributors retrieves contributors merged across repositories
func (c *Client) GetCrossContributors(limit int) ([]domain.CrossContributor, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var response struct {
		Data []domain.CrossContributor `json:"data"`
	}
	if err := c.get("/api/metrics/all/contributors", params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetContributorProfile retrieves one contributor's cross-repository profile
func (c *Client) GetContributorProfile(email string) (*domain.ContributorProfile, error) {
	var response struct {
		Data *domain.ContributorProfile `json:"data"`
	}
	path := "/api/metrics/contributor/" + url.PathEscape(email)
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
