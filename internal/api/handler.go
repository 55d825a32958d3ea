package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/git-metrics/internal/aggregator"
	"github.com/kurihiro0119/git-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/git-metrics/internal/errors"
	"github.com/kurihiro0119/git-metrics/internal/provider"
	"github.com/kurihiro0119/git-metrics/internal/storage"
	"github.com/kurihiro0119/git-metrics/internal/syncer"
)

// Handler handles API requests
type Handler struct {
	store     storage.Store
	providers provider.Factory
	syncer    *syncer.Syncer
	engine    *aggregator.Engine
}

// NewHandler creates a new API handler
func NewHandler(store storage.Store, providers provider.Factory, sync *syncer.Syncer, engine *aggregator.Engine) *Handler {
	return &Handler{
		store:     store,
		providers: providers,
		syncer:    sync,
		engine:    engine,
	}
}

// HealthCheck returns the health status of the API
// GET /api/health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

type createRepositoryRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url" binding:"required"`
	Provider    string `json:"provider"`
	AccessToken string `json:"access_token"`
}

// ListRepositories returns the configured repositories
// GET /api/repositories
func (h *Handler) ListRepositories(c *gin.Context) {
	activeOnly := c.DefaultQuery("active_only", "true") != "false"

	repos, err := h.store.GetRepositories(c.Request.Context(), activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": repos,
	})
}

// CreateRepository registers a repository after validating provider access
// POST /api/repositories
func (h *Handler) CreateRepository(c *gin.Context) {
	var req createRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if req.Provider == "" {
		req.Provider = string(domain.ProviderGitHub)
	}

	prov, err := h.providers(domain.ProviderName(req.Provider))
	if err != nil {
		respondError(c, err)
		return
	}

	ok, err := prov.ValidateAccess(c.Request.Context(), req.URL, req.AccessToken)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		respondError(c, apperrors.NewAccessDeniedError("cannot access repository, check URL and access token"))
		return
	}

	info, err := prov.GetRepositoryInfo(c.Request.Context(), req.URL, req.AccessToken)
	if err != nil {
		respondError(c, err)
		return
	}

	name := req.Name
	if info.Name != "" {
		name = info.Name
	}

	repo, err := h.store.UpsertRepository(c.Request.Context(), &domain.Repository{
		Name:        name,
		URL:         req.URL,
		Provider:    domain.ProviderName(req.Provider),
		AccessToken: req.AccessToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data": gin.H{
			"id":      repo.ID,
			"name":    repo.Name,
			"message": "Repository added successfully",
			"info":    info,
		},
	})
}

// GetRepository returns one repository
// GET /api/repositories/:id
func (h *Handler) GetRepository(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	repo, err := h.store.GetRepository(c.Request.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			respondError(c, apperrors.NewNotFoundError("repository"))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": repo,
	})
}

// DeleteRepository deactivates a repository. Its stored history remains.
// DELETE /api/repositories/:id
func (h *Handler) DeleteRepository(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.store.DeactivateRepository(c.Request.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			respondError(c, apperrors.NewNotFoundError("repository"))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"message": "Repository deactivated successfully"},
	})
}

type syncRequest struct {
	RepoID   int64 `json:"repo_id" binding:"required"`
	FullSync bool  `json:"full_sync"`
}

// StartSync triggers a background sync run
// POST /api/sync
func (h *Handler) StartSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	task, err := h.syncer.StartSync(req.RepoID, req.FullSync)
	if err != nil {
		if apperrors.IsSyncInProgress(err) {
			c.JSON(http.StatusConflict, gin.H{
				"error": gin.H{
					"code":    apperrors.ErrCodeSyncInProgress,
					"message": "Sync already in progress",
				},
				"data": task,
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"data": gin.H{
			"message": "Sync started",
			"task":    task,
		},
	})
}

// GetSyncStatus returns the sync task for a repository
// GET /api/sync/:id/status
func (h *Handler) GetSyncStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	task := h.syncer.Status(id)
	if task == nil {
		c.JSON(http.StatusOK, gin.H{
			"data": gin.H{"status": domain.SyncNotStarted},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": task,
	})
}

// requireRepo resolves the :id path parameter to an existing repository.
func (h *Handler) requireRepo(c *gin.Context) (int64, bool) {
	id, ok := parseID(c)
	if !ok {
		return 0, false
	}
	if _, err := h.store.GetRepository(c.Request.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			respondError(c, apperrors.NewNotFoundError("repository"))
			return 0, false
		}
		respondError(c, err)
		return 0, false
	}
	return id, true
}

// GetSummary returns headline totals for a repository
// GET /api/metrics/:id/summary
func (h *Handler) GetSummary(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	summary, err := h.engine.Summary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetContributors returns contributor aggregates for a repository
// GET /api/metrics/:id/contributors
func (h *Handler) GetContributors(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	contributors, err := h.store.GetContributorAggregates(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contributors})
}

// GetHotspots returns the most changed files of a repository
// GET /api/metrics/:id/hotspots
func (h *Handler) GetHotspots(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	limit := parseIntQuery(c, "limit", 20)
	hotspots, err := h.store.GetFileHotspots(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": hotspots})
}

// GetDailyMetrics returns per-day activity rollups
// GET /api/metrics/:id/daily
func (h *Handler) GetDailyMetrics(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	days := parseIntQuery(c, "days", 30)
	dailies, err := h.store.GetDailyMetrics(c.Request.Context(), id, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dailies})
}

// GetChurn returns windowed code churn
// GET /api/metrics/:id/churn
func (h *Handler) GetChurn(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	days := parseIntQuery(c, "days", 30)
	report, err := h.engine.CodeChurn(c.Request.Context(), id, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetVelocity returns weekly velocity trends
// GET /api/metrics/:id/velocity
func (h *Handler) GetVelocity(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	weeks := parseIntQuery(c, "weeks", 12)
	report, err := h.engine.VelocityTrends(c.Request.Context(), id, weeks)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetBusFactor returns the knowledge concentration report
// GET /api/metrics/:id/bus-factor
func (h *Handler) GetBusFactor(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	report, err := h.engine.BusFactor(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetCommitPatterns returns hour and weekday commit histograms
// GET /api/metrics/:id/commit-patterns
func (h *Handler) GetCommitPatterns(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	patterns, err := h.engine.CommitPatterns(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": patterns})
}

// GetQuality returns commit-shape quality indicators
// GET /api/metrics/:id/quality
func (h *Handler) GetQuality(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	report, err := h.engine.QualityIndicators(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetContributorInsights returns the contributor breakdown with roles
// GET /api/metrics/:id/contributor-insights
func (h *Handler) GetContributorInsights(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	insights, err := h.engine.ContributorInsights(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": insights})
}

// GetComprehensive returns every metric family in one report. Unlike the
// individual metric endpoints, it requires at least one synced commit.
// GET /api/metrics/:id/comprehensive
func (h *Handler) GetComprehensive(c *gin.Context) {
	id, ok := h.requireRepo(c)
	if !ok {
		return
	}
	report, err := h.engine.Comprehensive(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if report.Summary.TotalCommits == 0 {
		respondError(c, apperrors.NewNotFoundError("commit data for repository"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetOverallSummary returns totals across all active repositories
// GET /api/metrics/all/summary
func (h *Handler) GetOverallSummary(c *gin.Context) {
	summary, err := h.engine.OverallSummary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

// GetComparison ranks repositories by one metric
// GET /api/metrics/all/comparison
func (h *Handler) GetComparison(c *gin.Context) {
	metric := domain.ComparisonMetric(c.DefaultQuery("metric", "commits"))
	switch metric {
	case domain.CompareCommits, domain.CompareContributors, domain.CompareChurn:
	default:
		respondError(c, apperrors.NewValidationError("metric must be one of: commits, contributors, churn"))
		return
	}

	entries, err := h.engine.Comparison(c.Request.Context(), metric)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// GetCrossContributors returns contributors merged across repositories
// GET /api/metrics/all/contributors
func (h *Handler) GetCrossContributors(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	contributors, err := h.engine.CrossRepoContributors(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contributors})
}

// GetCrossChurn returns windowed churn across repositories
// GET /api/metrics/all/churn
func (h *Handler) GetCrossChurn(c *gin.Context) {
	days := parseIntQuery(c, "days", 30)
	report, err := h.engine.CrossRepoChurn(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

// GetContributorProfile returns one contributor's cross-repository profile
// GET /api/metrics/contributor/:email
func (h *Handler) GetContributorProfile(c *gin.Context) {
	email := c.Param("email")
	if email == "" {
		respondError(c, apperrors.NewValidationError("email is required"))
		return
	}

	profile, err := h.engine.ContributorByEmail(c.Request.Context(), email)
	if err != nil {
		respondError(c, err)
		return
	}
	if profile == nil {
		respondError(c, apperrors.NewNotFoundError("contributor"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profile})
}

// parseID parses the :id path parameter
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperrors.NewValidationError("invalid repository id"))
		return 0, false
	}
	return id, true
}

// parseIntQuery parses an integer query parameter with a default value
func parseIntQuery(c *gin.Context, key string, defaultValue int) int {
	valueStr := c.Query(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeValidation:
			status = http.StatusBadRequest
		case apperrors.ErrCodeAccessDenied:
			status = http.StatusForbidden
		case apperrors.ErrCodeSyncInProgress:
			status = http.StatusConflict
		case apperrors.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrCodeInternal,
			"message": err.Error(),
		},
	})
}
