package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger())

	api := router.Group("/api")
	{
		api.GET("/health", handler.HealthCheck)

		repos := api.Group("/repositories")
		{
			repos.GET("", handler.ListRepositories)
			repos.POST("", handler.CreateRepository)
			repos.GET("/:id", handler.GetRepository)
			repos.DELETE("/:id", handler.DeleteRepository)
		}

		api.POST("/sync", handler.StartSync)
		api.GET("/sync/:id/status", handler.GetSyncStatus)

		metrics := api.Group("/metrics")
		{
			// Cross-repository views. Registered before :id so "all" and
			// "contributor" resolve as literals.
			all := metrics.Group("/all")
			{
				all.GET("/summary", handler.GetOverallSummary)
				all.GET("/comparison", handler.GetComparison)
				all.GET("/contributors", handler.GetCrossContributors)
				all.GET("/churn", handler.GetCrossChurn)
			}
			metrics.GET("/contributor/:email", handler.GetContributorProfile)

			repo := metrics.Group("/:id")
			{
				repo.GET("/summary", handler.GetSummary)
				repo.GET("/contributors", handler.GetContributors)
				repo.GET("/hotspots", handler.GetHotspots)
				repo.GET("/daily", handler.GetDailyMetrics)
				repo.GET("/churn", handler.GetChurn)
				repo.GET("/velocity", handler.GetVelocity)
				repo.GET("/bus-factor", handler.GetBusFactor)
				repo.GET("/commit-patterns", handler.GetCommitPatterns)
				repo.GET("/quality", handler.GetQuality)
				repo.GET("/contributor-insights", handler.GetContributorInsights)
				repo.GET("/comprehensive", handler.GetComprehensive)
			}
		}
	}

	return router
}
