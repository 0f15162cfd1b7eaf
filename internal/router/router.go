package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/assessment-client/internal/config"
	"github.com/stemsi/assessment-client/internal/handler"
	"github.com/stemsi/assessment-client/internal/middleware"
	"github.com/stemsi/assessment-client/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Assessment *handler.AssessmentHandler
	// Events is nil when Redis is not configured.
	Events *handler.EventsHandler
}

// SetupRouter configures the local status and actions API. When apiToken is
// set, the assessment routes require it as a bearer token.
func SetupRouter(handlers *Handlers, cfg *config.Config, apiToken string) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so a local UI works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── Assessment Group ──────────────────────────────────────────────
	assessment := router.Group("/api/v1/assessment")
	assessment.Use(middleware.NoStore())
	if apiToken != "" {
		assessment.Use(middleware.RequireCandidateToken(apiToken))
	}
	{
		assessment.GET("/snapshot", handlers.Assessment.GetSnapshot)
		assessment.GET("/snapshots/:user_id/:test_id", handlers.Assessment.GetStoredSnapshot)

		// Actions reach the assessment backend, so they are rate limited.
		actions := assessment.Group("")
		if cfg.ActionRatePerMinute > 0 {
			actions.Use(middleware.NewRateLimiter(cfg.ActionRatePerMinute, time.Minute).Middleware())
		}
		actions.POST("/connect", handlers.Assessment.Connect)
		actions.POST("/start", handlers.Assessment.Start)
		actions.POST("/answers", handlers.Assessment.SubmitAnswer)
		actions.POST("/complete", handlers.Assessment.Complete)
		actions.POST("/test-info", handlers.Assessment.RequestTestInfo)
		actions.POST("/disconnect", handlers.Assessment.Disconnect)
		actions.POST("/reset", handlers.Assessment.Reset)
		actions.DELETE("/error", handlers.Assessment.ClearError)
		actions.DELETE("/logs", handlers.Assessment.ClearErrorLogs)

		if handlers.Events != nil {
			assessment.GET("/tests/:test_id/events", handlers.Events.StreamTestEvents)
		}
	}

	return router
}
