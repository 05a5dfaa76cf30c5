// Package api assembles the gin HTTP surface
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pitchforge/pitch-builder-service/internal/api/handlers"
	"github.com/pitchforge/pitch-builder-service/internal/api/middleware"
)

// RouterConfig carries the wired handlers
type RouterConfig struct {
	SessionHandler *handlers.SessionHandler
	HealthHandler  *handlers.HealthHandler
	Production     bool
}

// NewRouter builds the HTTP router
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", middleware.OwnerHeader},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", cfg.HealthHandler.Check)

	sessions := router.Group("/api/sessions")
	sessions.Use(middleware.RequireOwner())
	{
		sessions.POST("", cfg.SessionHandler.Create)
		sessions.GET("", cfg.SessionHandler.List)
		sessions.GET("/:id", cfg.SessionHandler.Get)

		// Wizard navigation
		sessions.POST("/:id/advance", cfg.SessionHandler.Advance)
		sessions.POST("/:id/retreat", cfg.SessionHandler.Retreat)
		sessions.POST("/:id/jump", cfg.SessionHandler.Jump)

		// Draft mutation
		sessions.PATCH("/:id/fields", cfg.SessionHandler.SetField)
		sessions.PUT("/:id/block-count", cfg.SessionHandler.SetBlockCount)
		sessions.POST("/:id/save", cfg.SessionHandler.Save)

		// Generation lifecycle
		sessions.POST("/:id/confirm", cfg.SessionHandler.Confirm)
		sessions.POST("/:id/cancel", cfg.SessionHandler.Cancel)
		sessions.GET("/:id/generation", cfg.SessionHandler.GenerationStatus)
		sessions.POST("/:id/finalize", cfg.SessionHandler.Finalize)

		// Advisory guidance
		sessions.POST("/:id/guidance", cfg.SessionHandler.Guidance)
	}

	return router
}
