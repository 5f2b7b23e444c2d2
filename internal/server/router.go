package server

import (
  "github.com/gin-gonic/gin"
  "github.com/gin-contrib/cors"
  "github.com/connectplus/backend/internal/handlers"
  "github.com/connectplus/backend/internal/middleware"
)

type RouterConfig struct {
  AuthMiddleware    *middleware.AuthMiddleware
  PipelineHandler   *handlers.PipelineHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  // Cors
  router.Use(cors.New(cors.Config{
    AllowOrigins: []string{
      "http://localhost:80",
      "http://localhost:3000",
      "http://localhost:5174",
    },
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)

// ===============
// || Protected ||
// ===============
  api := router.Group("/api")
  api.Use(cfg.AuthMiddleware.RequireAuth())
  // Order pipelines
  api.POST("/pipelines", cfg.PipelineHandler.CreatePipeline)
  api.GET("/pipelines", cfg.PipelineHandler.ListPipelines)
  api.GET("/pipelines/:id", cfg.PipelineHandler.GetPipeline)
  // Wildcard, not :stepName -- step names like "Deal/Opportunity"
  // carry a slash and would never match a single path segment.
  api.PATCH("/pipelines/:id/steps/*stepName", cfg.PipelineHandler.TransitionStep)

  return router
}
