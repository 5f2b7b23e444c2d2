package main

import (
  "context"
  "fmt"
  "net/http"
  "os"
  "os/signal"
  "syscall"
  "time"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/utils"
  "github.com/connectplus/backend/internal/db"
  "github.com/connectplus/backend/internal/cache"
  "github.com/connectplus/backend/internal/repos"
  "github.com/connectplus/backend/internal/services"
  "github.com/connectplus/backend/internal/handlers"
  "github.com/connectplus/backend/internal/middleware"
  "github.com/connectplus/backend/internal/server"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  pipelineCacheTTL := utils.GetEnvAsInt("PIPELINE_CACHE_TTL", 30, log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Redis (optional; the pipeline list cache degrades to misses)
  redisClient, err := db.NewRedisClient(log)
  if err != nil {
    log.Warn("Redis init failed, pipeline list cache disabled", "error", err)
    redisClient = nil
  }

  // Repos
  log.Info("Setting up Repos from main...")
  dealRepo := repos.NewDealRepo(thePG, log)
  accountRepo := repos.NewAccountRepo(thePG, log)
  orderPipelineRepo := repos.NewOrderPipelineRepo(thePG, log)
  pipelineStepRepo := repos.NewPipelineStepRepo(thePG, log)
  pipelineLogRepo := repos.NewPipelineLogRepo(thePG, log)
  customerPoRepo := repos.NewCustomerPoRepo(thePG, log)

  // Cache
  pipelineCache := cache.NewPipelineCache(redisClient, time.Duration(pipelineCacheTTL)*time.Second, log)

  // Services
  log.Info("Setting up Services from main...")
  authService := services.NewAuthService(log, jwtSecretKey)
  pipelineService := services.NewPipelineService(
    thePG,
    log,
    dealRepo,
    accountRepo,
    orderPipelineRepo,
    pipelineStepRepo,
    pipelineLogRepo,
    customerPoRepo,
    pipelineCache,
  )

  // Handlers
  log.Info("Setting up handlers from main...")
  pipelineHandler := handlers.NewPipelineHandler(log, pipelineService)

  // Middleware
  log.Info("Setting up middleware from main...")
  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    AuthMiddleware:    authMiddleware,
    PipelineHandler:   pipelineHandler,
  })

  port := utils.GetEnv("PORT", "8080", log)
  httpServer := &http.Server{
    Addr:    ":" + port,
    Handler: router,
  }

  go func() {
    fmt.Printf("Server listening on :%s\n", port)
    if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
      log.Error("Server failed", "error", err)
    }
  }()

  // Shutdown
  ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
  defer stop()
  <-ctx.Done()
  log.Info("Shutting down...")

  shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
  defer cancel()
  if err := httpServer.Shutdown(shutdownCtx); err != nil {
    log.Warn("Server shutdown failed", "error", err)
  }
  if redisClient != nil {
    if err := redisClient.Close(); err != nil {
      log.Warn("Redis close failed", "error", err)
    }
  }
  if err := postgresService.Close(); err != nil {
    log.Warn("Postgres close failed", "error", err)
  }
}
