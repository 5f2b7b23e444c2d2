package db

import (
  "context"
  "fmt"
  "time"
  "github.com/redis/go-redis/v9"
  "github.com/connectplus/backend/internal/utils"
  "github.com/connectplus/backend/internal/logger"
)

func NewRedisClient(log *logger.Logger) (*redis.Client, error) {
  redisHost := utils.GetEnv("REDIS_HOST", "localhost", log)
  redisPort := utils.GetEnv("REDIS_PORT", "6379", log)
  redisPassword := utils.GetEnv("REDIS_PASSWORD", "", log)
  redisDB := utils.GetEnvAsInt("REDIS_DB", 0, log)

  client := redis.NewClient(&redis.Options{
    Addr:     fmt.Sprintf("%s:%s", redisHost, redisPort),
    Password: redisPassword,
    DB:       redisDB,
  })

  ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
  defer cancel()
  if err := client.Ping(ctx).Err(); err != nil {
    log.Warn("Failed to ping Redis", "error", err)
    return nil, fmt.Errorf("Failed to ping Redis: %w", err)
  }
  log.Info("Connected to Redis")
  return client, nil
}
