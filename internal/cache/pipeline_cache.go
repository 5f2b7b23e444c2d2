package cache

import (
  "context"
  "encoding/json"
  "time"
  "github.com/google/uuid"
  "github.com/redis/go-redis/v9"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/types"
)

// PipelineCache fronts the per-organization pipeline list, the hottest
// read path. Entries are invalidated on every create/transition, so a
// hit can never serve a stale stage. All methods are best-effort; a
// nil client or a redis failure degrades to a miss.
type PipelineCache interface {
  GetList(ctx context.Context, organizationID uuid.UUID) ([]*types.OrderPipeline, bool)
  SetList(ctx context.Context, organizationID uuid.UUID, pipelines []*types.OrderPipeline)
  Invalidate(ctx context.Context, organizationID uuid.UUID)
}

type pipelineCache struct {
  rdb *redis.Client
  ttl time.Duration
  log *logger.Logger
}

func NewPipelineCache(rdb *redis.Client, ttl time.Duration, baseLog *logger.Logger) PipelineCache {
  cacheLog := baseLog.With("cache", "PipelineCache")
  return &pipelineCache{rdb: rdb, ttl: ttl, log: cacheLog}
}

func listKey(organizationID uuid.UUID) string {
  return "pipelines:org:" + organizationID.String()
}

func (pc *pipelineCache) GetList(ctx context.Context, organizationID uuid.UUID) ([]*types.OrderPipeline, bool) {
  if pc.rdb == nil {
    return nil, false
  }
  raw, err := pc.rdb.Get(ctx, listKey(organizationID)).Bytes()
  if err != nil {
    if err != redis.Nil {
      pc.log.Warn("Pipeline list cache read failed", "error", err, "organization_id", organizationID)
    }
    return nil, false
  }
  var pipelines []*types.OrderPipeline
  if err := json.Unmarshal(raw, &pipelines); err != nil {
    pc.log.Warn("Pipeline list cache entry corrupt, dropping", "error", err, "organization_id", organizationID)
    pc.Invalidate(ctx, organizationID)
    return nil, false
  }
  return pipelines, true
}

func (pc *pipelineCache) SetList(ctx context.Context, organizationID uuid.UUID, pipelines []*types.OrderPipeline) {
  if pc.rdb == nil {
    return
  }
  raw, err := json.Marshal(pipelines)
  if err != nil {
    pc.log.Warn("Pipeline list cache marshal failed", "error", err, "organization_id", organizationID)
    return
  }
  if err := pc.rdb.Set(ctx, listKey(organizationID), raw, pc.ttl).Err(); err != nil {
    pc.log.Warn("Pipeline list cache write failed", "error", err, "organization_id", organizationID)
  }
}

func (pc *pipelineCache) Invalidate(ctx context.Context, organizationID uuid.UUID) {
  if pc.rdb == nil {
    return
  }
  if err := pc.rdb.Del(ctx, listKey(organizationID)).Err(); err != nil {
    pc.log.Warn("Pipeline list cache invalidation failed", "error", err, "organization_id", organizationID)
  }
}
