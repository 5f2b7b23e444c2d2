package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/types"
)

// PipelineLogRepo is append-only. There is intentionally no update or
// delete method.
type PipelineLogRepo interface {
  Create(ctx context.Context, tx *gorm.DB, logs []*types.PipelineLog) ([]*types.PipelineLog, error)
  GetByPipelineID(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID) ([]*types.PipelineLog, error)
}

type pipelineLogRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPipelineLogRepo(db *gorm.DB, baseLog *logger.Logger) PipelineLogRepo {
  repoLog := baseLog.With("repo", "PipelineLogRepo")
  return &pipelineLogRepo{db: db, log: repoLog}
}

func (lr *pipelineLogRepo) Create(ctx context.Context, tx *gorm.DB, logs []*types.PipelineLog) ([]*types.PipelineLog, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }

  if len(logs) == 0 {
    return []*types.PipelineLog{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&logs).Error; err != nil {
    return nil, err
  }
  return logs, nil
}

func (lr *pipelineLogRepo) GetByPipelineID(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID) ([]*types.PipelineLog, error) {
  transaction := tx
  if transaction == nil {
    transaction = lr.db
  }

  var results []*types.PipelineLog
  if err := transaction.WithContext(ctx).
    Where("pipeline_id = ?", pipelineID).
    Order("created_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
