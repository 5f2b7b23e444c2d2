package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/types"
)

type OrderPipelineRepo interface {
  Create(ctx context.Context, tx *gorm.DB, pipeline *types.OrderPipeline) (*types.OrderPipeline, error)
  GetByID(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID) (*types.OrderPipeline, error)
  GetAll(ctx context.Context, tx *gorm.DB, organizationID *uuid.UUID) ([]*types.OrderPipeline, error)
  ExistsForDeal(ctx context.Context, tx *gorm.DB, dealID uuid.UUID) (bool, error)
  UpdateCurrentStage(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, stage string) error
  UpdateStatus(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, status string) error
}

type orderPipelineRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewOrderPipelineRepo(db *gorm.DB, baseLog *logger.Logger) OrderPipelineRepo {
  repoLog := baseLog.With("repo", "OrderPipelineRepo")
  return &orderPipelineRepo{db: db, log: repoLog}
}

func (pr *orderPipelineRepo) Create(ctx context.Context, tx *gorm.DB, pipeline *types.OrderPipeline) (*types.OrderPipeline, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  if err := transaction.WithContext(ctx).Create(pipeline).Error; err != nil {
    return nil, err
  }
  return pipeline, nil
}

func (pr *orderPipelineRepo) GetByID(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID) (*types.OrderPipeline, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  var result types.OrderPipeline
  if err := transaction.WithContext(ctx).
    Preload("Deal").
    Preload("Account").
    Preload("Steps").
    Where("id = ?", pipelineID).
    First(&result).Error; err != nil {
    return nil, err
  }
  return &result, nil
}

func (pr *orderPipelineRepo) GetAll(ctx context.Context, tx *gorm.DB, organizationID *uuid.UUID) ([]*types.OrderPipeline, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  query := transaction.WithContext(ctx).
    Preload("Deal").
    Preload("Account").
    Preload("Steps").
    Order("created_at DESC")
  if organizationID != nil {
    query = query.Where("organization_id = ?", *organizationID)
  }

  var results []*types.OrderPipeline
  if err := query.Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (pr *orderPipelineRepo) ExistsForDeal(ctx context.Context, tx *gorm.DB, dealID uuid.UUID) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.OrderPipeline{}).
    Where("deal_id = ?", dealID).
    Count(&count).Error; err != nil {
    return false, err
  }
  return count > 0, nil
}

func (pr *orderPipelineRepo) UpdateCurrentStage(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, stage string) error {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  return transaction.WithContext(ctx).
    Model(&types.OrderPipeline{}).
    Where("id = ?", pipelineID).
    Update("current_stage", stage).Error
}

func (pr *orderPipelineRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, status string) error {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  return transaction.WithContext(ctx).
    Model(&types.OrderPipeline{}).
    Where("id = ?", pipelineID).
    Update("status", status).Error
}
