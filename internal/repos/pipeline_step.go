package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "gorm.io/gorm/clause"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/types"
)

type PipelineStepRepo interface {
  Create(ctx context.Context, tx *gorm.DB, steps []*types.PipelineStep) ([]*types.PipelineStep, error)
  // GetByPipelineAndName with lock=true takes a FOR UPDATE row lock so
  // concurrent transitions on the same step serialize and the data
  // merge is computed against the committed row, not a stale snapshot.
  GetByPipelineAndName(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, stepName string, lock bool) (*types.PipelineStep, error)
  Update(ctx context.Context, tx *gorm.DB, step *types.PipelineStep) (*types.PipelineStep, error)
}

type pipelineStepRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPipelineStepRepo(db *gorm.DB, baseLog *logger.Logger) PipelineStepRepo {
  repoLog := baseLog.With("repo", "PipelineStepRepo")
  return &pipelineStepRepo{db: db, log: repoLog}
}

func (sr *pipelineStepRepo) Create(ctx context.Context, tx *gorm.DB, steps []*types.PipelineStep) ([]*types.PipelineStep, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }

  if len(steps) == 0 {
    return []*types.PipelineStep{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&steps).Error; err != nil {
    return nil, err
  }
  return steps, nil
}

func (sr *pipelineStepRepo) GetByPipelineAndName(ctx context.Context, tx *gorm.DB, pipelineID uuid.UUID, stepName string, lock bool) (*types.PipelineStep, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }

  query := transaction.WithContext(ctx)
  if lock {
    query = query.Clauses(clause.Locking{Strength: "UPDATE"})
  }

  var result types.PipelineStep
  if err := query.
    Where("pipeline_id = ? AND step_name = ?", pipelineID, stepName).
    First(&result).Error; err != nil {
    return nil, err
  }
  return &result, nil
}

func (sr *pipelineStepRepo) Update(ctx context.Context, tx *gorm.DB, step *types.PipelineStep) (*types.PipelineStep, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }

  updates := map[string]interface{}{
    "status":     step.Status,
    "data":       step.Data,
    "updated_by": step.UpdatedBy,
    "updated_at": step.UpdatedAt,
  }
  if err := transaction.WithContext(ctx).
    Model(&types.PipelineStep{}).
    Where("id = ?", step.ID).
    Updates(updates).Error; err != nil {
    return nil, err
  }
  return step, nil
}
