package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/types"
)

type DealRepo interface {
  GetByIDs(ctx context.Context, tx *gorm.DB, dealIDs []uuid.UUID) ([]*types.Deal, error)
}

type dealRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewDealRepo(db *gorm.DB, baseLog *logger.Logger) DealRepo {
  repoLog := baseLog.With("repo", "DealRepo")
  return &dealRepo{db: db, log: repoLog}
}

func (dr *dealRepo) GetByIDs(ctx context.Context, tx *gorm.DB, dealIDs []uuid.UUID) ([]*types.Deal, error) {
  transaction := tx
  if transaction == nil {
    transaction = dr.db
  }

  var results []*types.Deal
  if len(dealIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("id IN ?", dealIDs).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
