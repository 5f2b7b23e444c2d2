package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/types"
)

type AccountRepo interface {
  GetByIDs(ctx context.Context, tx *gorm.DB, accountIDs []uuid.UUID) ([]*types.Account, error)
}

type accountRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAccountRepo(db *gorm.DB, baseLog *logger.Logger) AccountRepo {
  repoLog := baseLog.With("repo", "AccountRepo")
  return &accountRepo{db: db, log: repoLog}
}

func (ar *accountRepo) GetByIDs(ctx context.Context, tx *gorm.DB, accountIDs []uuid.UUID) ([]*types.Account, error) {
  transaction := tx
  if transaction == nil {
    transaction = ar.db
  }

  var results []*types.Account
  if len(accountIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("id IN ?", accountIDs).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
