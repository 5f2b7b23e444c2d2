package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/connectplus/backend/internal/logger"
  "github.com/connectplus/backend/internal/types"
)

type CustomerPoRepo interface {
  GetByDealAndNumber(ctx context.Context, tx *gorm.DB, dealID uuid.UUID, poNumber string) (*types.CustomerPo, error)
  Create(ctx context.Context, tx *gorm.DB, po *types.CustomerPo) (*types.CustomerPo, error)
  Update(ctx context.Context, tx *gorm.DB, po *types.CustomerPo) (*types.CustomerPo, error)
}

type customerPoRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewCustomerPoRepo(db *gorm.DB, baseLog *logger.Logger) CustomerPoRepo {
  repoLog := baseLog.With("repo", "CustomerPoRepo")
  return &customerPoRepo{db: db, log: repoLog}
}

func (cr *customerPoRepo) GetByDealAndNumber(ctx context.Context, tx *gorm.DB, dealID uuid.UUID, poNumber string) (*types.CustomerPo, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  var result types.CustomerPo
  if err := transaction.WithContext(ctx).
    Where("deal_id = ? AND po_number = ?", dealID, poNumber).
    First(&result).Error; err != nil {
    return nil, err
  }
  return &result, nil
}

func (cr *customerPoRepo) Create(ctx context.Context, tx *gorm.DB, po *types.CustomerPo) (*types.CustomerPo, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  if err := transaction.WithContext(ctx).Create(po).Error; err != nil {
    return nil, err
  }
  return po, nil
}

func (cr *customerPoRepo) Update(ctx context.Context, tx *gorm.DB, po *types.CustomerPo) (*types.CustomerPo, error) {
  transaction := tx
  if transaction == nil {
    transaction = cr.db
  }

  updates := map[string]interface{}{
    "po_date":      po.PoDate,
    "document_url": po.DocumentURL,
    "value":        po.Value,
    "status":       po.Status,
    "updated_at":   po.UpdatedAt,
  }
  if err := transaction.WithContext(ctx).
    Model(&types.CustomerPo{}).
    Where("id = ?", po.ID).
    Updates(updates).Error; err != nil {
    return nil, err
  }
  return po, nil
}
