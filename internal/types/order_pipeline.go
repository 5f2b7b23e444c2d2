package types

import (
  "time"
  "github.com/google/uuid"
)

const (
  PipelineStatusActive    = "Active"
  PipelineStatusCompleted = "Completed"
)

// OrderPipeline is the per-deal fulfillment workflow instance. The
// unique index on DealID enforces at most one pipeline per deal.
// CurrentStage tracks furthest declared progress and is always a
// catalog step name; it is distinct from any individual step status.
type OrderPipeline struct {
  ID                uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  OrganizationID    uuid.UUID         `gorm:"type:uuid;not null;index" json:"organization_id"`
  DealID            uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex" json:"deal_id"`
  Deal              *Deal             `gorm:"constraint:OnDelete:CASCADE;foreignKey:DealID;references:ID" json:"deal,omitempty"`
  AccountID         uuid.UUID         `gorm:"type:uuid;not null;index" json:"account_id"`
  Account           *Account          `gorm:"constraint:OnDelete:CASCADE;foreignKey:AccountID;references:ID" json:"account,omitempty"`
  CurrentStage      string            `gorm:"not null;column:current_stage" json:"current_stage"`
  Status            string            `gorm:"not null;column:status;default:'Active'" json:"status"`
  Steps             []*PipelineStep   `gorm:"constraint:OnDelete:CASCADE;foreignKey:PipelineID;references:ID" json:"steps,omitempty"`
  Logs              []*PipelineLog    `gorm:"constraint:OnDelete:CASCADE;foreignKey:PipelineID;references:ID" json:"logs,omitempty"`
  CreatedAt         time.Time         `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt         time.Time         `gorm:"not null;default:now()" json:"updated_at"`
}

func (OrderPipeline) TableName() string {
  return "order_pipeline"
}
