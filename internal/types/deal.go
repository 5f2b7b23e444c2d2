package types

import (
  "time"
  "github.com/google/uuid"
)

// Deal.Stage is the sales stage free text and is distinct from the
// order pipeline's currentStage.
type Deal struct {
  ID                uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  OrganizationID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"organization_id"`
  Organization      *Organization   `gorm:"constraint:OnDelete:CASCADE;foreignKey:OrganizationID;references:ID" json:"organization,omitempty"`
  AccountID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"account_id"`
  Account           *Account        `gorm:"constraint:OnDelete:CASCADE;foreignKey:AccountID;references:ID" json:"account,omitempty"`
  OwnerID           *uuid.UUID      `gorm:"type:uuid;index" json:"owner_id,omitempty"`
  Amount            float64         `gorm:"column:amount;not null;default:0" json:"amount"`
  Stage             string          `gorm:"column:stage" json:"stage"`
  CloseDate         *time.Time      `gorm:"column:close_date" json:"close_date,omitempty"`
  CreatedAt         time.Time       `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt         time.Time       `gorm:"not null;default:now()" json:"updated_at"`
}

func (Deal) TableName() string {
  return "deal"
}
