package types

import (
  "time"
  "github.com/google/uuid"
)

type Account struct {
  ID                uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  OrganizationID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"organization_id"`
  Organization      *Organization   `gorm:"constraint:OnDelete:CASCADE;foreignKey:OrganizationID;references:ID" json:"organization,omitempty"`
  Name              string          `gorm:"not null;column:name" json:"name"`
  Industry          string          `gorm:"column:industry" json:"industry"`
  Website           string          `gorm:"column:website" json:"website"`
  OwnerID           *uuid.UUID      `gorm:"type:uuid;index" json:"owner_id,omitempty"`
  CreatedAt         time.Time       `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt         time.Time       `gorm:"not null;default:now()" json:"updated_at"`
}

func (Account) TableName() string {
  return "account"
}
