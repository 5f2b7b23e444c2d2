package types

import (
  "time"
  "github.com/google/uuid"
)

type Organization struct {
  ID          uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  Name        string      `gorm:"not null;column:name" json:"name"`
  Domain      string      `gorm:"column:domain" json:"domain"`
  CreatedAt   time.Time   `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt   time.Time   `gorm:"not null;default:now()" json:"updated_at"`
}

func (Organization) TableName() string {
  return "organization"
}
