package types

import (
  "time"
  "github.com/google/uuid"
)

// PipelineLog is an append-only audit record. Rows are never updated
// or deleted.
type PipelineLog struct {
  ID                uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  PipelineID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"pipeline_id"`
  StepName          string        `gorm:"not null;column:step_name" json:"step_name"`
  Action            string        `gorm:"not null;column:action" json:"action"`
  PerformedBy       uuid.UUID     `gorm:"type:uuid;not null;column:performed_by" json:"performed_by"`
  CreatedAt         time.Time     `gorm:"not null;default:now()" json:"created_at"`
}

func (PipelineLog) TableName() string {
  return "pipeline_log"
}
