package types

import (
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
)

const (
  StepStatusPending    = "PENDING"
  StepStatusInProgress = "IN_PROGRESS"
  StepStatusCompleted  = "COMPLETED"
)

// Known keys of the Data payload bag. Arbitrary extension keys are
// allowed alongside these.
const (
  StepDataKeyDescription = "description"
  StepDataKeyPoNumber    = "poNumber"
  StepDataKeyPoDate      = "poDate"
  StepDataKeyDocumentURL = "documentUrl"
  StepDataKeyValue       = "value"
)

// PipelineStep is one catalog entry instantiated for a pipeline. Steps
// are owned exclusively by their pipeline and mutate only through the
// engine's transition operation.
type PipelineStep struct {
  ID                uuid.UUID           `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  PipelineID        uuid.UUID           `gorm:"type:uuid;not null;index;uniqueIndex:idx_pipeline_step_name" json:"pipeline_id"`
  StepName          string              `gorm:"not null;column:step_name;uniqueIndex:idx_pipeline_step_name" json:"step_name"`
  AssignedRole      string              `gorm:"not null;column:assigned_role" json:"assigned_role"`
  Status            string              `gorm:"not null;column:status;default:'PENDING'" json:"status"`
  Data              datatypes.JSONMap   `gorm:"column:data;type:jsonb" json:"data"`
  UpdatedBy         *uuid.UUID          `gorm:"type:uuid;column:updated_by" json:"updated_by,omitempty"`
  CreatedAt         time.Time           `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt         time.Time           `gorm:"not null;default:now()" json:"updated_at"`
}

func (PipelineStep) TableName() string {
  return "pipeline_step"
}
