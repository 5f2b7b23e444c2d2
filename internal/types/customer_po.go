package types

import (
  "time"
  "github.com/google/uuid"
)

const CustomerPoStatusReceived = "Received"

// CustomerPo is a dependent record keyed by (deal, PO number). It is
// created or refreshed when the Customer PO pipeline step completes;
// there is no direct foreign key from the step to the PO.
type CustomerPo struct {
  ID                uuid.UUID     `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  OrganizationID    uuid.UUID     `gorm:"type:uuid;not null;index" json:"organization_id"`
  DealID            uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_customer_po_deal_number" json:"deal_id"`
  Deal              *Deal         `gorm:"constraint:OnDelete:CASCADE;foreignKey:DealID;references:ID" json:"deal,omitempty"`
  PoNumber          string        `gorm:"not null;column:po_number;uniqueIndex:idx_customer_po_deal_number" json:"po_number"`
  PoDate            *time.Time    `gorm:"column:po_date" json:"po_date,omitempty"`
  DocumentURL       string        `gorm:"column:document_url" json:"document_url"`
  Value             float64       `gorm:"column:value;not null;default:0" json:"value"`
  Status            string        `gorm:"not null;column:status;default:'Received'" json:"status"`
  CreatedAt         time.Time     `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt         time.Time     `gorm:"not null;default:now()" json:"updated_at"`
}

func (CustomerPo) TableName() string {
  return "customer_po"
}
