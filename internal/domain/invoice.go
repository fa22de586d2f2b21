package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Invoice is the narrow slice of the external invoicing surface the ledger
// needs: a paid contractor invoice can carry an equity component that vests
// shares on an invoice_paid-triggered grant. Payment settlement itself is an
// external collaborator.
type Invoice struct {
	InvoiceID      uuid.UUID  `gorm:"column:invoice_id;type:uuid;primaryKey" json:"invoice_id"`
	ExternalNumber string     `gorm:"column:external_number;not null" json:"external_number"`
	EquityShares   int64      `gorm:"column:equity_shares;not null;default:0" json:"equity_shares"`
	PaidAt         *time.Time `gorm:"column:paid_at" json:"paid_at"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.InvoiceID == uuid.Nil {
		i.InvoiceID = uuid.New()
	}
	return nil
}
