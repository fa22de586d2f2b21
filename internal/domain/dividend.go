package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Dividend statuses.
const (
	DividendStatusIssued    = "issued"
	DividendStatusProcessed = "processed"
)

// DividendRound is one company-wide dividend issuance. Return-of-capital
// rounds are not taxable income and are never withheld against.
type DividendRound struct {
	RoundID         uuid.UUID `gorm:"column:round_id;type:uuid;primaryKey" json:"round_id"`
	IssuedAt        time.Time `gorm:"column:issued_at;not null;index" json:"issued_at"`
	ReturnOfCapital bool      `gorm:"column:return_of_capital;not null;default:false" json:"return_of_capital"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (DividendRound) TableName() string {
	return "dividend_rounds"
}

func (r *DividendRound) BeforeCreate(tx *gorm.DB) error {
	if r.RoundID == uuid.Nil {
		r.RoundID = uuid.New()
	}
	return nil
}

// Dividend is one investor's slice of a round. Withholding fields are
// populated by the withholding calculator before payment execution and the
// row is never deleted.
type Dividend struct {
	DividendID              uuid.UUID        `gorm:"column:dividend_id;type:uuid;primaryKey" json:"dividend_id"`
	DividendRoundID         uuid.UUID        `gorm:"column:dividend_round_id;type:uuid;not null;index" json:"dividend_round_id"`
	CompanyInvestorID       *uuid.UUID       `gorm:"column:company_investor_id;type:uuid" json:"company_investor_id"`
	CompanyInvestorEntityID *uuid.UUID       `gorm:"column:company_investor_entity_id;type:uuid" json:"company_investor_entity_id"`
	TotalAmountInCents      int64            `gorm:"column:total_amount_in_cents;not null" json:"total_amount_in_cents"`
	QualifiedAmountCents    int64            `gorm:"column:qualified_amount_cents;not null;default:0" json:"qualified_amount_cents"`
	WithholdingPercentage   *decimal.Decimal `gorm:"column:withholding_percentage;type:decimal(5,2)" json:"withholding_percentage"`
	WithheldTaxCents        *int64           `gorm:"column:withheld_tax_cents" json:"withheld_tax_cents"`
	NetAmountInCents        *int64           `gorm:"column:net_amount_in_cents" json:"net_amount_in_cents"`
	Status                  string           `gorm:"column:status;type:varchar(20);not null;default:'issued'" json:"status"`
	CreatedAt               time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt               time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

func (Dividend) TableName() string {
	return "dividends"
}

func (d *Dividend) BeforeCreate(tx *gorm.DB) error {
	if d.DividendID == uuid.Nil {
		d.DividendID = uuid.New()
	}
	return nil
}

// TaxTreatyRate is one row of the treaty withholding table for non-US
// holders, keyed by ISO country code.
type TaxTreatyRate struct {
	CountryCode string          `gorm:"column:country_code;type:varchar(2);primaryKey" json:"country_code"`
	Percentage  decimal.Decimal `gorm:"column:percentage;type:decimal(5,2);not null" json:"percentage"`
	CreatedAt   time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (TaxTreatyRate) TableName() string {
	return "tax_treaty_rates"
}
