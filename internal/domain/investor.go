package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CompanyInvestor is an individual holder. TotalShares/TotalOptions are
// running aggregates updated in lockstep with grant mutations by the ledger.
type CompanyInvestor struct {
	InvestorID     uuid.UUID `gorm:"column:investor_id;type:uuid;primaryKey" json:"investor_id"`
	UserExternalID string    `gorm:"column:user_external_id;not null" json:"user_external_id"`
	CountryCode    string    `gorm:"column:country_code;type:varchar(2);not null" json:"country_code"`
	USTaxResident  bool      `gorm:"column:us_tax_resident;not null;default:false" json:"us_tax_resident"`
	TaxIDPresent   bool      `gorm:"column:tax_id_present;not null;default:false" json:"tax_id_present"`
	TaxIDVerified  bool      `gorm:"column:tax_id_verified;not null;default:false" json:"tax_id_verified"`
	Email          string    `gorm:"column:email" json:"email"`
	TotalShares    int64     `gorm:"column:total_shares;not null;default:0" json:"total_shares"`
	TotalOptions   int64     `gorm:"column:total_options;not null;default:0" json:"total_options"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (CompanyInvestor) TableName() string {
	return "company_investors"
}

func (i *CompanyInvestor) BeforeCreate(tx *gorm.DB) error {
	if i.InvestorID == uuid.Nil {
		i.InvestorID = uuid.New()
	}
	return nil
}

// CompanyInvestorEntity is a holder that is a legal entity rather than a
// person (fund, trust, holding company). Same aggregate counters as
// CompanyInvestor; a grant belongs to exactly one of the two.
type CompanyInvestorEntity struct {
	EntityID      uuid.UUID `gorm:"column:entity_id;type:uuid;primaryKey" json:"entity_id"`
	Name          string    `gorm:"column:name;not null" json:"name"`
	CountryCode   string    `gorm:"column:country_code;type:varchar(2);not null" json:"country_code"`
	USTaxResident bool      `gorm:"column:us_tax_resident;not null;default:false" json:"us_tax_resident"`
	TaxIDPresent  bool      `gorm:"column:tax_id_present;not null;default:false" json:"tax_id_present"`
	TaxIDVerified bool      `gorm:"column:tax_id_verified;not null;default:false" json:"tax_id_verified"`
	Email         string    `gorm:"column:email" json:"email"`
	TotalShares   int64     `gorm:"column:total_shares;not null;default:0" json:"total_shares"`
	TotalOptions  int64     `gorm:"column:total_options;not null;default:0" json:"total_options"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (CompanyInvestorEntity) TableName() string {
	return "company_investor_entities"
}

func (e *CompanyInvestorEntity) BeforeCreate(tx *gorm.DB) error {
	if e.EntityID == uuid.Nil {
		e.EntityID = uuid.New()
	}
	return nil
}
