package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Vesting triggers.
const (
	VestingTriggerScheduled   = "scheduled"
	VestingTriggerInvoicePaid = "invoice_paid"
)

var (
	// ErrGrantSumInvariant is returned when the four share-state buckets do
	// not add back up to number_of_shares.
	ErrGrantSumInvariant = errors.New("grant share buckets do not sum to number_of_shares")

	// ErrGrantNegativeShares is returned when any bucket would go negative.
	ErrGrantNegativeShares = errors.New("grant share bucket is negative")

	// ErrGrantOwner is returned unless exactly one of the investor /
	// investor-entity foreign keys is populated.
	ErrGrantOwner = errors.New("grant must belong to exactly one investor or investor entity")
)

// EquityGrant is one option grant issued to a holder. The four share-state
// counters are a cache of the grant's transaction ledger; they are mutated
// only inside ledger operations holding the grant's row lock.
type EquityGrant struct {
	GrantID                 uuid.UUID       `gorm:"column:grant_id;type:uuid;primaryKey" json:"grant_id"`
	OptionPoolID            uuid.UUID       `gorm:"column:option_pool_id;type:uuid;not null" json:"option_pool_id"`
	CompanyInvestorID       *uuid.UUID      `gorm:"column:company_investor_id;type:uuid" json:"company_investor_id"`
	CompanyInvestorEntityID *uuid.UUID      `gorm:"column:company_investor_entity_id;type:uuid" json:"company_investor_entity_id"`
	NumberOfShares          int64           `gorm:"column:number_of_shares;not null" json:"number_of_shares"`
	VestedShares            int64           `gorm:"column:vested_shares;not null;default:0" json:"vested_shares"`
	ExercisedShares         int64           `gorm:"column:exercised_shares;not null;default:0" json:"exercised_shares"`
	ForfeitedShares         int64           `gorm:"column:forfeited_shares;not null;default:0" json:"forfeited_shares"`
	UnvestedShares          int64           `gorm:"column:unvested_shares;not null;default:0" json:"unvested_shares"`
	SharePriceUSD           decimal.Decimal `gorm:"column:share_price_usd;type:decimal(18,4);not null" json:"share_price_usd"`
	ExercisePriceUSD        decimal.Decimal `gorm:"column:exercise_price_usd;type:decimal(18,4);not null" json:"exercise_price_usd"`
	VestingTrigger          string          `gorm:"column:vesting_trigger;type:varchar(20);not null" json:"vesting_trigger"`
	IssuedAt                time.Time       `gorm:"column:issued_at;not null" json:"issued_at"`
	ExpiresAt               time.Time       `gorm:"column:expires_at;not null" json:"expires_at"`
	CancelledAt             *time.Time      `gorm:"column:cancelled_at" json:"cancelled_at"`
	CreatedAt               time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt               time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (EquityGrant) TableName() string {
	return "equity_grants"
}

func (g *EquityGrant) BeforeCreate(tx *gorm.DB) error {
	if g.GrantID == uuid.Nil {
		g.GrantID = uuid.New()
	}
	return nil
}

// BeforeSave enforces the sum invariant, non-negative buckets, and
// exactly-one-owner on every mutating save. A breach fails the surrounding
// transaction, so no partial state is ever committed.
func (g *EquityGrant) BeforeSave(tx *gorm.DB) error {
	if g.VestedShares < 0 || g.ExercisedShares < 0 || g.ForfeitedShares < 0 || g.UnvestedShares < 0 {
		return ErrGrantNegativeShares
	}
	if g.VestedShares+g.ExercisedShares+g.ForfeitedShares+g.UnvestedShares != g.NumberOfShares {
		return ErrGrantSumInvariant
	}
	if (g.CompanyInvestorID == nil) == (g.CompanyInvestorEntityID == nil) {
		return ErrGrantOwner
	}
	return nil
}

// Cancelled reports whether the grant has reached its terminal state.
func (g *EquityGrant) Cancelled() bool {
	return g.CancelledAt != nil
}
