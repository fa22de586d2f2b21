package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenderOffer is a company-run buyback window with a dollar cap. The company
// may elect a higher cap before settlement; once settled the offer and its
// bids are immutable.
type TenderOffer struct {
	OfferID             uuid.UUID  `gorm:"column:offer_id;type:uuid;primaryKey" json:"offer_id"`
	Name                string     `gorm:"column:name;not null" json:"name"`
	StartsAt            time.Time  `gorm:"column:starts_at;not null" json:"starts_at"`
	EndsAt              time.Time  `gorm:"column:ends_at;not null" json:"ends_at"`
	BaseCapCents        int64      `gorm:"column:base_cap_cents;not null" json:"base_cap_cents"`
	IncreasedCapCents   *int64     `gorm:"column:increased_cap_cents" json:"increased_cap_cents"`
	IncreasedCapElected bool       `gorm:"column:increased_cap_elected;not null;default:false" json:"increased_cap_elected"`
	SettledAt           *time.Time `gorm:"column:settled_at" json:"settled_at"`
	CreatedAt           time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (TenderOffer) TableName() string {
	return "tender_offers"
}

func (o *TenderOffer) BeforeCreate(tx *gorm.DB) error {
	if o.OfferID == uuid.Nil {
		o.OfferID = uuid.New()
	}
	return nil
}

// ElectedCapCents is the cap settlement runs against: the increased cap when
// the company elected it, the base cap otherwise.
func (o *TenderOffer) ElectedCapCents() int64 {
	if o.IncreasedCapElected && o.IncreasedCapCents != nil {
		return *o.IncreasedCapCents
	}
	return o.BaseCapCents
}

// TenderOfferBid is one holder's offer of shares into the window.
// AcceptedShares is written exactly once by settlement.
type TenderOfferBid struct {
	BidID                   uuid.UUID  `gorm:"column:bid_id;type:uuid;primaryKey" json:"bid_id"`
	TenderOfferID           uuid.UUID  `gorm:"column:tender_offer_id;type:uuid;not null;index" json:"tender_offer_id"`
	CompanyInvestorID       *uuid.UUID `gorm:"column:company_investor_id;type:uuid" json:"company_investor_id"`
	CompanyInvestorEntityID *uuid.UUID `gorm:"column:company_investor_entity_id;type:uuid" json:"company_investor_entity_id"`
	NumberOfShares          int64      `gorm:"column:number_of_shares;not null" json:"number_of_shares"`
	SharePriceCents         int64      `gorm:"column:share_price_cents;not null" json:"share_price_cents"`
	AcceptedShares          *int64     `gorm:"column:accepted_shares" json:"accepted_shares"`
	CreatedAt               time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (TenderOfferBid) TableName() string {
	return "tender_offer_bids"
}

func (b *TenderOfferBid) BeforeCreate(tx *gorm.DB) error {
	if b.BidID == uuid.Nil {
		b.BidID = uuid.New()
	}
	return nil
}

// ValueCents is the dollar value of the bid at its own price.
func (b *TenderOfferBid) ValueCents() int64 {
	return b.NumberOfShares * b.SharePriceCents
}
