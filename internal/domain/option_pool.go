package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrPoolOverIssued is returned when a save would push issued shares past
// the pool's authorized total.
var ErrPoolOverIssued = errors.New("option pool issued shares exceed authorized shares")

// OptionPool tracks how many shares a company has authorized for grants and
// how many are currently issued against that authorization. IssuedShares is
// a materialized counter maintained by the ledger, never recomputed by
// summing grants on the read path.
type OptionPool struct {
	PoolID           uuid.UUID `gorm:"column:pool_id;type:uuid;primaryKey" json:"pool_id"`
	Name             string    `gorm:"column:name;not null" json:"name"`
	AuthorizedShares int64     `gorm:"column:authorized_shares;not null" json:"authorized_shares"`
	IssuedShares     int64     `gorm:"column:issued_shares;not null;default:0" json:"issued_shares"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (OptionPool) TableName() string {
	return "option_pools"
}

func (p *OptionPool) BeforeCreate(tx *gorm.DB) error {
	if p.PoolID == uuid.Nil {
		p.PoolID = uuid.New()
	}
	return nil
}

// BeforeSave enforces 0 <= issued_shares <= authorized_shares on every
// mutating save, failing the surrounding transaction on breach.
func (p *OptionPool) BeforeSave(tx *gorm.DB) error {
	if p.IssuedShares < 0 || p.IssuedShares > p.AuthorizedShares {
		return ErrPoolOverIssued
	}
	return nil
}

// AvailableShares is the remaining issuable capacity.
func (p *OptionPool) AvailableShares() int64 {
	return p.AuthorizedShares - p.IssuedShares
}
