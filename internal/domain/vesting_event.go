package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VestingEvent is one scheduled tranche of a grant. The full sequence is
// generated once at issuance by the schedule resolver and never regenerated;
// processing and cancellation are recorded in place.
type VestingEvent struct {
	EventID            uuid.UUID  `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	EquityGrantID      uuid.UUID  `gorm:"column:equity_grant_id;type:uuid;not null;index" json:"equity_grant_id"`
	VestingDate        time.Time  `gorm:"column:vesting_date;not null;index" json:"vesting_date"`
	VestedShares       int64      `gorm:"column:vested_shares;not null" json:"vested_shares"`
	ProcessedAt        *time.Time `gorm:"column:processed_at" json:"processed_at"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at" json:"cancelled_at"`
	CancellationReason *string    `gorm:"column:cancellation_reason" json:"cancellation_reason"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (VestingEvent) TableName() string {
	return "vesting_events"
}

func (e *VestingEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}

// Pending reports whether the tranche is still waiting to be processed.
func (e *VestingEvent) Pending() bool {
	return e.ProcessedAt == nil && e.CancelledAt == nil
}
