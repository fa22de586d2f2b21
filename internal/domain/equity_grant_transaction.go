package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ledger transaction types.
const (
	TxnScheduledVesting      = "scheduled_vesting"
	TxnVestingPostInvoice    = "vesting_post_invoice_payment"
	TxnExercise              = "exercise"
	TxnCancellation          = "cancellation"
	TxnManualAdjustment      = "manual_adjustment"
	TxnEndOfPeriodForfeiture = "end_of_period_forfeiture"
)

// EquityGrantTransaction is an append-only ledger row: the deltas applied by
// this transition plus the post-transition snapshot of all grant counters.
// Rows are created exactly once per state change and never mutated, so the
// current counters can be rederived by replaying a grant's rows in order.
//
// The five-column unique index is the idempotency backstop: a retried job
// re-inserting the same logical event collides here and is treated as
// already applied. The reference columns store the zero UUID rather than
// NULL because unique indexes treat NULLs as distinct (on Postgres and
// SQLite alike), which would defeat the guard.
type EquityGrantTransaction struct {
	TransactionID        uuid.UUID      `gorm:"column:transaction_id;type:uuid;primaryKey" json:"transaction_id"`
	EquityGrantID        uuid.UUID      `gorm:"column:equity_grant_id;type:uuid;not null;uniqueIndex:idx_grant_txn_key" json:"equity_grant_id"`
	TransactionType      string         `gorm:"column:transaction_type;type:varchar(40);not null;uniqueIndex:idx_grant_txn_key" json:"transaction_type"`
	VestingEventID       uuid.UUID      `gorm:"column:vesting_event_id;type:uuid;not null;default:'00000000-0000-0000-0000-000000000000';uniqueIndex:idx_grant_txn_key" json:"vesting_event_id"`
	InvoiceID            uuid.UUID      `gorm:"column:invoice_id;type:uuid;not null;default:'00000000-0000-0000-0000-000000000000';uniqueIndex:idx_grant_txn_key" json:"invoice_id"`
	ExternalReferenceID  uuid.UUID      `gorm:"column:external_reference_id;type:uuid;not null;default:'00000000-0000-0000-0000-000000000000';uniqueIndex:idx_grant_txn_key" json:"external_reference_id"`
	VestedDelta          int64          `gorm:"column:vested_delta;not null;default:0" json:"vested_delta"`
	ExercisedDelta       int64          `gorm:"column:exercised_delta;not null;default:0" json:"exercised_delta"`
	ForfeitedDelta       int64          `gorm:"column:forfeited_delta;not null;default:0" json:"forfeited_delta"`
	TotalNumberOfShares  int64          `gorm:"column:total_number_of_shares;not null" json:"total_number_of_shares"`
	TotalVestedShares    int64          `gorm:"column:total_vested_shares;not null" json:"total_vested_shares"`
	TotalUnvestedShares  int64          `gorm:"column:total_unvested_shares;not null" json:"total_unvested_shares"`
	TotalExercisedShares int64          `gorm:"column:total_exercised_shares;not null" json:"total_exercised_shares"`
	TotalForfeitedShares int64          `gorm:"column:total_forfeited_shares;not null" json:"total_forfeited_shares"`
	Metadata             datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	CreatedAt            time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (EquityGrantTransaction) TableName() string {
	return "equity_grant_transactions"
}

func (t *EquityGrantTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.TransactionID == uuid.Nil {
		t.TransactionID = uuid.New()
	}
	return nil
}
