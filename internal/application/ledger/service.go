package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"captable-backend/internal/application/emails"
	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service is the equity grant ledger: one method per transaction type. Every
// method runs as a single database transaction holding an exclusive lock on
// the grant row, and commits the counter updates, the append-only ledger row
// and the pool/investor aggregate deltas together or not at all.
type Service struct {
	DB     *gorm.DB
	Notify emails.Notifier
}

// Result reports one ledger operation. AlreadyApplied means the idempotency
// key collided (or a pre-check found the event processed): the retried event
// was a no-op, not an error.
type Result struct {
	AlreadyApplied bool
	Transaction    *domain.EquityGrantTransaction
}

// lockForUpdate adds SELECT ... FOR UPDATE on dialects that support it.
// The in-memory sqlite used in tests is single-writer, so elision there does
// not relax the serialization being tested.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// appliedBefore reports whether a ledger row with this natural key already
// committed. Operations consult it before any state validation: a retry of
// an applied event must no-op even when the grant has since moved into a
// state (cancelled, bucket emptied) that would reject a first attempt.
func appliedBefore(tx *gorm.DB, grantID uuid.UUID, txnType string, eventID, invoiceID, refID uuid.UUID) (bool, error) {
	var count int64
	err := tx.Model(&domain.EquityGrantTransaction{}).
		Where("equity_grant_id = ? AND transaction_type = ? AND vesting_event_id = ? AND invoice_id = ? AND external_reference_id = ?",
			grantID, txnType, eventID, invoiceID, refID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) grantLocked(tx *gorm.DB, grantID uuid.UUID) (*domain.EquityGrant, error) {
	var grant domain.EquityGrant
	if err := lockForUpdate(tx).Where("grant_id = ?", grantID).First(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	return &grant, nil
}

// appendRow inserts the ledger row with post-transition snapshots taken from
// the (already mutated) grant. A unique-key collision means a concurrent or
// earlier run already applied this logical event.
func appendRow(tx *gorm.DB, grant *domain.EquityGrant, row *domain.EquityGrantTransaction) error {
	row.EquityGrantID = grant.GrantID
	row.TotalNumberOfShares = grant.NumberOfShares
	row.TotalVestedShares = grant.VestedShares
	row.TotalUnvestedShares = grant.UnvestedShares
	row.TotalExercisedShares = grant.ExercisedShares
	row.TotalForfeitedShares = grant.ForfeitedShares
	if err := tx.Create(row).Error; err != nil {
		if isDuplicateKey(err) {
			return errAlreadyApplied
		}
		return err
	}
	return nil
}

func (s *Service) poolDelta(tx *gorm.DB, poolID uuid.UUID, issuedDelta int64) error {
	if issuedDelta == 0 {
		return nil
	}
	var pool domain.OptionPool
	if err := lockForUpdate(tx).Where("pool_id = ?", poolID).First(&pool).Error; err != nil {
		return err
	}
	pool.IssuedShares += issuedDelta
	return tx.Save(&pool).Error
}

func (s *Service) investorDelta(tx *gorm.DB, grant *domain.EquityGrant, sharesDelta, optionsDelta int64) error {
	if sharesDelta == 0 && optionsDelta == 0 {
		return nil
	}
	if grant.CompanyInvestorID != nil {
		var inv domain.CompanyInvestor
		if err := lockForUpdate(tx).Where("investor_id = ?", *grant.CompanyInvestorID).First(&inv).Error; err != nil {
			return err
		}
		inv.TotalShares += sharesDelta
		inv.TotalOptions += optionsDelta
		return tx.Save(&inv).Error
	}
	var ent domain.CompanyInvestorEntity
	if err := lockForUpdate(tx).Where("entity_id = ?", *grant.CompanyInvestorEntityID).First(&ent).Error; err != nil {
		return err
	}
	ent.TotalShares += sharesDelta
	ent.TotalOptions += optionsDelta
	return tx.Save(&ent).Error
}

func (s *Service) ownerEmail(grant *domain.EquityGrant) string {
	if grant.CompanyInvestorID != nil {
		var inv domain.CompanyInvestor
		if err := s.DB.Where("investor_id = ?", *grant.CompanyInvestorID).First(&inv).Error; err == nil {
			return inv.Email
		}
		return ""
	}
	var ent domain.CompanyInvestorEntity
	if err := s.DB.Where("entity_id = ?", *grant.CompanyInvestorEntityID).First(&ent).Error; err == nil {
		return ent.Email
	}
	return ""
}

// noopResult maps the internal already-applied abort to a successful no-op.
func (s *Service) noopResult(op string, err error) (*Result, error) {
	if errors.Is(err, errAlreadyApplied) {
		log.Info().Str("operation", op).Msg("ledger event already applied, treating as no-op")
		return &Result{AlreadyApplied: true}, nil
	}
	return nil, err
}

// ApplyScheduledVesting processes one due vesting event: moves the tranche
// from unvested to vested, appends the ledger row and marks the event
// processed, all under the grant's row lock. Re-processing a processed event
// is a no-op.
func (s *Service) ApplyScheduledVesting(ctx context.Context, eventID uuid.UUID) (*Result, error) {
	res := &Result{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event domain.VestingEvent
		if err := tx.Where("event_id = ?", eventID).First(&event).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		grant, err := s.grantLocked(tx, event.EquityGrantID)
		if err != nil {
			return err
		}
		// Re-read now that the grant lock serializes us against racing jobs.
		if err := tx.Where("event_id = ?", eventID).First(&event).Error; err != nil {
			return err
		}
		// Processed wins over cancelled: a replay of an event that was
		// applied before the grant's cancellation is still a replay.
		if event.ProcessedAt != nil {
			return errAlreadyApplied
		}
		if grant.Cancelled() {
			return ErrGrantCancelled
		}
		if event.CancelledAt != nil {
			return ErrEventCancelled
		}
		if event.VestedShares > grant.UnvestedShares {
			return ErrInsufficientUnvested
		}

		grant.UnvestedShares -= event.VestedShares
		grant.VestedShares += event.VestedShares

		row := &domain.EquityGrantTransaction{
			TransactionType: domain.TxnScheduledVesting,
			VestingEventID:  event.EventID,
			VestedDelta:     event.VestedShares,
		}
		if err := appendRow(tx, grant, row); err != nil {
			return err
		}
		if err := tx.Save(grant).Error; err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Model(&event).Update("processed_at", now).Error; err != nil {
			return err
		}
		res.Transaction = row
		return nil
	})
	if err != nil {
		return s.noopResult("scheduled_vesting", err)
	}
	s.notifyVesting(ctx, eventID, res)
	return res, nil
}

// ApplyInvoiceVesting vests shares on an invoice_paid-triggered grant when a
// contractor invoice with an equity component settles. The invoice id is the
// idempotency discriminator: re-delivery of the same payment event no-ops.
func (s *Service) ApplyInvoiceVesting(ctx context.Context, grantID, invoiceID uuid.UUID) (*Result, error) {
	res := &Result{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice domain.Invoice
		if err := tx.Where("invoice_id = ?", invoiceID).First(&invoice).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvoiceNotFound
			}
			return err
		}

		grant, err := s.grantLocked(tx, grantID)
		if err != nil {
			return err
		}
		// The first application may have emptied the unvested bucket or the
		// grant may have been cancelled since; a re-delivered invoice still
		// no-ops rather than tripping those rejections.
		if done, err := appliedBefore(tx, grant.GrantID, domain.TxnVestingPostInvoice, uuid.Nil, invoice.InvoiceID, uuid.Nil); err != nil {
			return err
		} else if done {
			return errAlreadyApplied
		}
		if grant.Cancelled() {
			return ErrGrantCancelled
		}
		if grant.VestingTrigger != domain.VestingTriggerInvoicePaid {
			return ErrWrongTrigger
		}
		shares := invoice.EquityShares
		if shares > grant.UnvestedShares {
			shares = grant.UnvestedShares
		}
		if shares <= 0 {
			return ErrNothingToVest
		}

		grant.UnvestedShares -= shares
		grant.VestedShares += shares

		meta, _ := json.Marshal(map[string]interface{}{
			"invoice_number": invoice.ExternalNumber,
			"equity_shares":  invoice.EquityShares,
		})
		row := &domain.EquityGrantTransaction{
			TransactionType: domain.TxnVestingPostInvoice,
			InvoiceID:       invoice.InvoiceID,
			VestedDelta:     shares,
			Metadata:        datatypes.JSON(meta),
		}
		if err := appendRow(tx, grant, row); err != nil {
			return err
		}
		if err := tx.Save(grant).Error; err != nil {
			return err
		}
		res.Transaction = row
		return nil
	})
	if err != nil {
		return s.noopResult("vesting_post_invoice_payment", err)
	}
	s.notifyVestingForGrant(ctx, grantID, res)
	return res, nil
}

// ApplyExercise moves vested shares to exercised. The caller-supplied
// exercise reference makes retries of the same request no-ops while distinct
// exercises of the same grant remain possible. Exercising survives
// cancellation: vested shares are untouched by it.
func (s *Service) ApplyExercise(ctx context.Context, grantID, exerciseRef uuid.UUID, numberOfOptions int64) (*Result, error) {
	if numberOfOptions <= 0 {
		return nil, ErrInvalidShareCount
	}
	if exerciseRef == uuid.Nil {
		return nil, ErrMissingReference
	}
	res := &Result{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grant, err := s.grantLocked(tx, grantID)
		if err != nil {
			return err
		}
		if done, err := appliedBefore(tx, grant.GrantID, domain.TxnExercise, uuid.Nil, uuid.Nil, exerciseRef); err != nil {
			return err
		} else if done {
			return errAlreadyApplied
		}
		if numberOfOptions > grant.VestedShares {
			return ErrExerciseExceedsVested
		}

		grant.VestedShares -= numberOfOptions
		grant.ExercisedShares += numberOfOptions

		row := &domain.EquityGrantTransaction{
			TransactionType:     domain.TxnExercise,
			ExternalReferenceID: exerciseRef,
			ExercisedDelta:      numberOfOptions,
		}
		if err := appendRow(tx, grant, row); err != nil {
			return err
		}
		if err := tx.Save(grant).Error; err != nil {
			return err
		}
		// Options become held shares for the owner's aggregates.
		if err := s.investorDelta(tx, grant, numberOfOptions, -numberOfOptions); err != nil {
			return err
		}
		res.Transaction = row
		return nil
	})
	if err != nil {
		return s.noopResult("exercise", err)
	}
	return res, nil
}

// ApplyCancellation runs the full cancellation workflow: forfeits all
// remaining unvested shares, cancels strictly-future unprocessed vesting
// events with the supplied reason, stamps cancelled_at and releases the
// forfeited shares back to the option pool. Past-due unprocessed events are
// deliberately left for the reconciliation report rather than silently
// cancelled. Cancelling a cancelled grant is a no-op.
func (s *Service) ApplyCancellation(ctx context.Context, grantID uuid.UUID, reason string) (*Result, error) {
	res := &Result{}
	var forfeited int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grant, err := s.grantLocked(tx, grantID)
		if err != nil {
			return err
		}
		if grant.Cancelled() {
			return errAlreadyApplied
		}

		now := time.Now()
		delta := grant.UnvestedShares
		forfeited = delta
		grant.ForfeitedShares += delta
		grant.UnvestedShares = 0
		grant.CancelledAt = &now

		meta, _ := json.Marshal(map[string]interface{}{"reason": reason})
		row := &domain.EquityGrantTransaction{
			TransactionType: domain.TxnCancellation,
			ForfeitedDelta:  delta,
			Metadata:        datatypes.JSON(meta),
		}
		if err := appendRow(tx, grant, row); err != nil {
			return err
		}
		if err := tx.Model(&domain.VestingEvent{}).
			Where("equity_grant_id = ? AND processed_at IS NULL AND cancelled_at IS NULL AND vesting_date > ?", grant.GrantID, now).
			Updates(map[string]interface{}{"cancelled_at": now, "cancellation_reason": reason}).Error; err != nil {
			return err
		}
		if err := tx.Save(grant).Error; err != nil {
			return err
		}
		if err := s.poolDelta(tx, grant.OptionPoolID, -delta); err != nil {
			return err
		}
		if err := s.investorDelta(tx, grant, 0, -delta); err != nil {
			return err
		}
		res.Transaction = row
		return nil
	})
	if err != nil {
		return s.noopResult("cancellation", err)
	}
	log.Info().Str("grant_id", grantID.String()).Int64("forfeited_shares", forfeited).Msg("grant cancelled")
	if s.Notify != nil {
		var grant domain.EquityGrant
		if e := s.DB.Where("grant_id = ?", grantID).First(&grant).Error; e == nil {
			if email := s.ownerEmail(&grant); email != "" {
				if e := s.Notify.GrantCancelled(ctx, email, reason, forfeited); e != nil {
					log.Warn().Err(e).Msg("grant cancelled notification failed")
				}
			}
		}
	}
	return res, nil
}

// AdjustmentDeltas are non-negative share counts moved out of the unvested
// bucket by an administrative adjustment. Exercised-share corrections go
// through ApplyExercise with their own reference.
type AdjustmentDeltas struct {
	VestedShares    int64
	ForfeitedShares int64
}

// ApplyManualAdjustment is the administrative escape hatch. It is still
// subject to the sum invariant and still ledgered; the caller-supplied
// adjustment reference makes retries no-ops.
func (s *Service) ApplyManualAdjustment(ctx context.Context, grantID, adjustmentRef uuid.UUID, deltas AdjustmentDeltas, notes string) (*Result, error) {
	if adjustmentRef == uuid.Nil {
		return nil, ErrMissingReference
	}
	if deltas.VestedShares < 0 || deltas.ForfeitedShares < 0 || deltas.VestedShares+deltas.ForfeitedShares <= 0 {
		return nil, ErrInvalidShareCount
	}
	res := &Result{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grant, err := s.grantLocked(tx, grantID)
		if err != nil {
			return err
		}
		if done, err := appliedBefore(tx, grant.GrantID, domain.TxnManualAdjustment, uuid.Nil, uuid.Nil, adjustmentRef); err != nil {
			return err
		} else if done {
			return errAlreadyApplied
		}
		moved := deltas.VestedShares + deltas.ForfeitedShares
		if moved > grant.UnvestedShares {
			return ErrInsufficientUnvested
		}

		grant.UnvestedShares -= moved
		grant.VestedShares += deltas.VestedShares
		grant.ForfeitedShares += deltas.ForfeitedShares

		meta, _ := json.Marshal(map[string]interface{}{"notes": notes})
		row := &domain.EquityGrantTransaction{
			TransactionType:     domain.TxnManualAdjustment,
			ExternalReferenceID: adjustmentRef,
			VestedDelta:         deltas.VestedShares,
			ForfeitedDelta:      deltas.ForfeitedShares,
			Metadata:            datatypes.JSON(meta),
		}
		if err := appendRow(tx, grant, row); err != nil {
			return err
		}
		if err := tx.Save(grant).Error; err != nil {
			return err
		}
		if err := s.poolDelta(tx, grant.OptionPoolID, -deltas.ForfeitedShares); err != nil {
			return err
		}
		if err := s.investorDelta(tx, grant, 0, -deltas.ForfeitedShares); err != nil {
			return err
		}
		res.Transaction = row
		return nil
	})
	if err != nil {
		return s.noopResult("manual_adjustment", err)
	}
	return res, nil
}

// ApplyEndOfPeriodForfeiture moves unvested shares to forfeited without
// cancelling the grant (distinct from full cancellation: the grant stays
// active and future tranches remain). The period reference identifies the
// forfeiture run for idempotent replay.
func (s *Service) ApplyEndOfPeriodForfeiture(ctx context.Context, grantID, periodRef uuid.UUID, shares int64) (*Result, error) {
	if shares <= 0 {
		return nil, ErrInvalidShareCount
	}
	if periodRef == uuid.Nil {
		return nil, ErrMissingReference
	}
	res := &Result{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grant, err := s.grantLocked(tx, grantID)
		if err != nil {
			return err
		}
		if done, err := appliedBefore(tx, grant.GrantID, domain.TxnEndOfPeriodForfeiture, uuid.Nil, uuid.Nil, periodRef); err != nil {
			return err
		} else if done {
			return errAlreadyApplied
		}
		if grant.Cancelled() {
			return ErrGrantCancelled
		}
		if shares > grant.UnvestedShares {
			return ErrInsufficientUnvested
		}

		grant.UnvestedShares -= shares
		grant.ForfeitedShares += shares

		row := &domain.EquityGrantTransaction{
			TransactionType:     domain.TxnEndOfPeriodForfeiture,
			ExternalReferenceID: periodRef,
			ForfeitedDelta:      shares,
		}
		if err := appendRow(tx, grant, row); err != nil {
			return err
		}
		if err := tx.Save(grant).Error; err != nil {
			return err
		}
		if err := s.poolDelta(tx, grant.OptionPoolID, -shares); err != nil {
			return err
		}
		if err := s.investorDelta(tx, grant, 0, -shares); err != nil {
			return err
		}
		res.Transaction = row
		return nil
	})
	if err != nil {
		return s.noopResult("end_of_period_forfeiture", err)
	}
	return res, nil
}

func (s *Service) notifyVesting(ctx context.Context, eventID uuid.UUID, res *Result) {
	if s.Notify == nil || res.Transaction == nil {
		return
	}
	var event domain.VestingEvent
	if err := s.DB.Where("event_id = ?", eventID).First(&event).Error; err != nil {
		return
	}
	s.notifyVestingForGrant(ctx, event.EquityGrantID, res)
}

func (s *Service) notifyVestingForGrant(ctx context.Context, grantID uuid.UUID, res *Result) {
	if s.Notify == nil || res.Transaction == nil {
		return
	}
	var grant domain.EquityGrant
	if err := s.DB.Where("grant_id = ?", grantID).First(&grant).Error; err != nil {
		return
	}
	if email := s.ownerEmail(&grant); email != "" {
		if err := s.Notify.VestingOccurred(ctx, email, res.Transaction.VestedDelta); err != nil {
			log.Warn().Err(err).Msg("vesting notification failed")
		}
	}
}
