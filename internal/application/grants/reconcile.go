package grants

import (
	"context"
	"time"

	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Reconciler recomputes grant counters and pool totals from the transaction
// ledger and flags drift. It is the offline backstop for the materialized
// counters, and the place where past-due-but-unprocessed vesting events are
// surfaced for manual review instead of being silently fixed.
type Reconciler struct {
	DB *gorm.DB
}

// GrantDrift is one grant whose stored counters disagree with its ledger.
type GrantDrift struct {
	GrantID          uuid.UUID `json:"grant_id"`
	StoredVested     int64     `json:"stored_vested"`
	DerivedVested    int64     `json:"derived_vested"`
	StoredExercised  int64     `json:"stored_exercised"`
	DerivedExercised int64     `json:"derived_exercised"`
	StoredForfeited  int64     `json:"stored_forfeited"`
	DerivedForfeited int64     `json:"derived_forfeited"`
	StoredUnvested   int64     `json:"stored_unvested"`
	DerivedUnvested  int64     `json:"derived_unvested"`
}

// PoolDrift is one pool whose issued counter disagrees with its grants.
type PoolDrift struct {
	PoolID        uuid.UUID `json:"pool_id"`
	StoredIssued  int64     `json:"stored_issued"`
	DerivedIssued int64     `json:"derived_issued"`
}

// OverdueEvent is an unprocessed, uncancelled vesting event whose date has
// passed. Cancellation leaves these untouched on purpose; this report is how
// they reach a human.
type OverdueEvent struct {
	EventID        uuid.UUID `json:"event_id"`
	GrantID        uuid.UUID `json:"grant_id"`
	VestingDate    time.Time `json:"vesting_date"`
	VestedShares   int64     `json:"vested_shares"`
	GrantCancelled bool      `json:"grant_cancelled"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	GrantsChecked int            `json:"grants_checked"`
	GrantDrift    []GrantDrift   `json:"grant_drift"`
	PoolDrift     []PoolDrift    `json:"pool_drift"`
	OverdueEvents []OverdueEvent `json:"overdue_events"`
}

// Clean reports whether the run found nothing to flag.
func (r *Report) Clean() bool {
	return len(r.GrantDrift) == 0 && len(r.PoolDrift) == 0 && len(r.OverdueEvents) == 0
}

// Run replays every grant's ledger rows against its stored counters,
// recomputes pool issuance from grants, and lists overdue events.
func (r *Reconciler) Run(ctx context.Context, now time.Time) (*Report, error) {
	report := &Report{}

	var grantList []domain.EquityGrant
	if err := r.DB.WithContext(ctx).Find(&grantList).Error; err != nil {
		return nil, err
	}
	report.GrantsChecked = len(grantList)

	for _, grant := range grantList {
		var rows []domain.EquityGrantTransaction
		if err := r.DB.WithContext(ctx).
			Where("equity_grant_id = ?", grant.GrantID).
			Order("created_at asc").Find(&rows).Error; err != nil {
			return nil, err
		}
		var vestedIn, exercised, forfeited int64
		for _, row := range rows {
			vestedIn += row.VestedDelta
			exercised += row.ExercisedDelta
			forfeited += row.ForfeitedDelta
		}
		// Exercise draws from vested, so current vested is inflow minus
		// exercised; unvested is whatever the other buckets leave behind.
		derivedVested := vestedIn - exercised
		derivedUnvested := grant.NumberOfShares - vestedIn - forfeited

		if derivedVested != grant.VestedShares ||
			exercised != grant.ExercisedShares ||
			forfeited != grant.ForfeitedShares ||
			derivedUnvested != grant.UnvestedShares {
			drift := GrantDrift{
				GrantID:          grant.GrantID,
				StoredVested:     grant.VestedShares,
				DerivedVested:    derivedVested,
				StoredExercised:  grant.ExercisedShares,
				DerivedExercised: exercised,
				StoredForfeited:  grant.ForfeitedShares,
				DerivedForfeited: forfeited,
				StoredUnvested:   grant.UnvestedShares,
				DerivedUnvested:  derivedUnvested,
			}
			report.GrantDrift = append(report.GrantDrift, drift)
			log.Warn().Str("grant_id", grant.GrantID.String()).Msg("grant counters drift from ledger")
		}
	}

	var pools []domain.OptionPool
	if err := r.DB.WithContext(ctx).Find(&pools).Error; err != nil {
		return nil, err
	}
	for _, pool := range pools {
		// A grant holds pool capacity for everything not yet forfeited.
		var derived int64
		err := r.DB.WithContext(ctx).Model(&domain.EquityGrant{}).
			Where("option_pool_id = ?", pool.PoolID).
			Select("COALESCE(SUM(number_of_shares - forfeited_shares), 0)").
			Scan(&derived).Error
		if err != nil {
			return nil, err
		}
		if derived != pool.IssuedShares {
			report.PoolDrift = append(report.PoolDrift, PoolDrift{
				PoolID:        pool.PoolID,
				StoredIssued:  pool.IssuedShares,
				DerivedIssued: derived,
			})
			log.Warn().Str("pool_id", pool.PoolID.String()).Msg("pool issued shares drift from grants")
		}
	}

	var overdue []domain.VestingEvent
	if err := r.DB.WithContext(ctx).
		Where("vesting_date <= ? AND processed_at IS NULL AND cancelled_at IS NULL", now).
		Order("vesting_date asc").Find(&overdue).Error; err != nil {
		return nil, err
	}
	for _, event := range overdue {
		var grant domain.EquityGrant
		cancelled := false
		if err := r.DB.WithContext(ctx).Where("grant_id = ?", event.EquityGrantID).First(&grant).Error; err == nil {
			cancelled = grant.Cancelled()
		}
		report.OverdueEvents = append(report.OverdueEvents, OverdueEvent{
			EventID:        event.EventID,
			GrantID:        event.EquityGrantID,
			VestingDate:    event.VestingDate,
			VestedShares:   event.VestedShares,
			GrantCancelled: cancelled,
		})
	}

	log.Info().Int("grants", report.GrantsChecked).
		Int("grant_drift", len(report.GrantDrift)).
		Int("pool_drift", len(report.PoolDrift)).
		Int("overdue_events", len(report.OverdueEvents)).
		Msg("reconciliation run finished")
	return report, nil
}
