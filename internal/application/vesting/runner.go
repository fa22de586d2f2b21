package vesting

import (
	"context"
	"time"

	"captable-backend/internal/application/ledger"
	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Runner processes due vesting events on behalf of the scheduled job tick.
// Each event is applied through the ledger individually, so one failing
// grant never blocks the rest of the run and retried ticks are no-ops.
type Runner struct {
	DB     *gorm.DB
	Ledger *ledger.Service
}

// RunReport summarizes one tick.
type RunReport struct {
	Processed      int         `json:"processed"`
	AlreadyApplied int         `json:"already_applied"`
	Failed         []uuid.UUID `json:"failed"`
}

// RunDue applies every unprocessed, uncancelled vesting event whose date has
// arrived, for scheduled-trigger grants that are still active.
func (r *Runner) RunDue(ctx context.Context, now time.Time) (*RunReport, error) {
	var events []domain.VestingEvent
	err := r.DB.WithContext(ctx).
		Joins("JOIN equity_grants ON equity_grants.grant_id = vesting_events.equity_grant_id").
		Where("vesting_events.vesting_date <= ?", now).
		Where("vesting_events.processed_at IS NULL AND vesting_events.cancelled_at IS NULL").
		Where("equity_grants.vesting_trigger = ? AND equity_grants.cancelled_at IS NULL", domain.VestingTriggerScheduled).
		Order("vesting_events.vesting_date asc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	report := &RunReport{}
	for _, event := range events {
		res, err := r.Ledger.ApplyScheduledVesting(ctx, event.EventID)
		if err != nil {
			log.Error().Err(err).Str("event_id", event.EventID.String()).Msg("vesting event failed")
			report.Failed = append(report.Failed, event.EventID)
			continue
		}
		if res.AlreadyApplied {
			report.AlreadyApplied++
		} else {
			report.Processed++
		}
	}
	log.Info().Int("processed", report.Processed).Int("already_applied", report.AlreadyApplied).
		Int("failed", len(report.Failed)).Msg("vesting run finished")
	return report, nil
}
