package vesting

import (
	"errors"
	"time"
)

var (
	ErrBadDuration  = errors.New("total vesting duration must be between 1 and 120 months")
	ErrBadCliff     = errors.New("cliff duration must be non-negative and shorter than the total duration")
	ErrBadFrequency = errors.New("vesting frequency must be 1, 3 or 12 months and not exceed the total duration")
	ErrBadShares    = errors.New("number of shares must be positive")
)

// ScheduleParams are the four inputs a grant's vesting schedule is fully
// determined by. Resolving the same params always yields the same tranches.
type ScheduleParams struct {
	TotalVestingDurationMonths int
	CliffDurationMonths        int
	VestingFrequencyMonths     int
	VestingCommencementDate    time.Time
	NumberOfShares             int64
}

// Tranche is one (date, share count) step of a resolved schedule.
type Tranche struct {
	Date   time.Time
	Shares int64
}

func (p ScheduleParams) validate() error {
	if p.TotalVestingDurationMonths <= 0 || p.TotalVestingDurationMonths > 120 {
		return ErrBadDuration
	}
	if p.CliffDurationMonths < 0 || p.CliffDurationMonths >= p.TotalVestingDurationMonths {
		return ErrBadCliff
	}
	switch p.VestingFrequencyMonths {
	case 1, 3, 12:
	default:
		return ErrBadFrequency
	}
	if p.VestingFrequencyMonths > p.TotalVestingDurationMonths {
		return ErrBadFrequency
	}
	if p.NumberOfShares <= 0 {
		return ErrBadShares
	}
	return nil
}

// ResolveSchedule produces the ordered tranche sequence covering the full
// vesting duration. Shares are allocated by cumulative flooring
// (floor(shares * elapsedMonths / totalMonths) minus what earlier tranches
// already carry), so the final tranche absorbs the rounding remainder and
// the tranches always sum to NumberOfShares exactly. Tranches dated before
// the cliff are suppressed and their shares roll into the first tranche at
// or after the cliff date.
func ResolveSchedule(p ScheduleParams) ([]Tranche, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	total := int64(p.TotalVestingDurationMonths)
	cliffDate := p.VestingCommencementDate.AddDate(0, p.CliffDurationMonths, 0)

	var tranches []Tranche
	var allocated int64
	for elapsed := p.VestingFrequencyMonths; ; elapsed += p.VestingFrequencyMonths {
		if elapsed > p.TotalVestingDurationMonths {
			elapsed = p.TotalVestingDurationMonths
		}
		date := p.VestingCommencementDate.AddDate(0, elapsed, 0)
		cumulative := p.NumberOfShares * int64(elapsed) / total

		// Pre-cliff tranches leave `allocated` behind, so their shares roll
		// into the first tranche at or after the cliff date.
		if !date.Before(cliffDate) {
			if shares := cumulative - allocated; shares > 0 {
				tranches = append(tranches, Tranche{Date: date, Shares: shares})
			}
			allocated = cumulative
		}

		if elapsed == p.TotalVestingDurationMonths {
			break
		}
	}
	return tranches, nil
}
