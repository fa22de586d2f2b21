package vesting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commencement() time.Time {
	return time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
}

func sumShares(tranches []Tranche) int64 {
	var total int64
	for _, tr := range tranches {
		total += tr.Shares
	}
	return total
}

func TestResolveSchedule_RejectsBadParams(t *testing.T) {
	base := ScheduleParams{
		TotalVestingDurationMonths: 48,
		CliffDurationMonths:        12,
		VestingFrequencyMonths:     1,
		VestingCommencementDate:    commencement(),
		NumberOfShares:             1000,
	}

	cases := []struct {
		name   string
		mutate func(*ScheduleParams)
		want   error
	}{
		{"zero duration", func(p *ScheduleParams) { p.TotalVestingDurationMonths = 0 }, ErrBadDuration},
		{"duration over ten years", func(p *ScheduleParams) { p.TotalVestingDurationMonths = 121 }, ErrBadDuration},
		{"negative cliff", func(p *ScheduleParams) { p.CliffDurationMonths = -1 }, ErrBadCliff},
		{"cliff at full duration", func(p *ScheduleParams) { p.CliffDurationMonths = 48 }, ErrBadCliff},
		{"unsupported frequency", func(p *ScheduleParams) { p.VestingFrequencyMonths = 6 }, ErrBadFrequency},
		{"frequency past duration", func(p *ScheduleParams) {
			p.TotalVestingDurationMonths = 10
			p.CliffDurationMonths = 0
			p.VestingFrequencyMonths = 12
		}, ErrBadFrequency},
		{"zero shares", func(p *ScheduleParams) { p.NumberOfShares = 0 }, ErrBadShares},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mutate(&p)
			_, err := ResolveSchedule(p)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestResolveSchedule_CliffRollsUpEarlyTranches(t *testing.T) {
	tranches, err := ResolveSchedule(ScheduleParams{
		TotalVestingDurationMonths: 48,
		CliffDurationMonths:        12,
		VestingFrequencyMonths:     1,
		VestingCommencementDate:    commencement(),
		NumberOfShares:             1000,
	})
	require.NoError(t, err)
	require.NotEmpty(t, tranches)

	// Nothing before the cliff; the first tranche lands exactly on it and
	// carries the full first year.
	cliff := commencement().AddDate(0, 12, 0)
	assert.Equal(t, cliff, tranches[0].Date)
	assert.Equal(t, int64(250), tranches[0].Shares)

	// One tranche per month after the cliff through month 48.
	assert.Len(t, tranches, 37)
	assert.Equal(t, commencement().AddDate(0, 48, 0), tranches[len(tranches)-1].Date)
	assert.Equal(t, int64(1000), sumShares(tranches))
}

func TestResolveSchedule_TranchesSumExactly(t *testing.T) {
	// 1001 does not divide evenly into 12 quarterly tranches; the floor
	// remainders must still land somewhere.
	tranches, err := ResolveSchedule(ScheduleParams{
		TotalVestingDurationMonths: 36,
		CliffDurationMonths:        0,
		VestingFrequencyMonths:     3,
		VestingCommencementDate:    commencement(),
		NumberOfShares:             1001,
	})
	require.NoError(t, err)
	assert.Len(t, tranches, 12)
	assert.Equal(t, int64(1001), sumShares(tranches))
	for _, tr := range tranches {
		assert.Positive(t, tr.Shares)
	}
}

func TestResolveSchedule_AnnualFrequency(t *testing.T) {
	tranches, err := ResolveSchedule(ScheduleParams{
		TotalVestingDurationMonths: 48,
		CliffDurationMonths:        0,
		VestingFrequencyMonths:     12,
		VestingCommencementDate:    commencement(),
		NumberOfShares:             1000,
	})
	require.NoError(t, err)
	require.Len(t, tranches, 4)
	for i, tr := range tranches {
		assert.Equal(t, int64(250), tr.Shares)
		assert.Equal(t, commencement().AddDate(0, 12*(i+1), 0), tr.Date)
	}
}

func TestResolveSchedule_CliffBetweenDates(t *testing.T) {
	// A 6-month cliff with annual vesting: the first annual tranche is
	// already past the cliff, so nothing rolls up.
	tranches, err := ResolveSchedule(ScheduleParams{
		TotalVestingDurationMonths: 24,
		CliffDurationMonths:        6,
		VestingFrequencyMonths:     12,
		VestingCommencementDate:    commencement(),
		NumberOfShares:             1000,
	})
	require.NoError(t, err)
	require.Len(t, tranches, 2)
	assert.Equal(t, int64(500), tranches[0].Shares)
	assert.Equal(t, int64(500), tranches[1].Shares)
}

func TestResolveSchedule_FinalTrancheClampedToDuration(t *testing.T) {
	// 14 months at quarterly frequency: the last step would overshoot to
	// month 15, so it is clamped to month 14.
	tranches, err := ResolveSchedule(ScheduleParams{
		TotalVestingDurationMonths: 14,
		CliffDurationMonths:        0,
		VestingFrequencyMonths:     3,
		VestingCommencementDate:    commencement(),
		NumberOfShares:             700,
	})
	require.NoError(t, err)
	require.NotEmpty(t, tranches)
	assert.Equal(t, commencement().AddDate(0, 14, 0), tranches[len(tranches)-1].Date)
	assert.Equal(t, int64(700), sumShares(tranches))
}

func TestResolveSchedule_Deterministic(t *testing.T) {
	p := ScheduleParams{
		TotalVestingDurationMonths: 48,
		CliffDurationMonths:        12,
		VestingFrequencyMonths:     1,
		VestingCommencementDate:    commencement(),
		NumberOfShares:             997,
	}
	a, err := ResolveSchedule(p)
	require.NoError(t, err)
	b, err := ResolveSchedule(p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
