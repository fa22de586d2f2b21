package grants

import (
	"context"
	"testing"
	"time"

	"captable-backend/internal/application/vesting"
	"captable-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupGrantsTest(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.OptionPool{}, &domain.CompanyInvestor{}, &domain.CompanyInvestorEntity{},
		&domain.EquityGrant{}, &domain.VestingEvent{}, &domain.EquityGrantTransaction{},
	))
	return &Service{DB: db}, db
}

func seedPoolAndInvestor(t *testing.T, db *gorm.DB, authorized int64) (domain.OptionPool, domain.CompanyInvestor) {
	pool := domain.OptionPool{Name: "2026 Pool", AuthorizedShares: authorized}
	require.NoError(t, db.Create(&pool).Error)
	inv := domain.CompanyInvestor{UserExternalID: "usr_1", CountryCode: "US", USTaxResident: true}
	require.NoError(t, db.Create(&inv).Error)
	return pool, inv
}

func scheduledInput(pool domain.OptionPool, inv domain.CompanyInvestor, shares int64) IssueInput {
	commence := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	return IssueInput{
		OptionPoolID:      pool.PoolID,
		CompanyInvestorID: &inv.InvestorID,
		NumberOfShares:    shares,
		SharePriceUSD:     decimal.NewFromFloat(12.50),
		ExercisePriceUSD:  decimal.NewFromFloat(2.75),
		VestingTrigger:    domain.VestingTriggerScheduled,
		IssuedAt:          commence,
		ExpiresAt:         commence.AddDate(10, 0, 0),
		Schedule: &vesting.ScheduleParams{
			TotalVestingDurationMonths: 48,
			CliffDurationMonths:        12,
			VestingFrequencyMonths:     1,
			VestingCommencementDate:    commence,
		},
	}
}

func TestIssue_ScheduledGrantMaterializesSchedule(t *testing.T) {
	svc, db := setupGrantsTest(t)
	pool, inv := seedPoolAndInvestor(t, db, 10_000)

	grant, err := svc.Issue(context.Background(), scheduledInput(pool, inv, 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), grant.UnvestedShares)
	assert.Equal(t, int64(0), grant.VestedShares)

	var events []domain.VestingEvent
	require.NoError(t, db.Where("equity_grant_id = ?", grant.GrantID).
		Order("vesting_date asc").Find(&events).Error)
	require.Len(t, events, 37)
	assert.Equal(t, int64(250), events[0].VestedShares)
	var total int64
	for _, event := range events {
		total += event.VestedShares
	}
	assert.Equal(t, int64(1000), total)

	var reloadedPool domain.OptionPool
	require.NoError(t, db.Where("pool_id = ?", pool.PoolID).First(&reloadedPool).Error)
	assert.Equal(t, int64(1000), reloadedPool.IssuedShares)

	var reloadedInv domain.CompanyInvestor
	require.NoError(t, db.Where("investor_id = ?", inv.InvestorID).First(&reloadedInv).Error)
	assert.Equal(t, int64(1000), reloadedInv.TotalOptions)
}

func TestIssue_InvoiceTriggerHasNoEvents(t *testing.T) {
	svc, db := setupGrantsTest(t)
	pool, inv := seedPoolAndInvestor(t, db, 10_000)

	in := scheduledInput(pool, inv, 500)
	in.VestingTrigger = domain.VestingTriggerInvoicePaid
	in.Schedule = nil

	grant, err := svc.Issue(context.Background(), in)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&domain.VestingEvent{}).
		Where("equity_grant_id = ?", grant.GrantID).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestIssue_RejectsOverCapacity(t *testing.T) {
	svc, db := setupGrantsTest(t)
	pool, inv := seedPoolAndInvestor(t, db, 1500)

	_, err := svc.Issue(context.Background(), scheduledInput(pool, inv, 1000))
	require.NoError(t, err)

	_, err = svc.Issue(context.Background(), scheduledInput(pool, inv, 1000))
	assert.ErrorIs(t, err, ErrPoolCapacity)

	// The failed issuance must not have touched the pool.
	var reloaded domain.OptionPool
	require.NoError(t, db.Where("pool_id = ?", pool.PoolID).First(&reloaded).Error)
	assert.Equal(t, int64(1000), reloaded.IssuedShares)
}

func TestIssue_Validation(t *testing.T) {
	svc, db := setupGrantsTest(t)
	pool, inv := seedPoolAndInvestor(t, db, 10_000)

	in := scheduledInput(pool, inv, 1000)
	in.CompanyInvestorID = nil
	_, err := svc.Issue(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidOwner)

	in = scheduledInput(pool, inv, 0)
	_, err = svc.Issue(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidShares)

	in = scheduledInput(pool, inv, 1000)
	in.ExercisePriceUSD = decimal.Zero
	_, err = svc.Issue(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidPrices)

	in = scheduledInput(pool, inv, 1000)
	in.VestingTrigger = "on_ipo"
	_, err = svc.Issue(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidTrigger)

	in = scheduledInput(pool, inv, 1000)
	in.Schedule = nil
	_, err = svc.Issue(context.Background(), in)
	assert.ErrorIs(t, err, ErrMissingSchedule)

	in = scheduledInput(pool, inv, 1000)
	in.OptionPoolID = uuid.New()
	_, err = svc.Issue(context.Background(), in)
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestPool_OverIssueRejectedOnSave(t *testing.T) {
	_, db := setupGrantsTest(t)
	pool := domain.OptionPool{Name: "Pool", AuthorizedShares: 100}
	require.NoError(t, db.Create(&pool).Error)

	pool.IssuedShares = 101
	err := db.Save(&pool).Error
	assert.ErrorIs(t, err, domain.ErrPoolOverIssued)
}
