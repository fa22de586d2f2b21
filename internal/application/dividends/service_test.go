package dividends

import (
	"context"
	"testing"
	"time"

	"captable-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDividendTest(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.CompanyInvestor{}, &domain.CompanyInvestorEntity{},
		&domain.DividendRound{}, &domain.Dividend{}, &domain.TaxTreatyRate{},
	))
	return &Service{DB: db}, db
}

func seedInvestor(t *testing.T, db *gorm.DB, country string, usResident, tinVerified bool) domain.CompanyInvestor {
	inv := domain.CompanyInvestor{
		UserExternalID: "usr_" + uuid.NewString()[:8],
		CountryCode:    country,
		USTaxResident:  usResident,
		TaxIDPresent:   tinVerified,
		TaxIDVerified:  tinVerified,
	}
	require.NoError(t, db.Create(&inv).Error)
	return inv
}

func seedRound(t *testing.T, db *gorm.DB, issuedAt time.Time, roc bool) domain.DividendRound {
	round := domain.DividendRound{IssuedAt: issuedAt, ReturnOfCapital: roc}
	require.NoError(t, db.Create(&round).Error)
	return round
}

func seedDividend(t *testing.T, db *gorm.DB, round domain.DividendRound, inv domain.CompanyInvestor, cents int64) domain.Dividend {
	div := domain.Dividend{
		DividendRoundID:    round.RoundID,
		CompanyInvestorID:  &inv.InvestorID,
		TotalAmountInCents: cents,
		Status:             domain.DividendStatusIssued,
	}
	require.NoError(t, db.Create(&div).Error)
	return div
}

func TestCalculate_USVerifiedTINPaysNothing(t *testing.T) {
	svc, db := setupDividendTest(t)
	inv := seedInvestor(t, db, "US", true, true)
	round := seedRound(t, db, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false)
	div := seedDividend(t, db, round, inv, 100_000)

	result, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, []uuid.UUID{div.DividendID})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].WithholdingPercentage.IsZero())
	assert.Equal(t, int64(0), result.TotalWithheldCents)
	assert.Equal(t, int64(100_000), result.TotalNetCents)

	var reloaded domain.Dividend
	require.NoError(t, db.Where("dividend_id = ?", div.DividendID).First(&reloaded).Error)
	assert.Equal(t, domain.DividendStatusProcessed, reloaded.Status)
	require.NotNil(t, reloaded.NetAmountInCents)
	assert.Equal(t, int64(100_000), *reloaded.NetAmountInCents)
}

func TestCalculate_USUnverifiedTINGetsBackupWithholding(t *testing.T) {
	svc, db := setupDividendTest(t)
	inv := seedInvestor(t, db, "US", true, false)
	round := seedRound(t, db, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false)
	div := seedDividend(t, db, round, inv, 100_000)

	result, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, []uuid.UUID{div.DividendID})
	require.NoError(t, err)
	assert.True(t, result.Outcomes[0].WithholdingPercentage.Equal(decimal.NewFromInt(24)))
	assert.Equal(t, int64(24_000), result.TotalWithheldCents)
	assert.Equal(t, int64(76_000), result.TotalNetCents)
}

func TestCalculate_TreatyRateForNonUS(t *testing.T) {
	svc, db := setupDividendTest(t)
	require.NoError(t, db.Create(&domain.TaxTreatyRate{
		CountryCode: "DE", Percentage: decimal.NewFromInt(15),
	}).Error)
	inv := seedInvestor(t, db, "DE", false, true)
	round := seedRound(t, db, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false)
	div := seedDividend(t, db, round, inv, 100_000)

	result, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, []uuid.UUID{div.DividendID})
	require.NoError(t, err)
	assert.True(t, result.Outcomes[0].WithholdingPercentage.Equal(decimal.NewFromInt(15)))
	assert.Equal(t, int64(15_000), result.TotalWithheldCents)
}

func TestCalculate_DefaultRateWithoutTreaty(t *testing.T) {
	svc, db := setupDividendTest(t)
	inv := seedInvestor(t, db, "BR", false, true)
	round := seedRound(t, db, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false)
	div := seedDividend(t, db, round, inv, 100_000)

	result, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, []uuid.UUID{div.DividendID})
	require.NoError(t, err)
	assert.True(t, result.Outcomes[0].WithholdingPercentage.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, int64(30_000), result.TotalWithheldCents)
}

func TestCalculate_ReturnOfCapitalNeverWithheld(t *testing.T) {
	svc, db := setupDividendTest(t)
	inv := seedInvestor(t, db, "BR", false, false)
	round := seedRound(t, db, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), true)
	div := seedDividend(t, db, round, inv, 100_000)

	result, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, []uuid.UUID{div.DividendID})
	require.NoError(t, err)
	assert.True(t, result.Outcomes[0].ReturnOfCapital)
	assert.True(t, result.Outcomes[0].WithholdingPercentage.IsZero())
	assert.Equal(t, int64(100_000), result.TotalNetCents)
}

func TestCalculate_RecordedRateNeverDecreasesWithinYear(t *testing.T) {
	svc, db := setupDividendTest(t)
	inv := seedInvestor(t, db, "US", true, true)

	// An earlier dividend this tax year was withheld at 30% (the investor's
	// TIN was unverified then). The better residency answer today must not
	// lower the year's effective rate.
	earlier := seedRound(t, db, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), false)
	prior := seedDividend(t, db, earlier, inv, 50_000)
	thirty := decimal.NewFromInt(30)
	withheld := int64(15_000)
	net := int64(35_000)
	require.NoError(t, db.Model(&prior).Updates(map[string]interface{}{
		"withholding_percentage": thirty,
		"withheld_tax_cents":     withheld,
		"net_amount_in_cents":    net,
		"status":                 domain.DividendStatusProcessed,
	}).Error)

	round := seedRound(t, db, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), false)
	div := seedDividend(t, db, round, inv, 100_000)

	result, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, []uuid.UUID{div.DividendID})
	require.NoError(t, err)
	assert.True(t, result.Outcomes[0].WithholdingPercentage.Equal(thirty))
	assert.Equal(t, int64(30_000), result.TotalWithheldCents)
}

func TestCalculate_PriorYearRateDoesNotCarryOver(t *testing.T) {
	svc, db := setupDividendTest(t)
	inv := seedInvestor(t, db, "US", true, true)

	lastYear := seedRound(t, db, time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC), false)
	prior := seedDividend(t, db, lastYear, inv, 50_000)
	thirty := decimal.NewFromInt(30)
	require.NoError(t, db.Model(&prior).Update("withholding_percentage", thirty).Error)

	round := seedRound(t, db, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false)
	div := seedDividend(t, db, round, inv, 100_000)

	result, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, []uuid.UUID{div.DividendID})
	require.NoError(t, err)
	assert.True(t, result.Outcomes[0].WithholdingPercentage.IsZero())
}

func TestCalculate_BatchRoundsOnceAtTheEnd(t *testing.T) {
	svc, db := setupDividendTest(t)
	require.NoError(t, db.Create(&domain.TaxTreatyRate{
		CountryCode: "DE", Percentage: decimal.NewFromInt(15),
	}).Error)
	inv := seedInvestor(t, db, "DE", false, true)
	round := seedRound(t, db, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false)

	// 333 + 333 + 334 cents at 15%: per-dividend this is 49.95, 49.95 and
	// 50.10, which rounded individually gives 150 too, but floored per
	// dividend would give 148. Only a single end rounding keeps the batch
	// total exactly 150.
	ids := []uuid.UUID{
		seedDividend(t, db, round, inv, 333).DividendID,
		seedDividend(t, db, round, inv, 333).DividendID,
		seedDividend(t, db, round, inv, 334).DividendID,
	}

	result, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(150), result.TotalWithheldCents)

	var sum int64
	for _, out := range result.Outcomes {
		sum += out.WithheldTaxCents
	}
	assert.Equal(t, int64(150), sum)
	assert.Equal(t, int64(1000-150), result.TotalNetCents)
}

func TestCalculate_EntityOwner(t *testing.T) {
	svc, db := setupDividendTest(t)
	ent := domain.CompanyInvestorEntity{
		Name: "Fund I", CountryCode: "BR", USTaxResident: false,
	}
	require.NoError(t, db.Create(&ent).Error)
	round := seedRound(t, db, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false)
	div := domain.Dividend{
		DividendRoundID:         round.RoundID,
		CompanyInvestorEntityID: &ent.EntityID,
		TotalAmountInCents:      100_000,
		Status:                  domain.DividendStatusIssued,
	}
	require.NoError(t, db.Create(&div).Error)

	result, err := svc.CalculateForInvestor(context.Background(), nil, &ent.EntityID, 2026, []uuid.UUID{div.DividendID})
	require.NoError(t, err)
	assert.True(t, result.Outcomes[0].WithholdingPercentage.Equal(decimal.NewFromInt(30)))
}

func TestCalculate_Validation(t *testing.T) {
	svc, db := setupDividendTest(t)
	inv := seedInvestor(t, db, "US", true, true)
	entityID := uuid.New()

	_, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, &entityID, 2026, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidOwner)

	_, err = svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrDividendNotFound)
}

func TestCalculate_RejectsRoundOutsideTaxYear(t *testing.T) {
	svc, db := setupDividendTest(t)
	inv := seedInvestor(t, db, "US", true, true)
	round := seedRound(t, db, time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC), false)
	div := seedDividend(t, db, round, inv, 100_000)

	_, err := svc.CalculateForInvestor(context.Background(), &inv.InvestorID, nil, 2026, []uuid.UUID{div.DividendID})
	assert.ErrorIs(t, err, ErrWrongTaxYear)

	// Nothing is written when the batch is rejected.
	var reloaded domain.Dividend
	require.NoError(t, db.Where("dividend_id = ?", div.DividendID).First(&reloaded).Error)
	assert.Equal(t, domain.DividendStatusIssued, reloaded.Status)
}

func TestCalculate_RejectsForeignDividend(t *testing.T) {
	svc, db := setupDividendTest(t)
	mine := seedInvestor(t, db, "US", true, true)
	theirs := seedInvestor(t, db, "US", true, true)
	round := seedRound(t, db, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), false)
	div := seedDividend(t, db, round, theirs, 100_000)

	_, err := svc.CalculateForInvestor(context.Background(), &mine.InvestorID, nil, 2026, []uuid.UUID{div.DividendID})
	assert.ErrorIs(t, err, ErrForeignDividend)
}
