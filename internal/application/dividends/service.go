package dividends

import (
	"context"
	"errors"
	"time"

	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvestorNotFound = errors.New("investor not found")
	ErrDividendNotFound = errors.New("dividend not found")
	ErrInvalidOwner     = errors.New("exactly one of investor or investor entity must be set")
	ErrEmptyBatch       = errors.New("no dividends in batch")
	ErrForeignDividend  = errors.New("dividend does not belong to this investor")
	ErrWrongTaxYear     = errors.New("dividend round was not issued in the tax year")
)

// IRS backup withholding for US persons without a verified tax ID, and the
// default rate for non-US persons with no treaty entry.
var (
	backupWithholdingPct = decimal.NewFromInt(24)
	defaultTreatyPct     = decimal.NewFromInt(30)
)

// Service resolves withholding percentages and computes net/withheld cents
// for a batch of one investor's dividends ahead of payment execution.
type Service struct {
	DB *gorm.DB
}

// residency is the slice of holder attributes withholding resolution needs;
// both holder shapes provide it.
type residency struct {
	CountryCode   string
	USTaxResident bool
	TaxIDVerified bool
}

// DividendOutcome is one dividend's computed withholding.
type DividendOutcome struct {
	DividendID            uuid.UUID       `json:"dividend_id"`
	WithholdingPercentage decimal.Decimal `json:"withholding_percentage"`
	WithheldTaxCents      int64           `json:"withheld_tax_cents"`
	NetAmountInCents      int64           `json:"net_amount_in_cents"`
	ReturnOfCapital       bool            `json:"return_of_capital"`
}

// BatchResult reports one calculation run.
type BatchResult struct {
	TaxYear            int               `json:"tax_year"`
	TotalWithheldCents int64             `json:"total_withheld_cents"`
	TotalNetCents      int64             `json:"total_net_cents"`
	Outcomes           []DividendOutcome `json:"outcomes"`
}

// CalculateForInvestor resolves each dividend's withholding percentage and
// writes net/withheld cents. The percentage resolution order: return of
// capital is always 0; otherwise the maximum percentage already recorded for
// this investor in the tax year is reused (an investor's effective rate
// never decreases mid-year); otherwise residency decides. The batch's
// withheld total is rounded to a whole cent exactly once, at the end, and
// the per-dividend stored cents are distributed so they sum to that total.
func (s *Service) CalculateForInvestor(ctx context.Context, investorID, entityID *uuid.UUID, taxYear int, dividendIDs []uuid.UUID) (*BatchResult, error) {
	if (investorID == nil) == (entityID == nil) {
		return nil, ErrInvalidOwner
	}
	if len(dividendIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	result := &BatchResult{TaxYear: taxYear}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.loadResidency(tx, investorID, entityID)
		if err != nil {
			return err
		}

		yearStart := time.Date(taxYear, time.January, 1, 0, 0, 0, 0, time.UTC)
		yearEnd := yearStart.AddDate(1, 0, 0)

		// Highest rate already recorded for this investor this tax year,
		// excluding return-of-capital rounds.
		recordedMax, err := s.maxRecordedRate(tx, investorID, entityID, yearStart, yearEnd)
		if err != nil {
			return err
		}

		var divs []domain.Dividend
		q := tx.Where("dividend_id IN ?", dividendIDs)
		if err := q.Order("created_at asc").Find(&divs).Error; err != nil {
			return err
		}
		if len(divs) != len(dividendIDs) {
			return ErrDividendNotFound
		}

		hundred := decimal.NewFromInt(100)
		exact := make([]decimal.Decimal, len(divs))
		rates := make([]decimal.Decimal, len(divs))
		rocs := make([]bool, len(divs))
		totalExact := decimal.Zero

		for i := range divs {
			div := &divs[i]
			if !ownerMatches(div, investorID, entityID) {
				return ErrForeignDividend
			}
			var round domain.DividendRound
			if err := tx.Where("round_id = ?", div.DividendRoundID).First(&round).Error; err != nil {
				return err
			}
			// Every dividend in the batch must come from a round issued in
			// the supplied tax year, or the reused-max-rate rule and the
			// year's reporting totals drift.
			if round.IssuedAt.Before(yearStart) || !round.IssuedAt.Before(yearEnd) {
				return ErrWrongTaxYear
			}

			var rate decimal.Decimal
			switch {
			case round.ReturnOfCapital:
				rate = decimal.Zero
				rocs[i] = true
			case recordedMax != nil:
				rate = *recordedMax
			default:
				rate, err = s.residencyRate(tx, res)
				if err != nil {
					return err
				}
				recordedMax = &rate
			}
			rates[i] = rate
			exact[i] = decimal.NewFromInt(div.TotalAmountInCents).Mul(rate).Div(hundred)
			totalExact = totalExact.Add(exact[i])
		}

		// One rounding at the end of the batch, not per dividend.
		totalWithheld := totalExact.Round(0).IntPart()
		withheld := distributeCents(exact, totalWithheld)

		for i := range divs {
			div := &divs[i]
			net := div.TotalAmountInCents - withheld[i]
			rate := rates[i]
			updates := map[string]interface{}{
				"withholding_percentage": rate,
				"withheld_tax_cents":     withheld[i],
				"net_amount_in_cents":    net,
				"status":                 domain.DividendStatusProcessed,
			}
			if err := tx.Model(div).Updates(updates).Error; err != nil {
				return err
			}
			result.Outcomes = append(result.Outcomes, DividendOutcome{
				DividendID:            div.DividendID,
				WithholdingPercentage: rate,
				WithheldTaxCents:      withheld[i],
				NetAmountInCents:      net,
				ReturnOfCapital:       rocs[i],
			})
			result.TotalNetCents += net
		}
		result.TotalWithheldCents = totalWithheld
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int("tax_year", taxYear).Int("dividends", len(result.Outcomes)).
		Int64("total_withheld_cents", result.TotalWithheldCents).Msg("dividend withholding calculated")
	return result, nil
}

func (s *Service) loadResidency(tx *gorm.DB, investorID, entityID *uuid.UUID) (residency, error) {
	if investorID != nil {
		var inv domain.CompanyInvestor
		if err := tx.Where("investor_id = ?", *investorID).First(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return residency{}, ErrInvestorNotFound
			}
			return residency{}, err
		}
		return residency{CountryCode: inv.CountryCode, USTaxResident: inv.USTaxResident, TaxIDVerified: inv.TaxIDVerified}, nil
	}
	var ent domain.CompanyInvestorEntity
	if err := tx.Where("entity_id = ?", *entityID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return residency{}, ErrInvestorNotFound
		}
		return residency{}, err
	}
	return residency{CountryCode: ent.CountryCode, USTaxResident: ent.USTaxResident, TaxIDVerified: ent.TaxIDVerified}, nil
}

func (s *Service) maxRecordedRate(tx *gorm.DB, investorID, entityID *uuid.UUID, yearStart, yearEnd time.Time) (*decimal.Decimal, error) {
	q := tx.Model(&domain.Dividend{}).
		Joins("JOIN dividend_rounds ON dividend_rounds.round_id = dividends.dividend_round_id").
		Where("dividend_rounds.issued_at >= ? AND dividend_rounds.issued_at < ?", yearStart, yearEnd).
		Where("dividend_rounds.return_of_capital = ?", false).
		Where("dividends.withholding_percentage IS NOT NULL")
	if investorID != nil {
		q = q.Where("dividends.company_investor_id = ?", *investorID)
	} else {
		q = q.Where("dividends.company_investor_entity_id = ?", *entityID)
	}

	var rows []domain.Dividend
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	var max *decimal.Decimal
	for i := range rows {
		p := rows[i].WithholdingPercentage
		if p == nil {
			continue
		}
		if max == nil || p.GreaterThan(*max) {
			max = p
		}
	}
	return max, nil
}

// residencyRate computes the rate for an investor with no rate on record
// this tax year: US persons with a verified tax ID owe nothing, US persons
// without one get IRS backup withholding, non-US persons get their treaty
// rate or the 30% default.
func (s *Service) residencyRate(tx *gorm.DB, res residency) (decimal.Decimal, error) {
	if res.USTaxResident {
		if res.TaxIDVerified {
			return decimal.Zero, nil
		}
		return backupWithholdingPct, nil
	}
	var treaty domain.TaxTreatyRate
	err := tx.Where("country_code = ?", res.CountryCode).First(&treaty).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultTreatyPct, nil
		}
		return decimal.Zero, err
	}
	return treaty.Percentage, nil
}

func ownerMatches(d *domain.Dividend, investorID, entityID *uuid.UUID) bool {
	if investorID != nil {
		return d.CompanyInvestorID != nil && *d.CompanyInvestorID == *investorID
	}
	return d.CompanyInvestorEntityID != nil && *d.CompanyInvestorEntityID == *entityID
}

// distributeCents turns per-dividend exact (unrounded) withholding into
// integer cents that sum to the batch total: floor everything, then hand the
// leftover cents to the dividends with the largest remainders.
func distributeCents(exact []decimal.Decimal, total int64) []int64 {
	out := make([]int64, len(exact))
	var floored int64
	type rem struct {
		idx int
		r   decimal.Decimal
	}
	rems := make([]rem, 0, len(exact))
	for i, e := range exact {
		f := e.Floor()
		out[i] = f.IntPart()
		floored += out[i]
		rems = append(rems, rem{idx: i, r: e.Sub(f)})
	}
	leftover := total - floored
	// Largest remainders first; stable enough at batch sizes here.
	for i := 0; i < len(rems); i++ {
		for j := i + 1; j < len(rems); j++ {
			if rems[j].r.GreaterThan(rems[i].r) {
				rems[i], rems[j] = rems[j], rems[i]
			}
		}
	}
	for i := 0; int64(i) < leftover && i < len(rems); i++ {
		out[rems[i].idx]++
	}
	return out
}
