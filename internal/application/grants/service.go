package grants

import (
	"context"
	"errors"
	"time"

	"captable-backend/internal/application/emails"
	"captable-backend/internal/application/vesting"
	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPoolNotFound    = errors.New("option pool not found")
	ErrPoolCapacity    = errors.New("option pool has insufficient authorized shares")
	ErrInvalidOwner    = errors.New("exactly one of investor or investor entity must be set")
	ErrInvalidShares   = errors.New("number of shares must be positive")
	ErrInvalidPrices   = errors.New("share and exercise prices must be positive")
	ErrInvalidTrigger  = errors.New("unknown vesting trigger")
	ErrMissingSchedule = errors.New("scheduled grants require schedule parameters")
)

// Service issues grants. Issuance reserves pool capacity, stamps the owner's
// option aggregate and, for scheduled grants, materializes the vesting
// schedule once; the ledger takes over from the first state transition.
type Service struct {
	DB     *gorm.DB
	Notify emails.Notifier
}

// IssueInput describes one grant approval.
type IssueInput struct {
	OptionPoolID            uuid.UUID
	CompanyInvestorID       *uuid.UUID
	CompanyInvestorEntityID *uuid.UUID
	NumberOfShares          int64
	SharePriceUSD           decimal.Decimal
	ExercisePriceUSD        decimal.Decimal
	VestingTrigger          string
	IssuedAt                time.Time
	ExpiresAt               time.Time
	Schedule                *vesting.ScheduleParams
}

func (in *IssueInput) validate() error {
	if (in.CompanyInvestorID == nil) == (in.CompanyInvestorEntityID == nil) {
		return ErrInvalidOwner
	}
	if in.NumberOfShares <= 0 {
		return ErrInvalidShares
	}
	if !in.SharePriceUSD.IsPositive() || !in.ExercisePriceUSD.IsPositive() {
		return ErrInvalidPrices
	}
	switch in.VestingTrigger {
	case domain.VestingTriggerScheduled:
		if in.Schedule == nil {
			return ErrMissingSchedule
		}
	case domain.VestingTriggerInvoicePaid:
	default:
		return ErrInvalidTrigger
	}
	return nil
}

// Issue creates the grant with all shares unvested, generates its vesting
// events when scheduled, and bumps the pool and owner aggregates, in one
// transaction under the pool's row lock.
func (s *Service) Issue(ctx context.Context, in IssueInput) (*domain.EquityGrant, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var tranches []vesting.Tranche
	if in.VestingTrigger == domain.VestingTriggerScheduled {
		params := *in.Schedule
		params.NumberOfShares = in.NumberOfShares
		resolved, err := vesting.ResolveSchedule(params)
		if err != nil {
			return nil, err
		}
		tranches = resolved
	}

	grant := &domain.EquityGrant{
		OptionPoolID:            in.OptionPoolID,
		CompanyInvestorID:       in.CompanyInvestorID,
		CompanyInvestorEntityID: in.CompanyInvestorEntityID,
		NumberOfShares:          in.NumberOfShares,
		UnvestedShares:          in.NumberOfShares,
		SharePriceUSD:           in.SharePriceUSD,
		ExercisePriceUSD:        in.ExercisePriceUSD,
		VestingTrigger:          in.VestingTrigger,
		IssuedAt:                in.IssuedAt,
		ExpiresAt:               in.ExpiresAt,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pool domain.OptionPool
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("pool_id = ?", in.OptionPoolID).First(&pool).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPoolNotFound
			}
			return err
		}
		if pool.AvailableShares() < in.NumberOfShares {
			return ErrPoolCapacity
		}

		if err := tx.Create(grant).Error; err != nil {
			return err
		}
		for _, tr := range tranches {
			event := domain.VestingEvent{
				EquityGrantID: grant.GrantID,
				VestingDate:   tr.Date,
				VestedShares:  tr.Shares,
			}
			if err := tx.Create(&event).Error; err != nil {
				return err
			}
		}

		pool.IssuedShares += in.NumberOfShares
		if err := tx.Save(&pool).Error; err != nil {
			return err
		}

		if grant.CompanyInvestorID != nil {
			return tx.Model(&domain.CompanyInvestor{}).
				Where("investor_id = ?", *grant.CompanyInvestorID).
				Update("total_options", gorm.Expr("total_options + ?", in.NumberOfShares)).Error
		}
		return tx.Model(&domain.CompanyInvestorEntity{}).
			Where("entity_id = ?", *grant.CompanyInvestorEntityID).
			Update("total_options", gorm.Expr("total_options + ?", in.NumberOfShares)).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("grant_id", grant.GrantID.String()).Int64("shares", grant.NumberOfShares).Msg("grant issued")
	if s.Notify != nil {
		if email := s.grantOwnerEmail(grant); email != "" {
			if err := s.Notify.GrantIssued(ctx, email, grant.NumberOfShares); err != nil {
				log.Warn().Err(err).Msg("grant issued notification failed")
			}
		}
	}
	return grant, nil
}

func (s *Service) grantOwnerEmail(grant *domain.EquityGrant) string {
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
