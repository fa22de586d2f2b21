package tenderoffers

import (
	"context"
	"errors"
	"time"

	"captable-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOfferNotFound = errors.New("tender offer not found")
	ErrOfferOpen     = errors.New("tender offer window is still open")
)

// Service settles closed tender offers. Settlement is a single pass over all
// bids under a lock on the offer row, so two concurrent runs cannot
// double-write accepted quantities.
type Service struct {
	DB *gorm.DB
}

// BidAllocation is one bid's settlement outcome.
type BidAllocation struct {
	BidID           uuid.UUID `json:"bid_id"`
	NumberOfShares  int64     `json:"number_of_shares"`
	SharePriceCents int64     `json:"share_price_cents"`
	AcceptedShares  int64     `json:"accepted_shares"`
}

// SettlementResult reports one settlement run.
type SettlementResult struct {
	AlreadySettled     bool            `json:"already_settled"`
	Oversubscribed     bool            `json:"oversubscribed"`
	ElectedCapCents    int64           `json:"elected_cap_cents"`
	TotalBidCents      int64           `json:"total_bid_cents"`
	AcceptedValueCents int64           `json:"accepted_value_cents"`
	RoundingLossCents  int64           `json:"rounding_loss_cents"`
	Allocations        []BidAllocation `json:"allocations"`
}

// Settle computes and writes each bid's accepted share count for a closed
// offer. If the total bid value fits under the elected cap every bid is
// fully accepted; otherwise each bid is floored to its uniform pro-rata
// share of the cap. Flooring favors the company: the aggregate accepted
// value never exceeds the cap and the remainder is not redistributed (the
// loss is reported, bounded by one share-price per bidder). Accepted counts
// are terminal; a second settlement run is a no-op.
func (s *Service) Settle(ctx context.Context, offerID uuid.UUID, now time.Time) (*SettlementResult, error) {
	result := &SettlementResult{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var offer domain.TenderOffer
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("offer_id = ?", offerID).First(&offer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOfferNotFound
			}
			return err
		}
		if offer.SettledAt != nil {
			result.AlreadySettled = true
			return nil
		}
		if now.Before(offer.EndsAt) {
			return ErrOfferOpen
		}

		var bids []domain.TenderOfferBid
		if err := tx.Where("tender_offer_id = ?", offerID).Order("created_at asc").Find(&bids).Error; err != nil {
			return err
		}

		cap := offer.ElectedCapCents()
		result.ElectedCapCents = cap

		if len(bids) > 0 {
			var total int64
			for _, bid := range bids {
				total += bid.ValueCents()
			}
			result.TotalBidCents = total
			result.Oversubscribed = total > cap

			capD := decimal.NewFromInt(cap)
			totalD := decimal.NewFromInt(total)
			for i := range bids {
				bid := &bids[i]
				accepted := bid.NumberOfShares
				if result.Oversubscribed {
					// floor(shares * cap / total), exact integer division so
					// the floor can never creep past the true quotient.
					num := decimal.NewFromInt(bid.NumberOfShares).Mul(capD)
					q, _ := num.QuoRem(totalD, 0)
					accepted = q.IntPart()
				}
				bid.AcceptedShares = &accepted
				if err := tx.Model(bid).Update("accepted_shares", accepted).Error; err != nil {
					return err
				}
				result.AcceptedValueCents += accepted * bid.SharePriceCents
				result.Allocations = append(result.Allocations, BidAllocation{
					BidID:           bid.BidID,
					NumberOfShares:  bid.NumberOfShares,
					SharePriceCents: bid.SharePriceCents,
					AcceptedShares:  accepted,
				})
			}
			if result.Oversubscribed {
				result.RoundingLossCents = cap - result.AcceptedValueCents
			}
		}

		return tx.Model(&offer).Update("settled_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadySettled {
		log.Info().Str("offer_id", offerID.String()).Msg("tender offer already settled, no-op")
		return result, nil
	}
	log.Info().Str("offer_id", offerID.String()).
		Bool("oversubscribed", result.Oversubscribed).
		Int64("total_bid_cents", result.TotalBidCents).
		Int64("accepted_value_cents", result.AcceptedValueCents).
		Int64("rounding_loss_cents", result.RoundingLossCents).
		Msg("tender offer settled")
	return result, nil
}
