package grants

import (
	"errors"
	"time"

	grantsvc "captable-backend/internal/application/grants"
	ledgersvc "captable-backend/internal/application/ledger"
	"captable-backend/internal/application/vesting"
	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Grants     *grantsvc.Service
	Ledger     *ledgersvc.Service
	Reconciler *grantsvc.Reconciler
}

type scheduleBody struct {
	TotalVestingDurationMonths int       `json:"total_vesting_duration_months"`
	CliffDurationMonths        int       `json:"cliff_duration_months"`
	VestingFrequencyMonths     int       `json:"vesting_frequency_months"`
	VestingCommencementDate    time.Time `json:"vesting_commencement_date"`
}

type issueBody struct {
	OptionPoolID            uuid.UUID       `json:"option_pool_id"`
	CompanyInvestorID       *uuid.UUID      `json:"company_investor_id"`
	CompanyInvestorEntityID *uuid.UUID      `json:"company_investor_entity_id"`
	NumberOfShares          int64           `json:"number_of_shares"`
	SharePriceUSD           decimal.Decimal `json:"share_price_usd"`
	ExercisePriceUSD        decimal.Decimal `json:"exercise_price_usd"`
	VestingTrigger          string          `json:"vesting_trigger"`
	IssuedAt                *time.Time      `json:"issued_at"`
	ExpiresAt               *time.Time      `json:"expires_at"`
	Schedule                *scheduleBody   `json:"schedule"`
}

// POST /api/v1/grants
func (h *Handlers) Issue(c *fiber.Ctx) error {
	var body issueBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	issuedAt := time.Now()
	if body.IssuedAt != nil {
		issuedAt = *body.IssuedAt
	}
	expiresAt := issuedAt.AddDate(10, 0, 0)
	if body.ExpiresAt != nil {
		expiresAt = *body.ExpiresAt
	}
	in := grantsvc.IssueInput{
		OptionPoolID:            body.OptionPoolID,
		CompanyInvestorID:       body.CompanyInvestorID,
		CompanyInvestorEntityID: body.CompanyInvestorEntityID,
		NumberOfShares:          body.NumberOfShares,
		SharePriceUSD:           body.SharePriceUSD,
		ExercisePriceUSD:        body.ExercisePriceUSD,
		VestingTrigger:          body.VestingTrigger,
		IssuedAt:                issuedAt,
		ExpiresAt:               expiresAt,
	}
	if body.Schedule != nil {
		in.Schedule = &vesting.ScheduleParams{
			TotalVestingDurationMonths: body.Schedule.TotalVestingDurationMonths,
			CliffDurationMonths:        body.Schedule.CliffDurationMonths,
			VestingFrequencyMonths:     body.Schedule.VestingFrequencyMonths,
			VestingCommencementDate:    body.Schedule.VestingCommencementDate,
		}
	}

	grant, err := h.Grants.Issue(c.Context(), in)
	if err != nil {
		return response.Error(c, err.Error(), issueStatus(err), nil)
	}
	return response.SuccessCreated(c, "Grant issued", grant, nil)
}

// POST /api/v1/grants/:id/cancel
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	grantID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid grant id", fiber.StatusBadRequest, nil)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil || body.Reason == "" {
		return response.Error(c, "A cancellation reason is required", fiber.StatusBadRequest, nil)
	}
	res, err := h.Ledger.ApplyCancellation(c.Context(), grantID, body.Reason)
	if err != nil {
		return response.Error(c, err.Error(), ledgerStatus(err), nil)
	}
	return response.Success(c, "Grant cancelled", res, nil)
}

// POST /api/v1/grants/:id/exercise
func (h *Handlers) Exercise(c *fiber.Ctx) error {
	grantID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid grant id", fiber.StatusBadRequest, nil)
	}
	var body struct {
		ReferenceID     uuid.UUID `json:"reference_id"`
		NumberOfOptions int64     `json:"number_of_options"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	res, err := h.Ledger.ApplyExercise(c.Context(), grantID, body.ReferenceID, body.NumberOfOptions)
	if err != nil {
		return response.Error(c, err.Error(), ledgerStatus(err), nil)
	}
	return response.Success(c, "Options exercised", res, nil)
}

// POST /api/v1/grants/:id/adjust
func (h *Handlers) Adjust(c *fiber.Ctx) error {
	grantID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid grant id", fiber.StatusBadRequest, nil)
	}
	var body struct {
		ReferenceID     uuid.UUID `json:"reference_id"`
		VestedShares    int64     `json:"vested_shares"`
		ForfeitedShares int64     `json:"forfeited_shares"`
		Notes           string    `json:"notes"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	deltas := ledgersvc.AdjustmentDeltas{
		VestedShares:    body.VestedShares,
		ForfeitedShares: body.ForfeitedShares,
	}
	res, err := h.Ledger.ApplyManualAdjustment(c.Context(), grantID, body.ReferenceID, deltas, body.Notes)
	if err != nil {
		return response.Error(c, err.Error(), ledgerStatus(err), nil)
	}
	return response.Success(c, "Adjustment applied", res, nil)
}

// POST /api/v1/grants/:id/forfeit
func (h *Handlers) Forfeit(c *fiber.Ctx) error {
	grantID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid grant id", fiber.StatusBadRequest, nil)
	}
	var body struct {
		ReferenceID uuid.UUID `json:"reference_id"`
		Shares      int64     `json:"shares"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	res, err := h.Ledger.ApplyEndOfPeriodForfeiture(c.Context(), grantID, body.ReferenceID, body.Shares)
	if err != nil {
		return response.Error(c, err.Error(), ledgerStatus(err), nil)
	}
	return response.Success(c, "Shares forfeited", res, nil)
}

// GET /api/v1/reconciliation
func (h *Handlers) Reconcile(c *fiber.Ctx) error {
	report, err := h.Reconciler.Run(c.Context(), time.Now())
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Reconciliation complete", report, nil)
}

func issueStatus(err error) int {
	switch {
	case errors.Is(err, grantsvc.ErrPoolNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, grantsvc.ErrPoolCapacity):
		return fiber.StatusConflict
	default:
		return fiber.StatusBadRequest
	}
}

func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, ledgersvc.ErrGrantNotFound),
		errors.Is(err, ledgersvc.ErrEventNotFound),
		errors.Is(err, ledgersvc.ErrInvoiceNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ledgersvc.ErrGrantCancelled),
		errors.Is(err, ledgersvc.ErrEventCancelled):
		return fiber.StatusConflict
	default:
		return fiber.StatusBadRequest
	}
}
