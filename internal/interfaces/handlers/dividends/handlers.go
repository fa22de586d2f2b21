package dividends

import (
	"errors"

	divsvc "captable-backend/internal/application/dividends"
	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *divsvc.Service
}

// POST /api/v1/dividends/calculate — inbound trigger at dividend round
// issuance. Output (net/withheld cents) feeds the external payment executor.
func (h *Handlers) Calculate(c *fiber.Ctx) error {
	var body struct {
		CompanyInvestorID       *uuid.UUID  `json:"company_investor_id"`
		CompanyInvestorEntityID *uuid.UUID  `json:"company_investor_entity_id"`
		TaxYear                 int         `json:"tax_year"`
		DividendIDs             []uuid.UUID `json:"dividend_ids"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	result, err := h.Service.CalculateForInvestor(c.Context(), body.CompanyInvestorID, body.CompanyInvestorEntityID, body.TaxYear, body.DividendIDs)
	if err != nil {
		code := fiber.StatusBadRequest
		if errors.Is(err, divsvc.ErrInvestorNotFound) || errors.Is(err, divsvc.ErrDividendNotFound) {
			code = fiber.StatusNotFound
		}
		return response.Error(c, err.Error(), code, nil)
	}
	return response.Success(c, "Withholding calculated", result, nil)
}
