package tenderoffers

import (
	"errors"
	"time"

	tosvc "captable-backend/internal/application/tenderoffers"
	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *tosvc.Service
}

// POST /api/v1/tender-offers/:id/settle — inbound trigger when the offer
// window closes. The accepted quantities it writes are later consumed by the
// external payment executor.
func (h *Handlers) Settle(c *fiber.Ctx) error {
	offerID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid tender offer id", fiber.StatusBadRequest, nil)
	}
	result, err := h.Service.Settle(c.Context(), offerID, time.Now())
	if err != nil {
		code := fiber.StatusBadRequest
		if errors.Is(err, tosvc.ErrOfferNotFound) {
			code = fiber.StatusNotFound
		} else if errors.Is(err, tosvc.ErrOfferOpen) {
			code = fiber.StatusConflict
		}
		return response.Error(c, err.Error(), code, nil)
	}
	return response.Success(c, "Tender offer settled", result, nil)
}
