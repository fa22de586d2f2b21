package vesting

import (
	"time"

	vestsvc "captable-backend/internal/application/vesting"
	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Runner *vestsvc.Runner
}

// POST /api/v1/vesting/run — the scheduled job tick. Optional as_of pins the
// cutoff for backfills; defaults to now.
func (h *Handlers) Run(c *fiber.Ctx) error {
	var body struct {
		AsOf *time.Time `json:"as_of"`
	}
	// An absent body means "now"; a body that fails to parse must not be
	// silently treated the same way, or a mistyped as_of runs the wrong cutoff.
	if err := c.BodyParser(&body); err != nil && len(c.Body()) > 0 {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	asOf := time.Now()
	if body.AsOf != nil {
		asOf = *body.AsOf
	}
	report, err := h.Runner.RunDue(c.Context(), asOf)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Vesting run complete", report, nil)
}
