package invoices

import (
	"errors"
	"time"

	ledgersvc "captable-backend/internal/application/ledger"
	"captable-backend/internal/domain"
	"captable-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Handlers struct {
	DB     *gorm.DB
	Ledger *ledgersvc.Service
}

// POST /api/v1/invoices/:id/paid — inbound trigger from the payment system:
// an invoice with an equity component settled. Marks the invoice paid and
// vests its shares on the named invoice_paid-triggered grant. Re-delivery
// no-ops through the ledger's idempotency key.
func (h *Handlers) Paid(c *fiber.Ctx) error {
	invoiceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid invoice id", fiber.StatusBadRequest, nil)
	}
	var body struct {
		GrantID uuid.UUID `json:"grant_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.GrantID == uuid.Nil {
		return response.Error(c, "grant_id is required", fiber.StatusBadRequest, nil)
	}

	var invoice domain.Invoice
	if err := h.DB.Where("invoice_id = ?", invoiceID).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, "Invoice not found", fiber.StatusNotFound, nil)
		}
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	if invoice.PaidAt == nil {
		now := time.Now()
		if err := h.DB.Model(&invoice).Update("paid_at", now).Error; err != nil {
			return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
		}
	}

	res, err := h.Ledger.ApplyInvoiceVesting(c.Context(), body.GrantID, invoiceID)
	if err != nil {
		code := fiber.StatusBadRequest
		if errors.Is(err, ledgersvc.ErrGrantNotFound) || errors.Is(err, ledgersvc.ErrInvoiceNotFound) {
			code = fiber.StatusNotFound
		}
		return response.Error(c, err.Error(), code, nil)
	}
	return response.Success(c, "Invoice vesting applied", res, nil)
}
