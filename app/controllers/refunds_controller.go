package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/OpenMatHQ/DojoDesk/internal/pkg/payments"
)

// HandleRefundInvoice refunds a paid invoice through the gateway it was
// collected on and marks it REFUNDED.
func HandleRefundInvoice(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid invoice id"})
	}

	orchestrator := buildOrchestrator()
	if err := orchestrator.RefundInvoice(c.Context(), uint(id)); err != nil {
		return refundError(c, err)
	}
	return c.JSON(fiber.Map{"refunded": true})
}

// HandleRefundTransaction refunds a paid POS or store transaction in full.
func HandleRefundTransaction(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid transaction id"})
	}

	orchestrator := buildOrchestrator()
	if err := orchestrator.RefundTransaction(c.Context(), uint(id)); err != nil {
		return refundError(c, err)
	}
	return c.JSON(fiber.Map{"refunded": true})
}

func refundError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, payments.ErrNoGatewayConfigured):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_gateway", "message": "No payment gateway is configured"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Record not found"})
	default:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "refund_failed", "message": err.Error()})
	}
}
