package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/OpenMatHQ/DojoDesk/internal/pkg/statistics"
)

// HandleOverviewReport returns the studio dashboard aggregates: active
// memberships, past-due invoice count and settled revenue for today and the
// current month.
func HandleOverviewReport(c *fiber.Ctx) error {
	overview, err := statistics.GetOverview(time.Now())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to compute overview"})
	}
	return c.JSON(overview)
}
