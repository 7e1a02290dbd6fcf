package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/database"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/metrics/counter"
)

// HandleTrialPassCheckIn records a class visit on a trial pass. The increment
// is buffered in Redis and settled into class_count by the daily run, so the
// limit check here runs against the last settled count.
func HandleTrialPassCheckIn(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid trial pass id"})
	}

	var pass models.TrialPass
	if err := database.GetDB().First(&pass, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Trial pass not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load trial pass"})
	}

	if pass.Status != models.TrialPassStatusActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "pass_inactive", "message": "Trial pass is not active"})
	}
	if !pass.ExpiresAt.After(time.Now()) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "pass_expired", "message": "Trial pass has expired"})
	}
	if pass.ClassLimit > 0 && pass.ClassCount >= pass.ClassLimit {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "limit_reached", "message": "Trial pass class limit reached"})
	}

	if err := counter.AddCheckIn(pass.ID); err != nil {
		log.Errorf("[Attendance] buffering check-in for pass %d failed: %v", pass.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to record check-in"})
	}

	return c.JSON(fiber.Map{"checked_in": true, "pass_id": pass.ID})
}
