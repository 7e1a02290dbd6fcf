package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/contracts"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/database"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/notify"
)

func loadMembershipWithPlan(id int) (*models.Membership, error) {
	var membership models.Membership
	err := database.GetDB().
		Preload("Member").
		Joins("MembershipPlan").
		First(&membership, id).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// HandleCancellationQuote answers what canceling a membership today would
// cost and when it would take effect.
func HandleCancellationQuote(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid membership id"})
	}

	membership, err := loadMembershipWithPlan(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Membership not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load membership"})
	}

	quote := contracts.QuoteCancellation(membership, &membership.MembershipPlan, time.Now())
	return c.JSON(quote)
}

// HandleRequestCancellation schedules a cancellation respecting the plan's
// notice period. The membership stays active and billable until the effective
// date; the daily run closes it out.
func HandleRequestCancellation(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid membership id"})
	}

	membership, err := loadMembershipWithPlan(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Membership not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load membership"})
	}
	if membership.Status == models.MembershipStatusCanceled || membership.Status == models.MembershipStatusExpired {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_cancellable", "message": "Membership has already ended"})
	}
	if membership.CancellationEffectiveDate != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_scheduled", "message": "A cancellation is already scheduled"})
	}

	now := time.Now()
	quote := contracts.QuoteCancellation(membership, &membership.MembershipPlan, now)

	if err := database.GetDB().Model(&models.Membership{}).Where("id = ?", membership.ID).Updates(map[string]interface{}{
		"cancellation_request_date":   &now,
		"cancellation_effective_date": &quote.EffectiveDate,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to schedule cancellation"})
	}

	notify.NewMailNotifier().Send(notify.KindCancellationScheduled, map[string]string{
		"email":          membership.Member.Email,
		"member_name":    membership.Member.FullName(),
		"effective_date": quote.EffectiveDate.Format("2006-01-02"),
	})

	return c.JSON(fiber.Map{
		"effective_date": quote.EffectiveDate,
		"fee_cents":      quote.FeeCents,
		"under_contract": quote.UnderContract,
	})
}
