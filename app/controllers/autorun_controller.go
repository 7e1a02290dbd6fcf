package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/OpenMatHQ/DojoDesk/internal/pkg/autorun"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/billing"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/database"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/dunning"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/notify"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/payments"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/settings"
)

// HandleAutoRun triggers the daily automation pipeline. The coordinator is
// idempotent per business-calendar day, so external schedulers may call this
// as often as they like; repeated calls on the same day answer with
// skipped=true.
func HandleAutoRun(c *fiber.Ctx) error {
	db := database.GetDB()
	svc := settings.NewService(db, true)
	notifier := notify.NewMailNotifier()

	adapter, _ := payments.NewAdapter(svc.ActiveGateway())
	orchestrator := payments.NewOrchestrator(payments.NewRepository(db), adapter, notifier)

	billingEngine := billing.NewEngine(billing.NewRepository(db), orchestrator, notifier)
	dunningEngine := dunning.NewEngine(dunning.NewRepository(db), orchestrator, notifier, dunning.Config{
		MaxRetries:      svc.MaxRetries(),
		GracePeriodDays: svc.GracePeriodDays(),
	})

	coordinator := autorun.NewCoordinator(
		autorun.NewRepository(db),
		svc,
		billingEngine,
		dunningEngine,
		nil,
		notifier,
		true,
	)

	summary, err := coordinator.Run(c.Context(), time.Now())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
	}
	return c.JSON(summary)
}
