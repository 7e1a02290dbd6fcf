package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/OpenMatHQ/DojoDesk/app/controllers"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/constants"
)

// WebhookRouter registers the inbound gateway event endpoints. They are not
// rate limited; gateways retry aggressively and processing is idempotent.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post(constants.WebhooksRoute, controllers.HandleGatewayWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
