package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/OpenMatHQ/DojoDesk/app/controllers"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/constants"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())

	// Checkout sessions
	api.Post("/checkout/invoice/:id", controllers.HandleInvoiceCheckout)
	api.Post("/checkout/store", controllers.HandleStoreCheckout)
	api.Get("/checkout/:sessionID/status", controllers.HandleCheckoutStatus)

	// Point of sale
	api.Post("/pos/checkout", controllers.HandlePOSCheckout)
	api.Post("/pos/split/:transactionID", controllers.HandleSplitCheckout)

	// Memberships
	api.Get("/memberships/:id/cancellation-quote", controllers.HandleCancellationQuote)
	api.Post("/memberships/:id/cancel", controllers.HandleRequestCancellation)

	// Front desk
	api.Post("/trial-passes/:id/checkin", controllers.HandleTrialPassCheckIn)

	// Internal endpoints for schedulers and the admin dashboard
	internal := api.Group(constants.InternalRoute, middleware.InternalTokenMiddleware())
	internal.Post("/autorun", controllers.HandleAutoRun)
	internal.Post("/invoices/:id/refund", controllers.HandleRefundInvoice)
	internal.Post("/transactions/:id/refund", controllers.HandleRefundTransaction)
	internal.Get("/reports/overview", controllers.HandleOverviewReport)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
