package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/database"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/notify"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/payments"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/settings"
)

var validate = validator.New()

// buildOrchestrator assembles the payment orchestrator for the currently
// configured gateway. Returns an orchestrator without adapter when no gateway
// is active.
func buildOrchestrator() *payments.Orchestrator {
	db := database.GetDB()
	svc := settings.NewService(db, true)
	adapter, err := payments.NewAdapter(svc.ActiveGateway())
	if err != nil && !errors.Is(err, payments.ErrNoGatewayConfigured) {
		adapter = nil
	}
	return payments.NewOrchestrator(payments.NewRepository(db), adapter, notify.NewMailNotifier())
}

type checkoutURLs struct {
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

type cartLinePayload struct {
	ItemType       string `json:"item_type" validate:"required,oneof=STORE_ITEM MEMBERSHIP_PLAN GIFT_CERTIFICATE ACCOUNT_CREDIT"`
	ItemID         uint   `json:"item_id" validate:"required"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0"`
	Description    string `json:"description"`
}

func toCartLines(payload []cartLinePayload) []payments.CartLine {
	lines := make([]payments.CartLine, 0, len(payload))
	for _, p := range payload {
		lines = append(lines, payments.CartLine{
			ItemType:       p.ItemType,
			ItemID:         p.ItemID,
			Quantity:       p.Quantity,
			UnitPriceCents: p.UnitPriceCents,
			Description:    p.Description,
		})
	}
	return lines
}

func checkoutSessionResponse(c *fiber.Ctx, session *payments.CheckoutSession) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url":        session.URL,
		"session_id": session.SessionID,
		"order_id":   session.OrderID,
	})
}

func checkoutError(c *fiber.Ctx, err error) error {
	if errors.Is(err, payments.ErrNoGatewayConfigured) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_gateway", "message": "No payment gateway is configured"})
	}
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_error", "message": err.Error()})
}

// HandleInvoiceCheckout opens a hosted checkout session for an open invoice
// so a member can settle it from the portal.
func HandleInvoiceCheckout(c *fiber.Ctx) error {
	invoiceID, err := c.ParamsInt("id")
	if err != nil || invoiceID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid invoice id"})
	}

	var req checkoutURLs
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	var invoice models.Invoice
	if err := database.GetDB().First(&invoice, invoiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Invoice not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load invoice"})
	}
	if !invoice.IsOpen() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_payable", "message": "Invoice is not open for payment"})
	}

	orchestrator := buildOrchestrator()
	session, err := orchestrator.CreateCheckout(c.Context(),
		&payments.CheckoutOrigin{Kind: payments.OriginPortalInvoice, InvoiceID: invoice.ID},
		payments.CheckoutRequest{
			AmountCents: invoice.AmountCents,
			Currency:    invoice.Currency,
			Description: "Invoice " + invoice.InvoiceNumber,
			SuccessURL:  req.SuccessURL,
			CancelURL:   req.CancelURL,
			MemberID:    invoice.MemberID,
		})
	if err != nil {
		return checkoutError(c, err)
	}
	return checkoutSessionResponse(c, session)
}

type storeCheckoutRequest struct {
	checkoutURLs
	MemberID uint              `json:"member_id"`
	Currency string            `json:"currency" validate:"omitempty,len=3"`
	Lines    []cartLinePayload `json:"lines" validate:"required,min=1,dive"`
}

// HandleStoreCheckout opens a checkout session for a portal store cart.
func HandleStoreCheckout(c *fiber.Ctx) error {
	svc := settings.NewService(database.GetDB(), true)
	if !svc.GetBool(models.SettingKeyPortalStoreEnabled, true) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "store_disabled", "message": "The portal store is disabled"})
	}
	return handleCartCheckout(c, payments.OriginPortalStoreCart)
}

// HandlePOSCheckout opens a checkout session for an admin point-of-sale cart.
func HandlePOSCheckout(c *fiber.Ctx) error {
	return handleCartCheckout(c, payments.OriginAdminPOSCart)
}

func handleCartCheckout(c *fiber.Ctx, kind payments.OriginKind) error {
	var req storeCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	lines := toCartLines(req.Lines)
	var total int64
	items := make([]payments.CheckoutLineItem, 0, len(lines))
	for _, line := range lines {
		total += line.TotalCents()
		items = append(items, payments.CheckoutLineItem{
			Name:        line.Description,
			AmountCents: line.UnitPriceCents,
			Quantity:    line.Quantity,
		})
	}

	orchestrator := buildOrchestrator()
	session, err := orchestrator.CreateCheckout(c.Context(),
		&payments.CheckoutOrigin{Kind: kind, MemberID: req.MemberID, Cart: lines},
		payments.CheckoutRequest{
			AmountCents: total,
			Currency:    currency,
			Description: "DojoDesk purchase",
			SuccessURL:  req.SuccessURL,
			CancelURL:   req.CancelURL,
			LineItems:   items,
			MemberID:    req.MemberID,
		})
	if err != nil {
		return checkoutError(c, err)
	}
	return checkoutSessionResponse(c, session)
}

type splitCheckoutRequest struct {
	checkoutURLs
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

// HandleSplitCheckout opens a checkout session for the card portion of a
// split-tender POS sale. The pending transaction was created at the register.
func HandleSplitCheckout(c *fiber.Ctx) error {
	transactionID, err := c.ParamsInt("transactionID")
	if err != nil || transactionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid transaction id"})
	}

	var req splitCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	var tx models.Transaction
	if err := database.GetDB().First(&tx, transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Transaction not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load transaction"})
	}
	if tx.Status != models.TransactionStatusPending {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_payable", "message": "Transaction is not awaiting payment"})
	}

	var memberID uint
	if tx.MemberID != nil {
		memberID = *tx.MemberID
	}

	orchestrator := buildOrchestrator()
	session, err := orchestrator.CreateCheckout(c.Context(),
		&payments.CheckoutOrigin{Kind: payments.OriginPOSSplit, TransactionID: tx.ID},
		payments.CheckoutRequest{
			AmountCents: req.AmountCents,
			Currency:    tx.Currency,
			Description: "Card payment for sale at the front desk",
			SuccessURL:  req.SuccessURL,
			CancelURL:   req.CancelURL,
			MemberID:    memberID,
		})
	if err != nil {
		return checkoutError(c, err)
	}
	return checkoutSessionResponse(c, session)
}

// HandleCheckoutStatus polls a checkout session. When the session completed,
// the poll reconciles the payment into domain state before answering; for the
// approval-based gateway this is where the capture happens.
func HandleCheckoutStatus(c *fiber.Ctx) error {
	sessionID := c.Params("sessionID")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing session id"})
	}
	orderID := c.Query("order_id")

	orchestrator := buildOrchestrator()
	status, err := orchestrator.ResolveCheckout(c.Context(), sessionID, orderID)
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(fiber.Map{
		"state":               status.State,
		"external_payment_id": status.ExternalPaymentID,
	})
}
