package controllers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm/clause"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/database"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/env"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/payments"
)

// relayEvent is the neutral envelope the PayPal and Square webhook relays
// post. Stripe events arrive in Stripe's native format and are verified with
// its signed-header scheme instead.
type relayEvent struct {
	EventID           string            `json:"event_id"`
	EventType         string            `json:"event_type"`
	Status            string            `json:"status"`
	ExternalPaymentID string            `json:"external_payment_id"`
	Metadata          map[string]string `json:"metadata"`
}

// HandleGatewayWebhook receives asynchronous payment events. Processing is
// idempotent on (provider, event id); a replayed event answers 200 without
// touching domain state.
func HandleGatewayWebhook(c *fiber.Ctx) error {
	provider := c.Params("provider")
	body := c.Body()

	var event relayEvent
	switch provider {
	case models.PaymentProviderStripe:
		parsed, err := parseStripeEvent(body, c.Get("Stripe-Signature"))
		if err != nil {
			log.Warnf("[Webhook] rejected stripe event from %s: %v", ClientIP(c), err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature", "message": "Event verification failed"})
		}
		if parsed == nil {
			// Event type we do not act on; acknowledge it.
			return c.SendStatus(fiber.StatusOK)
		}
		event = *parsed

	case models.PaymentProviderPayPal, models.PaymentProviderSquare:
		secret := env.GetEnv("WEBHOOK_RELAY_SECRET", "")
		if !payments.VerifyWebhookSignature(body, c.Get("X-Webhook-Signature"), secret) {
			log.Warnf("[Webhook] rejected %s event from %s: bad signature", provider, ClientIP(c))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature", "message": "Event verification failed"})
		}
		if err := json.Unmarshal(body, &event); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid event payload"})
		}

	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_provider", "message": "Unknown webhook provider"})
	}

	record := models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: event.EventID,
		EventType:       event.EventType,
		PayloadJSON:     string(body),
		SignatureValid:  true,
	}
	res := database.GetDB().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(&record)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to record event"})
	}
	if res.RowsAffected == 0 {
		// Redelivery. Settled rows are acknowledged as duplicates; a row
		// without processed_at failed earlier without touching domain state
		// and is run again.
		var existing models.WebhookEvent
		if err := database.GetDB().
			Where("provider = ? AND provider_event_id = ?", provider, event.EventID).
			First(&existing).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load event"})
		}
		if !needsReprocessing(&existing) {
			log.Infof("[Webhook] duplicate %s event %s acknowledged", provider, event.EventID)
			return c.SendStatus(fiber.StatusOK)
		}
		log.Infof("[Webhook] retrying %s event %s after earlier failure", provider, event.EventID)
		record.ID = existing.ID
	}

	if !isCompletionEvent(event) {
		markEventProcessed(record.ID, "")
		return c.SendStatus(fiber.StatusOK)
	}

	orchestrator := buildOrchestrator()
	if err := orchestrator.HandleCheckoutCompleted(c.Context(), event.ExternalPaymentID, event.Metadata); err != nil {
		// The event row stays unprocessed with the error attached; domain
		// state was not touched, so a redelivery can reconcile it later.
		markEventProcessed(record.ID, err.Error())
		log.Errorf("[Webhook] processing %s event %s failed: %v", provider, event.EventID, err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "processing_failed", "message": err.Error()})
	}

	markEventProcessed(record.ID, "")
	return c.SendStatus(fiber.StatusOK)
}

// parseStripeEvent verifies and maps a Stripe event. Returns nil for event
// types that carry no billing consequence.
func parseStripeEvent(body []byte, signatureHeader string) (*relayEvent, error) {
	event, err := webhook.ConstructEvent(body, signatureHeader, env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	if err != nil {
		return nil, err
	}
	if event.Type != "checkout.session.completed" {
		return nil, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, err
	}

	externalPaymentID := session.ID
	if session.PaymentIntent != nil {
		externalPaymentID = session.PaymentIntent.ID
	}
	return &relayEvent{
		EventID:           event.ID,
		EventType:         string(event.Type),
		Status:            "complete",
		ExternalPaymentID: externalPaymentID,
		Metadata:          session.Metadata,
	}, nil
}

// isCompletionEvent reports whether the event settles a payment. Approval
// events are not completions: no funds have moved until the status poll
// performs the capture, so they are recorded and acknowledged only.
func isCompletionEvent(event relayEvent) bool {
	switch event.Status {
	case "complete", "COMPLETED":
		return event.ExternalPaymentID != ""
	default:
		return false
	}
}

// needsReprocessing reports whether a redelivered event should run again.
// Rows without processed_at carry a processing error from an earlier attempt.
func needsReprocessing(event *models.WebhookEvent) bool {
	return event.ProcessedAt == nil
}

func markEventProcessed(eventID uint, processingError string) {
	now := time.Now()
	updates := map[string]interface{}{"processing_error": processingError}
	if processingError == "" {
		updates["processed_at"] = &now
	}
	if err := database.GetDB().Model(&models.WebhookEvent{}).Where("id = ?", eventID).
		Updates(updates).Error; err != nil {
		log.Errorf("[Webhook] failed to update event %d: %v", eventID, err)
	}
}
