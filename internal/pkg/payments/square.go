package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/env"
)

const (
	defaultSquareAPIBaseURL = "https://connect.squareup.com"
	squareAPIVersion        = "2024-06-04"
)

// squareAdapter implements the payment-link gateway style over the Square
// API: checkout creates a payment link wrapping an order; status is read off
// the order; stored-method charges use cards on file via the Payments API.
type squareAdapter struct {
	AccessToken string
	LocationID  string
	APIBaseURL  string

	HTTPClient *http.Client
}

// NewSquareAdapterFromEnv builds a Square adapter from environment config.
func NewSquareAdapterFromEnv() GatewayAdapter {
	return &squareAdapter{
		AccessToken: strings.TrimSpace(env.GetEnv("SQUARE_ACCESS_TOKEN", "")),
		LocationID:  strings.TrimSpace(env.GetEnv("SQUARE_LOCATION_ID", "")),
		APIBaseURL:  strings.TrimRight(env.GetEnv("SQUARE_API_BASE_URL", defaultSquareAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (a *squareAdapter) Provider() string {
	return models.PaymentProviderSquare
}

func (a *squareAdapter) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	if a.AccessToken == "" {
		return errors.New("SQUARE_ACCESS_TOKEN is not configured")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.APIBaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.AccessToken)
	req.Header.Set("Square-Version", squareAPIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decline := squareDeclineFromBody(raw); decline != nil {
			return decline
		}
		return fmt.Errorf("square %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// squareDeclineFromBody inspects a Square error response for payment-method
// failures, which are hard declines rather than transient errors.
func squareDeclineFromBody(raw []byte) *DeclineError {
	var parsed struct {
		Errors []struct {
			Category string `json:"category"`
			Code     string `json:"code"`
			Detail   string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	for _, e := range parsed.Errors {
		if e.Category == "PAYMENT_METHOD_ERROR" {
			return &DeclineError{
				Provider: models.PaymentProviderSquare,
				Code:     e.Code,
				Message:  e.Detail,
			}
		}
	}
	return nil
}

func (a *squareAdapter) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	lineItems := p.LineItems
	if len(lineItems) == 0 {
		lineItems = []CheckoutLineItem{{Name: p.Description, AmountCents: p.AmountCents, Quantity: 1}}
	}

	items := make([]map[string]any, 0, len(lineItems))
	for _, li := range lineItems {
		items = append(items, map[string]any{
			"name":     li.Name,
			"quantity": fmt.Sprintf("%d", li.Quantity),
			"base_price_money": map[string]any{
				"amount":   li.AmountCents,
				"currency": strings.ToUpper(p.Currency),
			},
		})
	}

	order := map[string]any{
		"location_id": a.LocationID,
		"line_items":  items,
	}
	if len(p.Metadata) > 0 {
		order["metadata"] = p.Metadata
	}

	payload := map[string]any{
		"idempotency_key": uuid.NewString(),
		"order":           order,
		"checkout_options": map[string]any{
			"redirect_url": p.SuccessURL,
		},
	}

	var out struct {
		PaymentLink struct {
			ID      string `json:"id"`
			URL     string `json:"url"`
			OrderID string `json:"order_id"`
		} `json:"payment_link"`
	}
	if err := a.doJSON(ctx, http.MethodPost, "/v2/online-checkout/payment-links", payload, &out); err != nil {
		return nil, err
	}
	if out.PaymentLink.URL == "" || out.PaymentLink.OrderID == "" {
		return nil, errors.New("square payment link response missing url or order id")
	}

	return &CheckoutSession{
		URL:       out.PaymentLink.URL,
		SessionID: out.PaymentLink.ID,
		OrderID:   out.PaymentLink.OrderID,
	}, nil
}

func (a *squareAdapter) GetCheckoutStatus(ctx context.Context, sessionID, orderID string) (*CheckoutStatus, error) {
	if orderID == "" {
		return nil, errors.New("square checkout status requires the order id")
	}

	var out struct {
		Order struct {
			State    string            `json:"state"`
			Metadata map[string]string `json:"metadata"`
			Tenders  []struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
			} `json:"tenders"`
		} `json:"order"`
	}
	if err := a.doJSON(ctx, http.MethodGet, "/v2/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, err
	}

	status := &CheckoutStatus{State: CheckoutPending, Metadata: out.Order.Metadata}
	switch out.Order.State {
	case "COMPLETED":
		status.State = CheckoutComplete
		if len(out.Order.Tenders) > 0 {
			status.ExternalPaymentID = out.Order.Tenders[0].PaymentID
			if status.ExternalPaymentID == "" {
				status.ExternalPaymentID = out.Order.Tenders[0].ID
			}
		}
	case "CANCELED":
		status.State = CheckoutExpired
	}
	return status, nil
}

func (a *squareAdapter) ChargeStoredMethod(ctx context.Context, p ChargeParams) (*ChargeResult, error) {
	if p.MethodRef == "" {
		return nil, ErrNoStoredMethod
	}

	idempotencyKey := p.IdempotencyRef
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	payload := map[string]any{
		"idempotency_key": idempotencyKey,
		"source_id":       p.MethodRef,
		"customer_id":     p.CustomerRef,
		"location_id":     a.LocationID,
		"autocomplete":    true,
		"note":            p.Description,
		"amount_money": map[string]any{
			"amount":   p.AmountCents,
			"currency": strings.ToUpper(p.Currency),
		},
	}

	var out struct {
		Payment struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"payment"`
	}
	if err := a.doJSON(ctx, http.MethodPost, "/v2/payments", payload, &out); err != nil {
		return nil, err
	}
	if out.Payment.Status != "COMPLETED" {
		return nil, &DeclineError{
			Provider: models.PaymentProviderSquare,
			Code:     out.Payment.Status,
			Message:  "payment was not completed",
		}
	}
	return &ChargeResult{ExternalPaymentID: out.Payment.ID}, nil
}

// Refund requires an explicit amount and currency: the Square refunds API has
// no "refund everything" shorthand.
func (a *squareAdapter) Refund(ctx context.Context, p RefundParams) error {
	if p.AmountCents <= 0 || p.Currency == "" {
		return errors.New("square refunds require amount and currency")
	}

	payload := map[string]any{
		"idempotency_key": uuid.NewString(),
		"payment_id":      p.ExternalPaymentID,
		"amount_money": map[string]any{
			"amount":   p.AmountCents,
			"currency": strings.ToUpper(p.Currency),
		},
	}
	return a.doJSON(ctx, http.MethodPost, "/v2/refunds", payload, nil)
}
