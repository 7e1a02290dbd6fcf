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
	"sync"
	"time"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/env"
)

const defaultPayPalAPIBaseURL = "https://api-m.paypal.com"

// paypalAdapter implements the redirect/approval gateway style over the
// PayPal Orders v2 API. The buyer approves the order on PayPal's site;
// capture happens inside GetCheckoutStatus once approval is seen
// (capture-on-poll).
type paypalAdapter struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string

	HTTPClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalAdapterFromEnv builds a PayPal adapter from environment config.
func NewPayPalAdapterFromEnv() GatewayAdapter {
	return &paypalAdapter{
		ClientID:     strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		APIBaseURL:   strings.TrimRight(env.GetEnv("PAYPAL_API_BASE_URL", defaultPayPalAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (a *paypalAdapter) Provider() string {
	return models.PaymentProviderPayPal
}

// token returns a cached OAuth access token, refreshing when expired.
func (a *paypalAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}
	if a.ClientID == "" || a.ClientSecret == "" {
		return "", errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.APIBaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.ClientID, a.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal token request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("paypal token response missing access_token")
	}

	a.accessToken = out.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return a.accessToken, nil
}

func (a *paypalAdapter) doJSON(ctx context.Context, method, path string, payload any, extraHeaders map[string]string, out any) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
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
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnprocessableEntity {
			return &DeclineError{
				Provider: models.PaymentProviderPayPal,
				Code:     fmt.Sprintf("http_%d", resp.StatusCode),
				Message:  string(raw),
			}
		}
		return fmt.Errorf("paypal %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

type paypalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (a *paypalAdapter) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	// PayPal has no free-form metadata map; the origin metadata is carried
	// opaquely in the purchase unit's custom_id and comes back on the order.
	customID, err := encodeMetadataBlob(p.Metadata)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"description": p.Description,
			"custom_id":   customID,
			"amount": map[string]any{
				"currency_code": strings.ToUpper(p.Currency),
				"value":         centsToDecimal(p.AmountCents),
			},
		}},
		"application_context": map[string]any{
			"return_url":  p.SuccessURL,
			"cancel_url":  p.CancelURL,
			"user_action": "PAY_NOW",
		},
	}

	var order paypalOrder
	if err := a.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload, nil, &order); err != nil {
		return nil, err
	}

	approveURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}
	if order.ID == "" || approveURL == "" {
		return nil, errors.New("paypal order response missing id or approve link")
	}

	return &CheckoutSession{
		URL:       approveURL,
		SessionID: order.ID,
		OrderID:   order.ID,
	}, nil
}

func (a *paypalAdapter) GetCheckoutStatus(ctx context.Context, sessionID, orderID string) (*CheckoutStatus, error) {
	id := orderID
	if id == "" {
		id = sessionID
	}

	var order paypalOrder
	if err := a.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(id), nil, nil, &order); err != nil {
		return nil, err
	}

	// Approval alone does not move money; the capture step is performed here
	// so a "complete" status always means funds were taken.
	if order.Status == "APPROVED" {
		var captured paypalOrder
		err := a.doJSON(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(id)+"/capture",
			map[string]any{}, map[string]string{"PayPal-Request-Id": "capture-" + id}, &captured)
		if err != nil {
			if IsDecline(err) {
				return &CheckoutStatus{State: CheckoutFailed}, nil
			}
			return nil, err
		}
		order = captured
	}

	status := &CheckoutStatus{State: CheckoutPending}
	switch order.Status {
	case "COMPLETED":
		status.State = CheckoutComplete
		if len(order.PurchaseUnits) > 0 {
			pu := order.PurchaseUnits[0]
			if len(pu.Payments.Captures) > 0 {
				status.ExternalPaymentID = pu.Payments.Captures[0].ID
			}
			md, err := decodeMetadataBlob(pu.CustomID)
			if err != nil {
				return nil, err
			}
			status.Metadata = md
		}
	case "VOIDED":
		status.State = CheckoutExpired
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		status.State = CheckoutPending
	default:
		status.State = CheckoutFailed
	}
	return status, nil
}

func (a *paypalAdapter) ChargeStoredMethod(ctx context.Context, p ChargeParams) (*ChargeResult, error) {
	if p.MethodRef == "" {
		return nil, ErrNoStoredMethod
	}

	// A vaulted payment token lets the order complete without buyer
	// approval; PayPal-Request-Id makes the create call idempotent.
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"description": p.Description,
			"amount": map[string]any{
				"currency_code": strings.ToUpper(p.Currency),
				"value":         centsToDecimal(p.AmountCents),
			},
		}},
		"payment_source": map[string]any{
			"paypal": map[string]any{
				"vault_id": p.MethodRef,
			},
		},
	}

	headers := map[string]string{}
	if p.IdempotencyRef != "" {
		headers["PayPal-Request-Id"] = p.IdempotencyRef
	}

	var order paypalOrder
	if err := a.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload, headers, &order); err != nil {
		return nil, err
	}
	if order.Status != "COMPLETED" {
		return nil, &DeclineError{
			Provider: models.PaymentProviderPayPal,
			Code:     order.Status,
			Message:  "order was not completed",
		}
	}
	if len(order.PurchaseUnits) == 0 || len(order.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, errors.New("paypal order response missing capture")
	}
	return &ChargeResult{ExternalPaymentID: order.PurchaseUnits[0].Payments.Captures[0].ID}, nil
}

func (a *paypalAdapter) Refund(ctx context.Context, p RefundParams) error {
	payload := map[string]any{}
	if p.AmountCents > 0 {
		payload["amount"] = map[string]any{
			"currency_code": strings.ToUpper(p.Currency),
			"value":         centsToDecimal(p.AmountCents),
		}
	}
	return a.doJSON(ctx, http.MethodPost, "/v2/payments/captures/"+url.PathEscape(p.ExternalPaymentID)+"/refund", payload, nil, nil)
}

// centsToDecimal renders an integer cent amount as the "12.34" decimal form
// the PayPal API expects.
func centsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// encodeMetadataBlob packs the metadata map into a single opaque string for
// gateways without a native metadata field.
func encodeMetadataBlob(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeMetadataBlob(blob string) (map[string]string, error) {
	if strings.TrimSpace(blob) == "" {
		return nil, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(blob), &metadata); err != nil {
		return nil, fmt.Errorf("invalid checkout metadata blob: %w", err)
	}
	return metadata, nil
}
