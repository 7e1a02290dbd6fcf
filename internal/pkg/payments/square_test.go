package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSquareAdapter(t *testing.T, handler http.HandlerFunc) *squareAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &squareAdapter{
		AccessToken: "token",
		LocationID:  "LOC1",
		APIBaseURL:  server.URL,
		HTTPClient:  server.Client(),
	}
}

func TestSquareCreateCheckoutSessionCarriesMetadata(t *testing.T) {
	adapter := newTestSquareAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/online-checkout/payment-links", r.URL.Path)
		assert.Equal(t, squareAPIVersion, r.Header.Get("Square-Version"))

		var payload struct {
			IdempotencyKey string `json:"idempotency_key"`
			Order          struct {
				LocationID string            `json:"location_id"`
				Metadata   map[string]string `json:"metadata"`
			} `json:"order"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.NotEmpty(t, payload.IdempotencyKey)
		assert.Equal(t, "LOC1", payload.Order.LocationID)
		assert.Equal(t, "portal_invoice", payload.Order.Metadata["origin"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment_link": map[string]any{
				"id":       "plink_1",
				"url":      "https://square.link/u/abc",
				"order_id": "order_1",
			},
		})
	})

	session, err := adapter.CreateCheckoutSession(context.Background(), CheckoutParams{
		AmountCents: 9900,
		Currency:    "usd",
		Description: "Invoice INV-000001",
		Metadata:    map[string]string{"origin": "portal_invoice", "invoice_id": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "plink_1", session.SessionID)
	assert.Equal(t, "order_1", session.OrderID)
	assert.Equal(t, "https://square.link/u/abc", session.URL)
}

func TestSquareCheckoutStatusRequiresOrderID(t *testing.T) {
	adapter := &squareAdapter{AccessToken: "token"}
	_, err := adapter.GetCheckoutStatus(context.Background(), "plink_1", "")
	assert.Error(t, err)
}

func TestSquareCheckoutStatusCompleted(t *testing.T) {
	adapter := newTestSquareAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/orders/order_1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{
				"state":    "COMPLETED",
				"metadata": map[string]string{"origin": "pos_split", "transaction_id": "7"},
				"tenders": []map[string]any{
					{"id": "tender_1", "payment_id": "sq_pay_9"},
				},
			},
		})
	})

	status, err := adapter.GetCheckoutStatus(context.Background(), "plink_1", "order_1")
	require.NoError(t, err)
	assert.Equal(t, CheckoutComplete, status.State)
	assert.Equal(t, "sq_pay_9", status.ExternalPaymentID)
	assert.Equal(t, "pos_split", status.Metadata["origin"])
}

func TestSquareChargeStoredMethodDecline(t *testing.T) {
	adapter := newTestSquareAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED","detail":"Card declined."}]}`))
	})

	_, err := adapter.ChargeStoredMethod(context.Background(), ChargeParams{
		CustomerRef: "cust_1",
		MethodRef:   "ccof_1",
		AmountCents: 9900,
		Currency:    "USD",
	})
	require.Error(t, err)
	assert.True(t, IsDecline(err))

	var decline *DeclineError
	require.ErrorAs(t, err, &decline)
	assert.Equal(t, "CARD_DECLINED", decline.Code)
}

func TestSquareChargeStoredMethodCompleted(t *testing.T) {
	adapter := newTestSquareAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/payments", r.URL.Path)

		var payload struct {
			IdempotencyKey string `json:"idempotency_key"`
			SourceID       string `json:"source_id"`
			Autocomplete   bool   `json:"autocomplete"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "INV-000002-20260801", payload.IdempotencyKey)
		assert.Equal(t, "ccof_1", payload.SourceID)
		assert.True(t, payload.Autocomplete)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment": map[string]any{"id": "sq_pay_1", "status": "COMPLETED"},
		})
	})

	res, err := adapter.ChargeStoredMethod(context.Background(), ChargeParams{
		CustomerRef:    "cust_1",
		MethodRef:      "ccof_1",
		AmountCents:    9900,
		Currency:       "USD",
		IdempotencyRef: "INV-000002-20260801",
	})
	require.NoError(t, err)
	assert.Equal(t, "sq_pay_1", res.ExternalPaymentID)
}

func TestSquareRefundRequiresAmountAndCurrency(t *testing.T) {
	adapter := &squareAdapter{AccessToken: "token"}

	err := adapter.Refund(context.Background(), RefundParams{ExternalPaymentID: "sq_pay_1"})
	assert.Error(t, err)

	err = adapter.Refund(context.Background(), RefundParams{ExternalPaymentID: "sq_pay_1", AmountCents: 100})
	assert.Error(t, err)
}

func TestSquareRefund(t *testing.T) {
	adapter := newTestSquareAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/refunds", r.URL.Path)

		var payload struct {
			PaymentID   string `json:"payment_id"`
			AmountMoney struct {
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
			} `json:"amount_money"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "sq_pay_1", payload.PaymentID)
		assert.Equal(t, int64(9900), payload.AmountMoney.Amount)
		assert.Equal(t, "USD", payload.AmountMoney.Currency)

		_ = json.NewEncoder(w).Encode(map[string]any{"refund": map[string]any{"id": "ref_1"}})
	})

	err := adapter.Refund(context.Background(), RefundParams{
		ExternalPaymentID: "sq_pay_1",
		AmountCents:       9900,
		Currency:          "usd",
	})
	assert.NoError(t, err)
}
