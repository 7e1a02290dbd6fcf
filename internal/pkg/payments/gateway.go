package payments

import (
	"context"
	"errors"
	"fmt"
)

// Checkout session states reported by GetCheckoutStatus.
type CheckoutState string

const (
	CheckoutPending  CheckoutState = "pending"
	CheckoutComplete CheckoutState = "complete"
	CheckoutExpired  CheckoutState = "expired"
	CheckoutFailed   CheckoutState = "failed"
)

// ErrNoGatewayConfigured is returned by the factory when no payment gateway
// is active. Billing and dunning treat it as "skip the charge, keep the
// invoice PENDING", never as a failure.
var ErrNoGatewayConfigured = errors.New("no payment gateway configured")

// ErrNoStoredMethod is returned when a member has no stored payment method at
// the active gateway. Callers must not treat it as a retryable network
// failure.
var ErrNoStoredMethod = errors.New("member has no stored payment method")

// DeclineError is a typed, non-retryable charge failure (declined card,
// expired card, insufficient funds). Anything else coming back from an
// adapter is assumed retryable by the dunning schedule.
type DeclineError struct {
	Provider string
	Code     string
	Message  string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("%s declined charge (%s): %s", e.Provider, e.Code, e.Message)
}

// IsDecline reports whether err is a hard card decline.
func IsDecline(err error) bool {
	var de *DeclineError
	return errors.As(err, &de)
}

// CheckoutLineItem is one display line of a hosted checkout page.
type CheckoutLineItem struct {
	Name        string
	AmountCents int64
	Quantity    int
}

// CheckoutParams describes a checkout session to create. Metadata round-trips
// through the gateway exactly as attached here and comes back on the
// completion event; it encodes the checkout origin.
type CheckoutParams struct {
	AmountCents   int64
	Currency      string
	Description   string
	SuccessURL    string
	CancelURL     string
	LineItems     []CheckoutLineItem
	CustomerRef   string
	CustomerEmail string
	Metadata      map[string]string
}

// CheckoutSession is the created hosted session. CustomerRef is set when the
// gateway lazily created a customer record during session creation; the
// orchestrator persists it back onto the member.
type CheckoutSession struct {
	URL         string
	SessionID   string
	OrderID     string
	CustomerRef string
}

// CheckoutStatus is the polled state of a session. ExternalPaymentID and
// Metadata are only populated once the state is complete.
type CheckoutStatus struct {
	State             CheckoutState
	ExternalPaymentID string
	Metadata          map[string]string
}

// ChargeParams describes an off-session charge against a stored method.
// IdempotencyRef guards against double charges when a request is retried
// after a network failure.
type ChargeParams struct {
	CustomerRef    string
	MethodRef      string
	AmountCents    int64
	Currency       string
	Description    string
	IdempotencyRef string
}

// ChargeResult is a successful stored-method charge.
type ChargeResult struct {
	ExternalPaymentID string
}

// RefundParams describes a refund of a captured payment. AmountCents 0 means
// full refund where the gateway supports it; Square requires both amount and
// currency.
type RefundParams struct {
	ExternalPaymentID string
	AmountCents       int64
	Currency          string
}

// GatewayAdapter is the uniform contract over one payment gateway. Exactly
// one adapter is active per process; the factory selects it from the
// active-gateway setting.
type GatewayAdapter interface {
	Provider() string
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCheckoutStatus(ctx context.Context, sessionID, orderID string) (*CheckoutStatus, error)
	ChargeStoredMethod(ctx context.Context, params ChargeParams) (*ChargeResult, error)
	Refund(ctx context.Context, params RefundParams) error
}
