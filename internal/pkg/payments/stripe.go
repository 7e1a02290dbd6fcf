package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/OpenMatHQ/DojoDesk/app/models"
)

// stripeAdapter implements the hosted-checkout gateway style on top of the
// official Stripe client: Checkout Sessions for interactive payments and
// off-session PaymentIntents for stored-method charges.
type stripeAdapter struct {
	client *client.API
}

// NewStripeAdapter creates a Stripe-backed gateway adapter.
func NewStripeAdapter(secretKey string) GatewayAdapter {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &stripeAdapter{client: sc}
}

func (a *stripeAdapter) Provider() string {
	return models.PaymentProviderStripe
}

func (a *stripeAdapter) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	customerRef := strings.TrimSpace(p.CustomerRef)
	createdCustomer := ""

	// Lazily create a gateway-side customer so the payment method used at
	// checkout can be reused for off-session charges later.
	if customerRef == "" && p.CustomerEmail != "" {
		cust, err := a.client.Customers.New(&stripe.CustomerParams{
			Params: stripe.Params{Context: ctx},
			Email:  stripe.String(p.CustomerEmail),
		})
		if err != nil {
			return nil, err
		}
		customerRef = cust.ID
		createdCustomer = cust.ID
	}

	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	if customerRef != "" {
		params.Customer = stripe.String(customerRef)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}

	lineItems := p.LineItems
	if len(lineItems) == 0 {
		lineItems = []CheckoutLineItem{{Name: p.Description, AmountCents: p.AmountCents, Quantity: 1}}
	}
	for _, li := range lineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(li.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(p.Currency)),
				UnitAmount: stripe.Int64(li.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
			},
		})
	}

	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := a.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}

	return &CheckoutSession{
		URL:         sess.URL,
		SessionID:   sess.ID,
		CustomerRef: createdCustomer,
	}, nil
}

func (a *stripeAdapter) GetCheckoutStatus(ctx context.Context, sessionID, _ string) (*CheckoutStatus, error) {
	sess, err := a.client.CheckoutSessions.Get(sessionID, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, err
	}

	status := &CheckoutStatus{State: CheckoutPending, Metadata: sess.Metadata}
	switch sess.Status {
	case stripe.CheckoutSessionStatusExpired:
		status.State = CheckoutExpired
	case stripe.CheckoutSessionStatusComplete:
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			status.State = CheckoutPending
			break
		}
		status.State = CheckoutComplete
		if sess.PaymentIntent != nil {
			status.ExternalPaymentID = sess.PaymentIntent.ID
		}
	}
	return status, nil
}

func (a *stripeAdapter) ChargeStoredMethod(ctx context.Context, p ChargeParams) (*ChargeResult, error) {
	if p.CustomerRef == "" || p.MethodRef == "" {
		return nil, ErrNoStoredMethod
	}

	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(p.AmountCents),
		Currency:      stripe.String(strings.ToLower(p.Currency)),
		Customer:      stripe.String(p.CustomerRef),
		PaymentMethod: stripe.String(p.MethodRef),
		Description:   stripe.String(p.Description),
		// Off-session: the member is not present; the bank is told to trust
		// the stored mandate instead of challenging.
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	if p.IdempotencyRef != "" {
		params.SetIdempotencyKey(p.IdempotencyRef)
	}

	pi, err := a.client.PaymentIntents.New(params)
	if err != nil {
		return nil, translateStripeError(err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, &DeclineError{
			Provider: models.PaymentProviderStripe,
			Code:     string(pi.Status),
			Message:  "payment intent did not succeed",
		}
	}
	return &ChargeResult{ExternalPaymentID: pi.ID}, nil
}

func (a *stripeAdapter) Refund(ctx context.Context, p RefundParams) error {
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(p.ExternalPaymentID),
	}
	if p.AmountCents > 0 {
		params.Amount = stripe.Int64(p.AmountCents)
	}
	_, err := a.client.Refunds.New(params)
	return err
}

// translateStripeError maps hard card failures onto DeclineError so dunning
// can distinguish them from transient gateway trouble.
func translateStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case stripe.ErrorCodeCardDeclined,
		stripe.ErrorCodeExpiredCard,
		stripe.ErrorCodeIncorrectCVC,
		stripe.ErrorCodeProcessingError:
		return &DeclineError{
			Provider: models.PaymentProviderStripe,
			Code:     string(se.Code),
			Message:  se.Msg,
		}
	}
	return err
}
