package payments

import (
	"fmt"
	"strings"

	"github.com/OpenMatHQ/DojoDesk/app/models"
	"github.com/OpenMatHQ/DojoDesk/internal/pkg/env"
)

// NewAdapter resolves the active gateway setting to a concrete adapter.
// An empty provider returns ErrNoGatewayConfigured so billing and dunning can
// degrade to invoice-only operation.
func NewAdapter(provider string) (GatewayAdapter, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "":
		return nil, ErrNoGatewayConfigured
	case models.PaymentProviderStripe:
		return NewStripeAdapter(env.GetEnv("STRIPE_SECRET_KEY", "")), nil
	case models.PaymentProviderPayPal:
		return NewPayPalAdapterFromEnv(), nil
	case models.PaymentProviderSquare:
		return NewSquareAdapterFromEnv(), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway %q", provider)
	}
}
