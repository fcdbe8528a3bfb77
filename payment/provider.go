package payment

import (
	"errors"
	"fmt"

	"cinema_booking/config"
)

// New builds the gateway named by PAYMENT_PROVIDER.
func New(cfg *config.Config) (Gateway, error) {
	switch cfg.PaymentProvider {
	case "stripe":
		if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
			return nil, errors.New("stripe requires STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET")
		}
		return NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret), nil
	case "omise":
		return NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	case "sandbox":
		return NewSandboxGateway(cfg.SandboxSecret, cfg.AppURL), nil
	default:
		return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}
}
