package billing

import (
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrWebhookSecretMissing = errors.New("STRIPE_WEBHOOK_SECRET is not configured")

// VerifyStripeEvent checks the Stripe-Signature header and decodes the event.
func VerifyStripeEvent(payload []byte, signatureHeader, webhookSecret string) (stripe.Event, error) {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return stripe.Event{}, ErrWebhookSecretMissing
	}
	return webhook.ConstructEventWithOptions(payload, strings.TrimSpace(signatureHeader), secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}
