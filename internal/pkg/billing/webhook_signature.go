package billing

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// VerifyWebhookSignature checks the Stripe-Signature header against the raw
// request body and returns the parsed event envelope. The raw body must be
// the exact bytes Stripe sent; any re-serialization breaks the HMAC.
func VerifyWebhookSignature(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// PayloadHash returns the hex SHA-256 of a webhook body, stored alongside the
// event for replay diagnostics.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
