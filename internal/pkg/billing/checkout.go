package billing

import (
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
)

// CheckoutInput describes a checkout session to create for a logged-in user.
type CheckoutInput struct {
	UserID     uint
	Mode       string // CheckoutModePaid43 or CheckoutModeSubscription
	CustomerID string // reused when the user already has a Stripe customer
	SuccessURL string
	CancelURL  string
}

// CheckoutResult carries the redirect target back to the client.
type CheckoutResult struct {
	SessionID string
	URL       string
}

// CreateCheckoutSession creates a Stripe Checkout session for the one-time
// report or the monthly subscription. The user id travels in metadata and
// client_reference_id so the webhook can resolve the purchase even before a
// customer mapping exists.
func CreateCheckoutSession(cfg Config, in CheckoutInput) (*CheckoutResult, error) {
	if !cfg.CheckoutConfigured() {
		return nil, fmt.Errorf("stripe checkout not configured")
	}
	if in.UserID == 0 {
		return nil, fmt.Errorf("checkout requires a user id")
	}

	stripe.Key = cfg.SecretKey
	uid := strconv.FormatUint(uint64(in.UserID), 10)

	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		ClientReferenceID: stripe.String(uid),
	}
	params.AddMetadata("user_id", uid)
	params.AddMetadata("checkout_mode", in.Mode)
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	}

	switch in.Mode {
	case CheckoutModePaid43:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(cfg.PricePaid43), Quantity: stripe.Int64(1)},
		}
	case CheckoutModeSubscription:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(cfg.PriceSub1433), Quantity: stripe.Int64(1)},
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": uid},
		}
	default:
		return nil, fmt.Errorf("unknown checkout mode %q", in.Mode)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if sess.URL == "" {
		return nil, fmt.Errorf("checkout session %s has no redirect url", sess.ID)
	}
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}
