package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/env"
)

// Config carries the Stripe environment for checkout and webhook handling.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PricePaid43   string
	PriceSub1433  string
	PublicDomain  string
}

// ConfigFromEnv reads the Stripe configuration from the process environment.
func ConfigFromEnv() Config {
	return Config{
		SecretKey:     env.GetEnv("STRIPE_SECRET_KEY", ""),
		WebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		PricePaid43:   env.GetEnv("STRIPE_PRICE_PAID_43", ""),
		PriceSub1433:  env.GetEnv("STRIPE_PRICE_SUB_1433", ""),
		PublicDomain:  env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"),
	}
}

// WebhookConfigured reports whether the webhook endpoint can verify
// signatures at all.
func (c Config) WebhookConfigured() bool {
	return c.WebhookSecret != ""
}

// CheckoutConfigured reports whether checkout sessions can be created.
func (c Config) CheckoutConfigured() bool {
	return c.SecretKey != "" && c.PricePaid43 != "" && c.PriceSub1433 != ""
}

// expandableID decodes a Stripe expandable field, which arrives either as a
// bare id string or as an expanded object carrying an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

func unixToTime(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

// ParseCheckoutSessionEvent decodes the raw object of a
// checkout.session.completed event.
func ParseCheckoutSessionEvent(raw []byte) (*CheckoutSessionEvent, error) {
	var payload struct {
		ID                string            `json:"id"`
		Mode              string            `json:"mode"`
		Customer          expandableID      `json:"customer"`
		ClientReferenceID string            `json:"client_reference_id"`
		Metadata          map[string]string `json:"metadata"`
		AmountTotal       int64             `json:"amount_total"`
		Currency          string            `json:"currency"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &CheckoutSessionEvent{
		SessionID:         payload.ID,
		Mode:              payload.Mode,
		CheckoutMode:      payload.Metadata["checkout_mode"],
		CustomerID:        string(payload.Customer),
		ClientReferenceID: payload.ClientReferenceID,
		MetadataUserID:    payload.Metadata["user_id"],
		AmountTotal:       payload.AmountTotal,
		Currency:          payload.Currency,
	}, nil
}

// ParseSubscriptionEvent decodes the raw object of a customer.subscription.*
// event. The period end is taken as the latest current_period_end across the
// subscription items.
func ParseSubscriptionEvent(raw []byte) (*SubscriptionEvent, error) {
	var payload struct {
		ID       string            `json:"id"`
		Customer expandableID      `json:"customer"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
		Items    struct {
			Data []struct {
				CurrentPeriodEnd int64 `json:"current_period_end"`
				Price            struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
		BillingCycleAnchor int64 `json:"billing_cycle_anchor"`
		EndedAt            int64 `json:"ended_at"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	sub := &SubscriptionEvent{
		SubscriptionID:     payload.ID,
		CustomerID:         string(payload.Customer),
		Status:             payload.Status,
		MetadataUserID:     payload.Metadata["user_id"],
		BillingCycleAnchor: unixToTime(payload.BillingCycleAnchor),
		EndedAt:            unixToTime(payload.EndedAt),
	}
	var latest int64
	for _, item := range payload.Items.Data {
		if sub.PriceID == "" {
			sub.PriceID = item.Price.ID
		}
		if item.CurrentPeriodEnd > latest {
			latest = item.CurrentPeriodEnd
		}
	}
	sub.CurrentPeriodEnd = unixToTime(latest)
	return sub, nil
}

// ParseInvoiceEvent decodes the raw object of an invoice.paid or
// invoice.payment_failed event. Newer API versions move the subscription
// reference and metadata under parent.subscription_details, so both shapes
// are read.
func ParseInvoiceEvent(raw []byte) (*InvoiceEvent, error) {
	var payload struct {
		ID           string       `json:"id"`
		Customer     expandableID `json:"customer"`
		Subscription expandableID `json:"subscription"`
		AttemptCount int64        `json:"attempt_count"`
		Parent       struct {
			SubscriptionDetails struct {
				Subscription expandableID      `json:"subscription"`
				Metadata     map[string]string `json:"metadata"`
			} `json:"subscription_details"`
		} `json:"parent"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	inv := &InvoiceEvent{
		InvoiceID:      payload.ID,
		CustomerID:     string(payload.Customer),
		SubscriptionID: string(payload.Subscription),
		MetadataUserID: payload.Parent.SubscriptionDetails.Metadata["user_id"],
		AttemptCount:   payload.AttemptCount,
	}
	if inv.SubscriptionID == "" {
		inv.SubscriptionID = string(payload.Parent.SubscriptionDetails.Subscription)
	}
	return inv, nil
}
