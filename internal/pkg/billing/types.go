package billing

import "time"

// Checkout modes carried in session metadata by the checkout endpoint.
const (
	CheckoutModePaid43       = "paid_43"
	CheckoutModeSubscription = "subscription"
)

// Product constants for analytics payloads.
const (
	ProductSKUAssessment43 = "assessment_43"
	ProductSKUOSUpdates    = "os_updates_1433"

	PricePaid43Cents  = 4300
	PriceSub1433Cents = 1433
	DefaultCurrency   = "usd"
)

// CheckoutSessionEvent is the normalized shape of a checkout.session.completed
// payload. Customer is already flattened to its id.
type CheckoutSessionEvent struct {
	SessionID         string
	Mode              string // stripe session mode: payment | subscription
	CheckoutMode      string // metadata checkout_mode, when the checkout endpoint set it
	CustomerID        string
	ClientReferenceID string
	MetadataUserID    string
	AmountTotal       int64
	Currency          string
}

// SubscriptionEvent is the normalized shape of a customer.subscription.*
// payload.
type SubscriptionEvent struct {
	SubscriptionID     string
	CustomerID         string
	Status             string
	MetadataUserID     string
	PriceID            string
	CurrentPeriodEnd   *time.Time
	BillingCycleAnchor *time.Time
	EndedAt            *time.Time
}

// InvoiceEvent is the normalized shape of an invoice.paid /
// invoice.payment_failed payload.
type InvoiceEvent struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	MetadataUserID string
	AttemptCount   int64
}
