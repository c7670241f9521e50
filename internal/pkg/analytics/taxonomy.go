package analytics

// App event names emitted by the billing engine and the checkout flow. The
// set is closed so dashboards never see misspelled one-offs.
const (
	EventCheckoutStart        = "checkout_start"
	EventPurchaseComplete     = "purchase_complete"
	EventSubscriptionStarted  = "subscription_started"
	EventReactivated          = "reactivated"
	EventSubscriptionCanceled = "subscription_canceled"
	EventPaymentFailed        = "payment_failed"
	EventEmailCaptured        = "email_captured"
	EventMagicLinkSent        = "magic_link_sent"
)

var appEvents = map[string]struct{}{
	EventCheckoutStart:        {},
	EventPurchaseComplete:     {},
	EventSubscriptionStarted:  {},
	EventReactivated:          {},
	EventSubscriptionCanceled: {},
	EventPaymentFailed:        {},
	EventEmailCaptured:        {},
	EventMagicLinkSent:        {},
}

// IsKnownEvent reports whether name is part of the app event taxonomy.
func IsKnownEvent(name string) bool {
	_, ok := appEvents[name]
	return ok
}
