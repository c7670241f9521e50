package billing

// EventKind is the closed set of Stripe event types the webhook engine
// reconciles. Everything else maps to EventKindUnknown and is acknowledged
// without processing.
type EventKind int

const (
	EventKindUnknown EventKind = iota
	EventKindCheckoutCompleted
	EventKindSubscriptionCreated
	EventKindSubscriptionUpdated
	EventKindSubscriptionDeleted
	EventKindInvoicePaid
	EventKindInvoicePaymentFailed
)

var eventKindByType = map[string]EventKind{
	"checkout.session.completed":    EventKindCheckoutCompleted,
	"customer.subscription.created": EventKindSubscriptionCreated,
	"customer.subscription.updated": EventKindSubscriptionUpdated,
	"customer.subscription.deleted": EventKindSubscriptionDeleted,
	"invoice.paid":                  EventKindInvoicePaid,
	"invoice.payment_failed":        EventKindInvoicePaymentFailed,
}

// ParseEventKind maps a raw Stripe event type string onto the engine's
// event kinds.
func ParseEventKind(eventType string) EventKind {
	if kind, ok := eventKindByType[eventType]; ok {
		return kind
	}
	return EventKindUnknown
}

func (k EventKind) String() string {
	switch k {
	case EventKindCheckoutCompleted:
		return "checkout.session.completed"
	case EventKindSubscriptionCreated:
		return "customer.subscription.created"
	case EventKindSubscriptionUpdated:
		return "customer.subscription.updated"
	case EventKindSubscriptionDeleted:
		return "customer.subscription.deleted"
	case EventKindInvoicePaid:
		return "invoice.paid"
	case EventKindInvoicePaymentFailed:
		return "invoice.payment_failed"
	default:
		return "unknown"
	}
}
