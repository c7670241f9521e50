package models

import "time"

// Ledger statuses. An entry moves processing -> processed or
// processing -> failed; a failed entry is re-claimed back to processing when
// Stripe retries the event. Only processed is terminal.
const (
	WebhookStatusProcessing = "processing"
	WebhookStatusProcessed  = "processed"
	WebhookStatusFailed     = "failed"
)

// StripeWebhookEvent is the dedup/audit ledger for inbound webhook
// deliveries, one row per Stripe event id. Rows are inserted as `processing`
// before any handler runs and are never deleted, so the table doubles as a
// permanent audit trail. Only a `processed` row deduplicates a redelivery;
// `failed` rows get one attempt per retry. An entry stuck in `processing`
// means a previous attempt crashed between claim and finalize; retries of
// that id short-circuit until an operator requeues it.
type StripeWebhookEvent struct {
	EventID       string     `gorm:"primaryKey;type:varchar(191)" json:"event_id"`
	EventType     string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadHash   string     `gorm:"type:varchar(64);not null;default:''" json:"payload_hash"`
	Status        string     `gorm:"type:varchar(16);not null;default:'processing';index" json:"status"`
	FailureReason string     `gorm:"type:text" json:"failure_reason"`
	ReceivedAt    time.Time  `gorm:"autoCreateTime;index" json:"received_at"`
	ProcessedAt   *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
}
