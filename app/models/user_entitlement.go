package models

import "time"

// User states consumed by the rest of the product. A user starts at
// free_email and moves between states only through billing events.
const (
	UserStateFreeEmail   = "free_email"
	UserStatePaid43      = "paid_43"
	UserStateSubActive   = "sub_active"
	UserStatePastDue     = "past_due"
	UserStateSubCanceled = "sub_canceled"
)

// Raw Stripe subscription status strings we persist alongside user_state.
const (
	SubStatusActive     = "active"
	SubStatusTrialing   = "trialing"
	SubStatusPastDue    = "past_due"
	SubStatusUnpaid     = "unpaid"
	SubStatusIncomplete = "incomplete"
	SubStatusCanceled   = "canceled"
)

// UserEntitlement is the authoritative billing status record, one row per
// user. Rows are created on the first resolvable billing event (or at first
// login) and mutated in place afterwards; they are never deleted.
type UserEntitlement struct {
	UserID              uint       `gorm:"primaryKey" json:"user_id"`
	UserState           string     `gorm:"type:varchar(32);not null;default:'free_email';index" json:"user_state"`
	StripeCustomerID    string     `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	Paid43At            *time.Time `gorm:"column:paid_43_at;type:timestamp;default:null" json:"paid_43_at,omitempty"`
	SubStatus           string     `gorm:"type:varchar(32);default:''" json:"sub_status"`
	SubCurrentPeriodEnd *time.Time `gorm:"type:timestamp;default:null" json:"sub_current_period_end,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValidUserState reports whether s is one of the five known user states.
func IsValidUserState(s string) bool {
	switch s {
	case UserStateFreeEmail, UserStatePaid43, UserStateSubActive, UserStatePastDue, UserStateSubCanceled:
		return true
	default:
		return false
	}
}
