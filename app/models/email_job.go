package models

import "time"

// Email job types. The billing engine queues the subscription_* types; the
// rest belong to the product's lifecycle campaigns and the magic-link login
// flow.
const (
	EmailJobTypeChallengeKitDelivery = "challenge_kit_delivery"
	EmailJobTypePreviewNudge         = "preview_nudge"
	EmailJobTypeUpgradeNudge         = "upgrade_nudge"
	EmailJobTypePostReportFollowup   = "post_report_followup"
	EmailJobTypeSubRenewal           = "subscription_renewal"
	EmailJobTypeSubReactivation      = "subscription_reactivation"
	EmailJobTypeSubPastDue           = "subscription_past_due"
	EmailJobTypeMagicLinkLogin       = "magic_link_login"
)

const (
	EmailJobStatusQueued     = "queued"
	EmailJobStatusProcessing = "processing"
	EmailJobStatusSent       = "sent"
	EmailJobStatusFailed     = "failed"
	EmailJobStatusSkipped    = "skipped"
	EmailJobStatusCanceled   = "canceled"
)

// EmailJob is a durable outbound email request. The row is the source of
// truth; the redis queue only carries job ids as a delivery nudge, so a lost
// redis entry is recovered by the due-job sweeper.
type EmailJob struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	Type        string     `gorm:"type:varchar(50);not null;index" json:"type"`
	PayloadJSON string     `gorm:"type:longtext" json:"payload_json"`
	SendAt      time.Time  `gorm:"not null;index" json:"send_at"`
	Status      string     `gorm:"type:varchar(16);not null;default:'queued';index" json:"status"`
	Attempts    int        `gorm:"default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	SentAt      *time.Time `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsValidEmailJobType reports whether t names a known email job type.
func IsValidEmailJobType(t string) bool {
	switch t {
	case EmailJobTypeChallengeKitDelivery, EmailJobTypePreviewNudge, EmailJobTypeUpgradeNudge,
		EmailJobTypePostReportFollowup, EmailJobTypeSubRenewal, EmailJobTypeSubReactivation,
		EmailJobTypeSubPastDue, EmailJobTypeMagicLinkLogin:
		return true
	default:
		return false
	}
}
