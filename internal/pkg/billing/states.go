package billing

import (
	"strings"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
)

// DeriveSubscriptionState maps a raw Stripe subscription status onto the
// product's user state. Unknown statuses fail safe to sub_canceled so that
// a new Stripe status never silently grants access.
func DeriveSubscriptionState(rawStatus string) string {
	switch strings.ToLower(strings.TrimSpace(rawStatus)) {
	case models.SubStatusActive, models.SubStatusTrialing:
		return models.UserStateSubActive
	case models.SubStatusPastDue, models.SubStatusUnpaid, models.SubStatusIncomplete:
		return models.UserStatePastDue
	case models.SubStatusCanceled:
		return models.UserStateSubCanceled
	default:
		return models.UserStateSubCanceled
	}
}

// IsReactivation reports whether moving into sub_active from previousState
// counts as a comeback rather than a first subscription.
func IsReactivation(previousState string) bool {
	return previousState == models.UserStatePastDue || previousState == models.UserStateSubCanceled
}
