package entitlements

import (
	"github.com/justinrpoole/143-assessment-sub003/app/models"
)

// Access describes what a billing state unlocks in the product.
type Access struct {
	FullReport   bool // complete assessment report (one-time purchase or subscription)
	OSUpdates    bool // ongoing "operating system" update content
	EmailCapture bool // free tier: email-gated preview content only
}

// ForUserState maps the authoritative billing state to product access.
// Unknown states get the free tier, never more.
func ForUserState(state string) Access {
	switch state {
	case models.UserStateSubActive:
		return Access{FullReport: true, OSUpdates: true, EmailCapture: true}
	case models.UserStatePaid43:
		return Access{FullReport: true, EmailCapture: true}
	case models.UserStatePastDue, models.UserStateSubCanceled:
		// Paid content stays locked until payment recovers, but a prior
		// one-time purchase is tracked on the entitlement row, not here.
		return Access{EmailCapture: true}
	default:
		return Access{EmailCapture: true}
	}
}

// ForEntitlement resolves access from a full entitlement row, which keeps a
// lapsed subscriber's one-time report purchase unlocked.
func ForEntitlement(ent *models.UserEntitlement) Access {
	if ent == nil {
		return ForUserState(models.UserStateFreeEmail)
	}
	access := ForUserState(ent.UserState)
	if ent.Paid43At != nil {
		access.FullReport = true
	}
	return access
}

// CanAccessFullReport is the single check most product routes care about.
func CanAccessFullReport(ent *models.UserEntitlement) bool {
	return ForEntitlement(ent).FullReport
}
