package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/billing"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/database"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/entitlements"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/usercontext"
)

// HandleGetAccountEntitlement returns the caller's billing state and the
// access flags derived from it. Users without an entitlement row are plain
// free_email accounts.
func HandleGetAccountEntitlement(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login_required"})
	}

	repo := billing.NewRepository(database.GetDB())
	ent, err := repo.GetEntitlementByUserID(userCtx.UserID)
	if err != nil {
		log.Errorf("[Account] Entitlement lookup failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "entitlement_lookup_failed"})
	}
	if ent == nil {
		ent = &models.UserEntitlement{UserID: userCtx.UserID, UserState: models.UserStateFreeEmail}
	}

	access := entitlements.ForEntitlement(ent)

	resp := fiber.Map{
		"user_state": ent.UserState,
		"sub_status": ent.SubStatus,
		"access": fiber.Map{
			"full_report": access.FullReport,
			"os_updates":  access.OSUpdates,
		},
	}
	if ent.Paid43At != nil {
		resp["paid_43_at"] = ent.Paid43At.UTC().Format(time.RFC3339)
	}
	if ent.SubCurrentPeriodEnd != nil {
		resp["sub_current_period_end"] = ent.SubCurrentPeriodEnd.UTC().Format(time.RFC3339)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
