package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/analytics"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/billing"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/database"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/usercontext"
)

// HandleStripeWebhook receives Stripe event deliveries. The raw body is
// verified against the signature header, the event id is claimed in the
// ledger, and only then does reconciliation run. Stripe retries on any 5xx,
// so retryable failures answer 500 and terminal ones 400.
func HandleStripeWebhook(c *fiber.Ctx) error {
	cfg := billing.ConfigFromEnv()
	if !cfg.WebhookConfigured() {
		log.Error("[Stripe] STRIPE_WEBHOOK_SECRET is not configured")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "stripe_env_missing"})
	}

	rawBody := append([]byte(nil), c.BodyRaw()...)
	sigHeader := strings.TrimSpace(c.Get("Stripe-Signature"))
	if sigHeader == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "stripe_signature_missing"})
	}

	event, err := billing.VerifyWebhookSignature(rawBody, sigHeader, cfg.WebhookSecret)
	if err != nil {
		log.Warnf("[Stripe] Signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "stripe_signature_invalid",
			"detail": err.Error(),
		})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	claimed, err := svc.ClaimEvent(event.ID, string(event.Type), billing.PayloadHash(rawBody))
	if err != nil {
		log.Errorf("[Stripe] Ledger claim failed for %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  "stripe_webhook_processing_failed",
			"detail": "event ledger unavailable",
		})
	}
	if !claimed {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "deduplicated": true})
	}

	procErr := svc.ProcessEvent(ctx, event)
	if err := svc.FinalizeEvent(event.ID, procErr); err != nil {
		log.Errorf("[Stripe] Ledger finalize failed for %s: %v", event.ID, err)
	}
	if procErr != nil {
		log.Errorf("[Stripe] Event %s (%s) failed: %v", event.ID, event.Type, procErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":  "stripe_webhook_processing_failed",
			"detail": procErr.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// CreateCheckoutRequest is the body for POST /api/v1/checkout.
type CreateCheckoutRequest struct {
	Mode string `json:"mode" validate:"required,oneof=paid_43 subscription"`
	Next string `json:"next" validate:"omitempty,max=200"`
}

// HandleCreateCheckout creates a Stripe Checkout session for the logged-in
// user and returns the redirect URL.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login_required"})
	}

	cfg := billing.ConfigFromEnv()
	if !cfg.CheckoutConfigured() {
		log.Error("[Stripe] Checkout env is not configured")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "stripe_env_missing"})
	}

	var req CreateCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_checkout_mode"})
	}

	next := req.Next
	if next == "" || !strings.HasPrefix(next, "/") {
		next = "/report"
	}

	repo := billing.NewRepository(database.GetDB())
	customerID := ""
	if ent, err := repo.GetEntitlementByUserID(userCtx.UserID); err == nil && ent != nil {
		customerID = ent.StripeCustomerID
	}

	result, err := billing.CreateCheckoutSession(cfg, billing.CheckoutInput{
		UserID:     userCtx.UserID,
		Mode:       req.Mode,
		CustomerID: customerID,
		SuccessURL: cfg.PublicDomain + next + "?checkout=success",
		CancelURL:  cfg.PublicDomain + "/upgrade?checkout=canceled",
	})
	if err != nil {
		log.Errorf("[Stripe] Checkout session create failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "stripe_checkout_failed"})
	}

	analytics.Emit(analytics.Event{
		EventName:   analytics.EventCheckoutStart,
		SourceRoute: "/api/v1/checkout",
		UserState:   userCtx.UserState,
		UserID:      userCtx.UserID,
		Extra: map[string]interface{}{
			"checkout_mode":              req.Mode,
			"stripe_checkout_session_id": result.SessionID,
		},
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"checkout_url": result.URL,
		"session_id":   result.SessionID,
	})
}
