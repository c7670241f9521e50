package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/analytics"
)

// ErrUserUnresolved is returned when an event carries neither a usable
// user_id in metadata nor a customer id already known to the entitlement
// store. The webhook endpoint answers 500 so Stripe retries after the
// checkout handler has had a chance to persist the mapping.
var ErrUserUnresolved = errors.New("billing: user unresolved for event")

const analyticsSourceWebhook = "stripe_webhook"

// Service reconciles verified Stripe events into the entitlement store and
// dispatches the resulting side effects.
type Service struct {
	repo Repository
	fx   SideEffects
	now  func() time.Time
}

// NewService wires a Service from explicit dependencies.
func NewService(repo Repository, fx SideEffects) *Service {
	return &Service{repo: repo, fx: fx, now: time.Now}
}

// NewServiceFromDB wires the production Service on top of a gorm handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	repo := NewRepository(db)
	return NewService(repo, NewDispatcher(repo))
}

// ClaimEvent records an event id in the ledger before any processing starts.
// claimed=false means another delivery already processed the event or still
// holds it; failed events are claimable again so retries can recover.
func (s *Service) ClaimEvent(eventID, eventType, payloadHash string) (bool, error) {
	claimed, _, err := s.repo.ClaimEvent(&models.StripeWebhookEvent{
		EventID:     eventID,
		EventType:   eventType,
		PayloadHash: payloadHash,
	})
	return claimed, err
}

// FinalizeEvent stamps the ledger row for a claimed event. procErr nil marks
// it processed, anything else marks it failed with the reason recorded.
func (s *Service) FinalizeEvent(eventID string, procErr error) error {
	reason := ""
	if procErr != nil {
		reason = procErr.Error()
	}
	return s.repo.FinalizeEvent(eventID, procErr == nil, reason)
}

// ProcessEvent routes a verified event to its handler. Unknown event types
// are logged and acknowledged so Stripe stops redelivering them.
func (s *Service) ProcessEvent(ctx context.Context, event stripe.Event) error {
	handlers := map[EventKind]func(context.Context, []byte) error{
		EventKindCheckoutCompleted:    s.handleCheckoutCompleted,
		EventKindSubscriptionCreated:  s.handleSubscriptionUpsert,
		EventKindSubscriptionUpdated:  s.handleSubscriptionUpsert,
		EventKindSubscriptionDeleted:  s.handleSubscriptionDeleted,
		EventKindInvoicePaid:          s.handleInvoicePaid,
		EventKindInvoicePaymentFailed: s.handleInvoicePaymentFailed,
	}
	kind := ParseEventKind(string(event.Type))
	handler, ok := handlers[kind]
	if !ok {
		log.Infof("[billing] ignoring unhandled event type %s (%s)", event.Type, event.ID)
		return nil
	}
	return handler(ctx, event.Data.Raw)
}

// resolveUserID turns event identity hints into a user id. Metadata wins;
// otherwise the customer id is looked up in the entitlement store.
func (s *Service) resolveUserID(metadataUserID, customerID string) (uint, error) {
	if metadataUserID != "" {
		id, err := strconv.ParseUint(metadataUserID, 10, 64)
		if err == nil && id > 0 {
			return uint(id), nil
		}
	}
	if customerID != "" {
		ent, err := s.repo.GetEntitlementByCustomerID(customerID)
		if err != nil {
			return 0, err
		}
		if ent != nil {
			return ent.UserID, nil
		}
	}
	return 0, ErrUserUnresolved
}

// mergeEntitlement copies the stored row so a handler can apply its deltas,
// or starts a fresh free_email row for a user seen for the first time.
func mergeEntitlement(existing *models.UserEntitlement, userID uint) *models.UserEntitlement {
	if existing != nil {
		cp := *existing
		return &cp
	}
	return &models.UserEntitlement{UserID: userID, UserState: models.UserStateFreeEmail}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, raw []byte) error {
	sess, err := ParseCheckoutSessionEvent(raw)
	if err != nil {
		return err
	}
	metaUserID := sess.MetadataUserID
	if metaUserID == "" {
		metaUserID = sess.ClientReferenceID
	}
	userID, err := s.resolveUserID(metaUserID, sess.CustomerID)
	if err != nil {
		return fmt.Errorf("checkout %s: %w", sess.SessionID, err)
	}
	existing, err := s.repo.GetEntitlementByUserID(userID)
	if err != nil {
		return err
	}

	oneTime := sess.CheckoutMode == CheckoutModePaid43 ||
		(sess.CheckoutMode == "" && sess.Mode != "subscription")
	if !oneTime {
		// Subscription checkouts only attach the customer id here; the
		// state change arrives with the subscription events.
		ent := mergeEntitlement(existing, userID)
		if sess.CustomerID != "" {
			ent.StripeCustomerID = sess.CustomerID
		}
		return s.repo.UpsertEntitlement(ent)
	}

	now := s.now()
	ent := mergeEntitlement(existing, userID)
	// An active subscriber buying the one-time report keeps the higher
	// state; paid_43_at still records the purchase.
	if ent.UserState != models.UserStateSubActive {
		ent.UserState = models.UserStatePaid43
	}
	if sess.CustomerID != "" {
		ent.StripeCustomerID = sess.CustomerID
	}
	ent.Paid43At = &now
	if err := s.repo.UpsertEntitlement(ent); err != nil {
		return err
	}

	amount := sess.AmountTotal
	if amount == 0 {
		amount = PricePaid43Cents
	}
	currency := sess.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	s.fx.EmitAnalytics(analytics.Event{
		EventName:   analytics.EventPurchaseComplete,
		SourceRoute: analyticsSourceWebhook,
		UserState:   ent.UserState,
		UserID:      userID,
		Extra: map[string]interface{}{
			"product_sku":                ProductSKUAssessment43,
			"amount_cents":               amount,
			"currency":                   currency,
			"stripe_checkout_session_id": sess.SessionID,
		},
	})
	s.fx.QueueEmail(userID, models.EmailJobTypeChallengeKitDelivery, map[string]interface{}{
		"report_route": "/report",
	})
	return nil
}

func (s *Service) handleSubscriptionUpsert(ctx context.Context, raw []byte) error {
	sub, err := ParseSubscriptionEvent(raw)
	if err != nil {
		return err
	}
	userID, err := s.resolveUserID(sub.MetadataUserID, sub.CustomerID)
	if err != nil {
		return fmt.Errorf("subscription %s: %w", sub.SubscriptionID, err)
	}
	previous, err := s.repo.GetEntitlementByUserID(userID)
	if err != nil {
		return err
	}

	next := DeriveSubscriptionState(sub.Status)
	ent := mergeEntitlement(previous, userID)
	ent.UserState = next
	if sub.CustomerID != "" {
		ent.StripeCustomerID = sub.CustomerID
	}
	ent.SubStatus = sub.Status
	ent.SubCurrentPeriodEnd = sub.CurrentPeriodEnd
	if err := s.repo.UpsertEntitlement(ent); err != nil {
		return err
	}

	switch next {
	case models.UserStateSubActive:
		s.emitSubscriptionActive(userID, previous, sub.SubscriptionID)
	case models.UserStateSubCanceled:
		effectiveAt := s.now()
		if sub.EndedAt != nil {
			effectiveAt = *sub.EndedAt
		}
		s.emitSubscriptionCanceled(userID, sub.SubscriptionID, effectiveAt, "subscription_status_"+sub.Status)
	default:
		s.emitPaymentFailed(userID, "", 0)
	}
	return nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, raw []byte) error {
	sub, err := ParseSubscriptionEvent(raw)
	if err != nil {
		return err
	}
	userID, err := s.resolveUserID(sub.MetadataUserID, sub.CustomerID)
	if err != nil {
		return fmt.Errorf("subscription delete %s: %w", sub.SubscriptionID, err)
	}
	previous, err := s.repo.GetEntitlementByUserID(userID)
	if err != nil {
		return err
	}

	ent := mergeEntitlement(previous, userID)
	ent.UserState = models.UserStateSubCanceled
	if sub.CustomerID != "" {
		ent.StripeCustomerID = sub.CustomerID
	}
	ent.SubStatus = models.SubStatusCanceled
	ent.SubCurrentPeriodEnd = sub.CurrentPeriodEnd
	if err := s.repo.UpsertEntitlement(ent); err != nil {
		return err
	}

	effectiveAt := s.now()
	if sub.EndedAt != nil {
		effectiveAt = *sub.EndedAt
	}
	s.emitSubscriptionCanceled(userID, sub.SubscriptionID, effectiveAt, "subscription_deleted")
	return nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, raw []byte) error {
	inv, err := ParseInvoiceEvent(raw)
	if err != nil {
		return err
	}
	if inv.SubscriptionID == "" {
		// One-time invoices are not part of the subscription lifecycle.
		return nil
	}
	userID, err := s.resolveUserID(inv.MetadataUserID, inv.CustomerID)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", inv.InvoiceID, err)
	}
	previous, err := s.repo.GetEntitlementByUserID(userID)
	if err != nil {
		return err
	}

	ent := mergeEntitlement(previous, userID)
	ent.UserState = models.UserStateSubActive
	if inv.CustomerID != "" {
		ent.StripeCustomerID = inv.CustomerID
	}
	ent.SubStatus = models.SubStatusActive
	if err := s.repo.UpsertEntitlement(ent); err != nil {
		return err
	}

	// A paid invoice after a lapse is the recovery signal; a routine renewal
	// stays silent.
	if previous != nil && IsReactivation(previous.UserState) {
		s.emitSubscriptionActive(userID, previous, inv.SubscriptionID)
	}
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, raw []byte) error {
	inv, err := ParseInvoiceEvent(raw)
	if err != nil {
		return err
	}
	if inv.SubscriptionID == "" {
		return nil
	}
	userID, err := s.resolveUserID(inv.MetadataUserID, inv.CustomerID)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", inv.InvoiceID, err)
	}
	previous, err := s.repo.GetEntitlementByUserID(userID)
	if err != nil {
		return err
	}

	ent := mergeEntitlement(previous, userID)
	ent.UserState = models.UserStatePastDue
	if inv.CustomerID != "" {
		ent.StripeCustomerID = inv.CustomerID
	}
	ent.SubStatus = models.SubStatusPastDue
	if err := s.repo.UpsertEntitlement(ent); err != nil {
		return err
	}

	s.emitPaymentFailed(userID, inv.InvoiceID, inv.AttemptCount)
	return nil
}

func (s *Service) emitSubscriptionActive(userID uint, previous *models.UserEntitlement, subscriptionID string) {
	extra := map[string]interface{}{
		"product_sku":            ProductSKUOSUpdates,
		"price_cents":            PriceSub1433Cents,
		"stripe_subscription_id": subscriptionID,
	}
	eventName := analytics.EventSubscriptionStarted
	if previous != nil && IsReactivation(previous.UserState) {
		eventName = analytics.EventReactivated
		extra["previous_state"] = previous.UserState
	}
	s.fx.EmitAnalytics(analytics.Event{
		EventName:   eventName,
		SourceRoute: analyticsSourceWebhook,
		UserState:   models.UserStateSubActive,
		UserID:      userID,
		Extra:       extra,
	})
	// Entering sub_active always confirms with the renewal email; the
	// reactivation-offer email is reserved for cancellations.
	s.fx.QueueEmail(userID, models.EmailJobTypeSubRenewal, map[string]interface{}{
		"account_route": "/account",
	})
}

func (s *Service) emitSubscriptionCanceled(userID uint, subscriptionID string, effectiveAt time.Time, reasonCode string) {
	s.fx.EmitAnalytics(analytics.Event{
		EventName:   analytics.EventSubscriptionCanceled,
		SourceRoute: analyticsSourceWebhook,
		UserState:   models.UserStateSubCanceled,
		UserID:      userID,
		Extra: map[string]interface{}{
			"stripe_subscription_id": subscriptionID,
			"effective_at":           effectiveAt.UTC().Format(time.RFC3339),
			"reason_code":            reasonCode,
		},
	})
	s.fx.QueueEmail(userID, models.EmailJobTypeSubReactivation, map[string]interface{}{
		"account_route": "/account",
		"upgrade_route": "/upgrade",
	})
}

func (s *Service) emitPaymentFailed(userID uint, invoiceID string, attemptCount int64) {
	extra := map[string]interface{}{}
	if invoiceID != "" {
		extra["invoice_id"] = invoiceID
	}
	if attemptCount > 0 {
		extra["attempt_count"] = attemptCount
	}
	s.fx.EmitAnalytics(analytics.Event{
		EventName:   analytics.EventPaymentFailed,
		SourceRoute: analyticsSourceWebhook,
		UserState:   models.UserStatePastDue,
		UserID:      userID,
		Extra:       extra,
	})
	s.fx.QueueEmail(userID, models.EmailJobTypeSubPastDue, map[string]interface{}{
		"account_route": "/account",
	})
}
