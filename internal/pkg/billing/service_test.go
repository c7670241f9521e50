package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/analytics"
)

type fakeRepo struct {
	entitlements map[uint]*models.UserEntitlement
	events       map[string]*models.StripeWebhookEvent
	emailJobs    []*models.EmailJob
	failUpsert   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		entitlements: map[uint]*models.UserEntitlement{},
		events:       map[string]*models.StripeWebhookEvent{},
	}
}

func (f *fakeRepo) GetEntitlementByUserID(userID uint) (*models.UserEntitlement, error) {
	if ent, ok := f.entitlements[userID]; ok {
		cp := *ent
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRepo) GetEntitlementByCustomerID(customerID string) (*models.UserEntitlement, error) {
	for _, ent := range f.entitlements {
		if ent.StripeCustomerID == customerID {
			cp := *ent
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) UpsertEntitlement(ent *models.UserEntitlement) error {
	if f.failUpsert != nil {
		return f.failUpsert
	}
	cp := *ent
	f.entitlements[ent.UserID] = &cp
	return nil
}

func (f *fakeRepo) ClaimEvent(event *models.StripeWebhookEvent) (bool, *models.StripeWebhookEvent, error) {
	if existing, ok := f.events[event.EventID]; ok {
		if existing.Status == models.WebhookStatusFailed {
			existing.Status = models.WebhookStatusProcessing
			existing.FailureReason = ""
			existing.ProcessedAt = nil
			cp := *existing
			return true, &cp, nil
		}
		cp := *existing
		return false, &cp, nil
	}
	event.Status = models.WebhookStatusProcessing
	cp := *event
	f.events[event.EventID] = &cp
	return true, event, nil
}

func (f *fakeRepo) FinalizeEvent(eventID string, success bool, failureReason string) error {
	row, ok := f.events[eventID]
	if !ok {
		return fmt.Errorf("no ledger row for %s", eventID)
	}
	if success {
		row.Status = models.WebhookStatusProcessed
	} else {
		row.Status = models.WebhookStatusFailed
	}
	row.FailureReason = failureReason
	now := time.Now()
	row.ProcessedAt = &now
	return nil
}

func (f *fakeRepo) CreateEmailJob(job *models.EmailJob) error {
	f.emailJobs = append(f.emailJobs, job)
	return nil
}

type recordedEffects struct {
	analyticsEvents []analytics.Event
	emails          []string
}

func (r *recordedEffects) EmitAnalytics(event analytics.Event) {
	r.analyticsEvents = append(r.analyticsEvents, event)
}

func (r *recordedEffects) QueueEmail(userID uint, jobType string, payload map[string]interface{}) {
	r.emails = append(r.emails, jobType)
}

func newTestService() (*Service, *fakeRepo, *recordedEffects) {
	repo := newFakeRepo()
	fx := &recordedEffects{}
	svc := NewService(repo, fx)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo, fx
}

func stripeEvent(eventType string, object string) stripe.Event {
	return stripe.Event{
		ID:   "evt_test",
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(object)},
	}
}

func TestProcessSubscriptionCreatedTrialing(t *testing.T) {
	svc, repo, fx := newTestService()
	repo.entitlements[7] = &models.UserEntitlement{UserID: 7, UserState: models.UserStateFreeEmail}

	event := stripeEvent("customer.subscription.created", `{
		"id": "sub_1", "customer": "cus_7", "status": "trialing",
		"metadata": {"user_id": "7"},
		"items": {"data": [{"current_period_end": 1790000000, "price": {"id": "price_sub"}}]}
	}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	ent := repo.entitlements[7]
	require.NotNil(t, ent)
	assert.Equal(t, models.UserStateSubActive, ent.UserState)
	assert.Equal(t, "cus_7", ent.StripeCustomerID)
	assert.Equal(t, "trialing", ent.SubStatus)
	require.NotNil(t, ent.SubCurrentPeriodEnd)

	require.Len(t, fx.analyticsEvents, 1)
	assert.Equal(t, analytics.EventSubscriptionStarted, fx.analyticsEvents[0].EventName)
	assert.Equal(t, []string{models.EmailJobTypeSubRenewal}, fx.emails)
}

func TestProcessSubscriptionUpdatedReactivation(t *testing.T) {
	svc, repo, fx := newTestService()
	repo.entitlements[7] = &models.UserEntitlement{
		UserID: 7, UserState: models.UserStatePastDue, StripeCustomerID: "cus_7",
	}

	event := stripeEvent("customer.subscription.updated", `{
		"id": "sub_1", "customer": "cus_7", "status": "active",
		"items": {"data": [{"current_period_end": 1790000000, "price": {"id": "price_sub"}}]}
	}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	assert.Equal(t, models.UserStateSubActive, repo.entitlements[7].UserState)
	require.Len(t, fx.analyticsEvents, 1)
	assert.Equal(t, analytics.EventReactivated, fx.analyticsEvents[0].EventName)
	assert.Equal(t, models.UserStatePastDue, fx.analyticsEvents[0].Extra["previous_state"])
	assert.Equal(t, []string{models.EmailJobTypeSubRenewal}, fx.emails)
}

func TestProcessSubscriptionUnknownStatusFailsSafe(t *testing.T) {
	svc, repo, fx := newTestService()
	repo.entitlements[7] = &models.UserEntitlement{
		UserID: 7, UserState: models.UserStateSubActive, StripeCustomerID: "cus_7",
	}

	event := stripeEvent("customer.subscription.updated",
		`{"id": "sub_1", "customer": "cus_7", "status": "paused"}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	assert.Equal(t, models.UserStateSubCanceled, repo.entitlements[7].UserState)
	require.Len(t, fx.analyticsEvents, 1)
	assert.Equal(t, analytics.EventSubscriptionCanceled, fx.analyticsEvents[0].EventName)
}

func TestProcessSubscriptionDeleted(t *testing.T) {
	svc, repo, fx := newTestService()
	repo.entitlements[7] = &models.UserEntitlement{
		UserID: 7, UserState: models.UserStateSubActive, StripeCustomerID: "cus_7",
	}

	event := stripeEvent("customer.subscription.deleted",
		`{"id": "sub_1", "customer": "cus_7", "status": "canceled", "ended_at": 1790000000}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	ent := repo.entitlements[7]
	assert.Equal(t, models.UserStateSubCanceled, ent.UserState)
	assert.Equal(t, models.SubStatusCanceled, ent.SubStatus)
	require.Len(t, fx.analyticsEvents, 1)
	assert.Equal(t, "subscription_deleted", fx.analyticsEvents[0].Extra["reason_code"])
	assert.Equal(t, time.Unix(1790000000, 0).UTC().Format(time.RFC3339), fx.analyticsEvents[0].Extra["effective_at"])
}

func TestProcessCheckoutCompletedOneTime(t *testing.T) {
	svc, repo, fx := newTestService()

	event := stripeEvent("checkout.session.completed", `{
		"id": "cs_1", "mode": "payment", "customer": "cus_9",
		"metadata": {"user_id": "9", "checkout_mode": "paid_43"},
		"amount_total": 4300, "currency": "usd"
	}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	ent := repo.entitlements[9]
	require.NotNil(t, ent)
	assert.Equal(t, models.UserStatePaid43, ent.UserState)
	assert.Equal(t, "cus_9", ent.StripeCustomerID)
	require.NotNil(t, ent.Paid43At)

	require.Len(t, fx.analyticsEvents, 1)
	assert.Equal(t, analytics.EventPurchaseComplete, fx.analyticsEvents[0].EventName)
	assert.Equal(t, ProductSKUAssessment43, fx.analyticsEvents[0].Extra["product_sku"])
	assert.Equal(t, []string{models.EmailJobTypeChallengeKitDelivery}, fx.emails)
}

func TestProcessCheckoutOneTimeKeepsActiveSubscriber(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.entitlements[9] = &models.UserEntitlement{
		UserID: 9, UserState: models.UserStateSubActive, StripeCustomerID: "cus_9",
	}

	event := stripeEvent("checkout.session.completed", `{
		"id": "cs_1", "mode": "payment", "customer": "cus_9",
		"metadata": {"user_id": "9", "checkout_mode": "paid_43"}
	}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	ent := repo.entitlements[9]
	assert.Equal(t, models.UserStateSubActive, ent.UserState)
	require.NotNil(t, ent.Paid43At)
}

func TestProcessCheckoutSubscriptionModeOnlyAttachesCustomer(t *testing.T) {
	svc, repo, fx := newTestService()

	event := stripeEvent("checkout.session.completed", `{
		"id": "cs_1", "mode": "subscription", "customer": "cus_9",
		"metadata": {"user_id": "9", "checkout_mode": "subscription"}
	}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	ent := repo.entitlements[9]
	require.NotNil(t, ent)
	assert.Equal(t, models.UserStateFreeEmail, ent.UserState)
	assert.Equal(t, "cus_9", ent.StripeCustomerID)
	assert.Empty(t, fx.analyticsEvents)
	assert.Empty(t, fx.emails)
}

func TestProcessInvoicePaidReactivates(t *testing.T) {
	svc, repo, fx := newTestService()
	repo.entitlements[7] = &models.UserEntitlement{
		UserID: 7, UserState: models.UserStateSubCanceled, StripeCustomerID: "cus_7",
	}

	event := stripeEvent("invoice.paid",
		`{"id": "in_1", "customer": "cus_7", "subscription": "sub_1"}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	assert.Equal(t, models.UserStateSubActive, repo.entitlements[7].UserState)
	require.Len(t, fx.analyticsEvents, 1)
	assert.Equal(t, analytics.EventReactivated, fx.analyticsEvents[0].EventName)
	assert.Equal(t, []string{models.EmailJobTypeSubRenewal}, fx.emails)
}

func TestProcessInvoicePaidRoutineRenewalStaysSilent(t *testing.T) {
	svc, repo, fx := newTestService()
	repo.entitlements[7] = &models.UserEntitlement{
		UserID: 7, UserState: models.UserStateSubActive, StripeCustomerID: "cus_7",
	}

	event := stripeEvent("invoice.paid",
		`{"id": "in_1", "customer": "cus_7", "subscription": "sub_1"}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	assert.Equal(t, models.UserStateSubActive, repo.entitlements[7].UserState)
	assert.Empty(t, fx.analyticsEvents)
	assert.Empty(t, fx.emails)
}

func TestProcessInvoicePaymentFailed(t *testing.T) {
	svc, repo, fx := newTestService()
	repo.entitlements[7] = &models.UserEntitlement{
		UserID: 7, UserState: models.UserStateSubActive, StripeCustomerID: "cus_7",
	}

	event := stripeEvent("invoice.payment_failed",
		`{"id": "in_1", "customer": "cus_7", "subscription": "sub_1", "attempt_count": 2}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	ent := repo.entitlements[7]
	assert.Equal(t, models.UserStatePastDue, ent.UserState)
	assert.Equal(t, models.SubStatusPastDue, ent.SubStatus)
	require.Len(t, fx.analyticsEvents, 1)
	assert.Equal(t, analytics.EventPaymentFailed, fx.analyticsEvents[0].EventName)
	assert.Equal(t, int64(2), fx.analyticsEvents[0].Extra["attempt_count"])
	assert.Equal(t, []string{models.EmailJobTypeSubPastDue}, fx.emails)
}

func TestProcessInvoiceWithoutSubscriptionIgnored(t *testing.T) {
	svc, repo, fx := newTestService()

	event := stripeEvent("invoice.paid", `{"id": "in_1", "customer": "cus_7"}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))

	assert.Empty(t, repo.entitlements)
	assert.Empty(t, fx.analyticsEvents)
}

func TestProcessUnknownEventTypeAcknowledged(t *testing.T) {
	svc, repo, _ := newTestService()
	event := stripeEvent("charge.refunded", `{"id": "ch_1"}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))
	assert.Empty(t, repo.entitlements)
}

func TestProcessUserUnresolved(t *testing.T) {
	svc, _, _ := newTestService()
	event := stripeEvent("customer.subscription.updated",
		`{"id": "sub_1", "customer": "cus_unknown", "status": "active"}`)
	err := svc.ProcessEvent(context.Background(), event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUserUnresolved))
}

func TestProcessResolvesUserByCustomerID(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.entitlements[11] = &models.UserEntitlement{
		UserID: 11, UserState: models.UserStateFreeEmail, StripeCustomerID: "cus_11",
	}

	event := stripeEvent("customer.subscription.created",
		`{"id": "sub_1", "customer": "cus_11", "status": "active"}`)
	require.NoError(t, svc.ProcessEvent(context.Background(), event))
	assert.Equal(t, models.UserStateSubActive, repo.entitlements[11].UserState)
}

func TestProcessUpsertFailurePropagates(t *testing.T) {
	svc, repo, fx := newTestService()
	repo.entitlements[7] = &models.UserEntitlement{
		UserID: 7, UserState: models.UserStateFreeEmail, StripeCustomerID: "cus_7",
	}
	repo.failUpsert = errors.New("db down")

	event := stripeEvent("customer.subscription.created",
		`{"id": "sub_1", "customer": "cus_7", "status": "active"}`)
	err := svc.ProcessEvent(context.Background(), event)
	require.Error(t, err)
	// No side effects fire when the entitlement write fails.
	assert.Empty(t, fx.analyticsEvents)
	assert.Empty(t, fx.emails)
}

// Out-of-order deliveries for the same subscription converge on the same
// final state regardless of interleaving.
func TestProcessOrderingConvergence(t *testing.T) {
	updated := `{"id": "sub_1", "customer": "cus_7", "status": "active",
		"items": {"data": [{"current_period_end": 1790000000, "price": {"id": "price_sub"}}]}}`
	paid := `{"id": "in_1", "customer": "cus_7", "subscription": "sub_1"}`

	run := func(order []stripe.Event) string {
		svc, repo, _ := newTestService()
		repo.entitlements[7] = &models.UserEntitlement{
			UserID: 7, UserState: models.UserStatePastDue, StripeCustomerID: "cus_7",
		}
		for _, ev := range order {
			require.NoError(t, svc.ProcessEvent(context.Background(), ev))
		}
		return repo.entitlements[7].UserState
	}

	a := run([]stripe.Event{
		stripeEvent("customer.subscription.updated", updated),
		stripeEvent("invoice.paid", paid),
	})
	b := run([]stripe.Event{
		stripeEvent("invoice.paid", paid),
		stripeEvent("customer.subscription.updated", updated),
	})
	assert.Equal(t, models.UserStateSubActive, a)
	assert.Equal(t, a, b)
}

func TestClaimAndFinalizeEvent(t *testing.T) {
	svc, repo, _ := newTestService()

	claimed, err := svc.ClaimEvent("evt_1", "invoice.paid", "hash-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = svc.ClaimEvent("evt_1", "invoice.paid", "hash-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, svc.FinalizeEvent("evt_1", nil))
	assert.Equal(t, models.WebhookStatusProcessed, repo.events["evt_1"].Status)

	claimed, err = svc.ClaimEvent("evt_2", "invoice.paid", "hash-2")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, svc.FinalizeEvent("evt_2", errors.New("boom")))
	assert.Equal(t, models.WebhookStatusFailed, repo.events["evt_2"].Status)
	assert.Equal(t, "boom", repo.events["evt_2"].FailureReason)

	// A failed event is claimable again on the next retry.
	claimed, err = svc.ClaimEvent("evt_2", "invoice.paid", "hash-2")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, models.WebhookStatusProcessing, repo.events["evt_2"].Status)
}
