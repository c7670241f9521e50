package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCheckoutSessionEvent(t *testing.T) {
	raw := []byte(`{
		"id": "cs_test_123",
		"mode": "payment",
		"customer": "cus_abc",
		"client_reference_id": "7",
		"metadata": {"user_id": "7", "checkout_mode": "paid_43"},
		"amount_total": 4300,
		"currency": "usd"
	}`)
	sess, err := ParseCheckoutSessionEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", sess.SessionID)
	assert.Equal(t, "payment", sess.Mode)
	assert.Equal(t, "paid_43", sess.CheckoutMode)
	assert.Equal(t, "cus_abc", sess.CustomerID)
	assert.Equal(t, "7", sess.MetadataUserID)
	assert.Equal(t, int64(4300), sess.AmountTotal)
}

func TestParseCheckoutSessionEventExpandedCustomer(t *testing.T) {
	raw := []byte(`{"id": "cs_1", "mode": "subscription", "customer": {"id": "cus_exp", "email": "x@example.com"}}`)
	sess, err := ParseCheckoutSessionEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "cus_exp", sess.CustomerID)
	assert.Empty(t, sess.MetadataUserID)
}

func TestParseSubscriptionEvent(t *testing.T) {
	raw := []byte(`{
		"id": "sub_1",
		"customer": "cus_abc",
		"status": "trialing",
		"metadata": {"user_id": "42"},
		"billing_cycle_anchor": 1700000000,
		"items": {"data": [
			{"current_period_end": 1700600000, "price": {"id": "price_sub"}},
			{"current_period_end": 1700500000, "price": {"id": "price_other"}}
		]}
	}`)
	sub, err := ParseSubscriptionEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.SubscriptionID)
	assert.Equal(t, "cus_abc", sub.CustomerID)
	assert.Equal(t, "trialing", sub.Status)
	assert.Equal(t, "42", sub.MetadataUserID)
	assert.Equal(t, "price_sub", sub.PriceID)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1700600000, 0).UTC(), *sub.CurrentPeriodEnd)
	assert.Nil(t, sub.EndedAt)
}

func TestParseSubscriptionEventNoItems(t *testing.T) {
	raw := []byte(`{"id": "sub_2", "customer": "cus_x", "status": "canceled", "ended_at": 1700000001}`)
	sub, err := ParseSubscriptionEvent(raw)
	require.NoError(t, err)
	assert.Nil(t, sub.CurrentPeriodEnd)
	require.NotNil(t, sub.EndedAt)
	assert.Equal(t, time.Unix(1700000001, 0).UTC(), *sub.EndedAt)
}

func TestParseInvoiceEvent(t *testing.T) {
	raw := []byte(`{
		"id": "in_1",
		"customer": "cus_abc",
		"subscription": "sub_1",
		"attempt_count": 2
	}`)
	inv, err := ParseInvoiceEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "in_1", inv.InvoiceID)
	assert.Equal(t, "sub_1", inv.SubscriptionID)
	assert.Equal(t, int64(2), inv.AttemptCount)
}

func TestParseInvoiceEventParentFallback(t *testing.T) {
	raw := []byte(`{
		"id": "in_2",
		"customer": "cus_abc",
		"parent": {"subscription_details": {"subscription": "sub_9", "metadata": {"user_id": "5"}}}
	}`)
	inv, err := ParseInvoiceEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "sub_9", inv.SubscriptionID)
	assert.Equal(t, "5", inv.MetadataUserID)
}

func TestExpandableIDNull(t *testing.T) {
	var e expandableID
	require.NoError(t, e.UnmarshalJSON([]byte("null")))
	assert.Empty(t, string(e))
}
