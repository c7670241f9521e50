package billing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signedHeader(t time.Time, payload []byte, secret string) string {
	sig := webhook.ComputeSignature(t, payload, secret)
	return fmt.Sprintf("t=%d,v1=%x", t.Unix(), sig)
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"id": "evt_1", "type": "invoice.paid", "data": {"object": {"id": "in_1"}}}`)
	header := signedHeader(time.Now(), payload, testWebhookSecret)

	event, err := VerifyWebhookSignature(payload, header, testWebhookSecret)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "invoice.paid", string(event.Type))
}

func TestVerifyWebhookSignatureTamperedBody(t *testing.T) {
	payload := []byte(`{"id": "evt_1", "type": "invoice.paid"}`)
	header := signedHeader(time.Now(), payload, testWebhookSecret)

	tampered := []byte(`{"id": "evt_2", "type": "invoice.paid"}`)
	_, err := VerifyWebhookSignature(tampered, header, testWebhookSecret)
	assert.Error(t, err)
}

func TestVerifyWebhookSignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id": "evt_1", "type": "invoice.paid"}`)
	header := signedHeader(time.Now(), payload, "whsec_other")

	_, err := VerifyWebhookSignature(payload, header, testWebhookSecret)
	assert.Error(t, err)
}

func TestVerifyWebhookSignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id": "evt_1", "type": "invoice.paid"}`)
	header := signedHeader(time.Now().Add(-time.Hour), payload, testWebhookSecret)

	_, err := VerifyWebhookSignature(payload, header, testWebhookSecret)
	assert.Error(t, err)
}

func TestPayloadHash(t *testing.T) {
	a := PayloadHash([]byte("body-a"))
	b := PayloadHash([]byte("body-b"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, PayloadHash([]byte("body-a")))
}
