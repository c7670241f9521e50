package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserNormalizesEmail(t *testing.T) {
	u, err := CreateUser("  Person@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "person@example.com", u.Email)
	assert.Equal(t, STATUS_ACTIVE, u.Status)
}

func TestCreateUserRejectsInvalidEmail(t *testing.T) {
	_, err := CreateUser("not-an-email")
	assert.Error(t, err)
}

func TestMagicLinkTokenRoundTrip(t *testing.T) {
	u := &User{Email: "person@example.com", Status: STATUS_ACTIVE}

	token, err := u.GenerateMagicLinkToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, token, u.MagicLinkTokenHash)

	assert.True(t, u.CheckMagicLinkToken(token))
	assert.False(t, u.CheckMagicLinkToken("wrong-token"))

	u.ClearMagicLinkToken()
	assert.False(t, u.CheckMagicLinkToken(token))
}

func TestMagicLinkTokenExpires(t *testing.T) {
	u := &User{Email: "person@example.com", Status: STATUS_ACTIVE}
	token, err := u.GenerateMagicLinkToken()
	require.NoError(t, err)

	stale := time.Now().Add(-MagicLinkTTL - time.Minute)
	u.MagicLinkSentAt = &stale
	assert.False(t, u.CheckMagicLinkToken(token))
}

func TestIsValidUserState(t *testing.T) {
	for _, state := range []string{
		UserStateFreeEmail, UserStatePaid43, UserStateSubActive, UserStatePastDue, UserStateSubCanceled,
	} {
		assert.True(t, IsValidUserState(state), state)
	}
	assert.False(t, IsValidUserState("premium"))
	assert.False(t, IsValidUserState(""))
}

func TestIsValidEmailJobType(t *testing.T) {
	assert.True(t, IsValidEmailJobType(EmailJobTypeMagicLinkLogin))
	assert.True(t, IsValidEmailJobType(EmailJobTypeChallengeKitDelivery))
	assert.False(t, IsValidEmailJobType("carrier_pigeon"))
}
