package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCurrencyKRW(t *testing.T) {
	cases := map[string]string{
		"0":         "₩0",
		"950":       "₩950",
		"15000":     "₩15,000",
		"1234567.6": "₩1,234,568",
		"-45000":    "-₩45,000",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatCurrencyKRW(decimal.RequireFromString(in)), in)
	}
}

func TestTokenRoundTripAndRevocation(t *testing.T) {
	token, err := GenerateToken(42, "SELLER")
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
	assert.Equal(t, "SELLER", claims.Role)

	BlacklistToken(token)
	assert.True(t, IsTokenBlacklisted(token))
	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	_, err := ParseToken("definitely.not.valid")
	assert.Error(t, err)

	ConfigureJWT("", -time.Hour) // non-positive TTL is ignored
	token, err := GenerateToken(1, "BUYER")
	require.NoError(t, err)

	ConfigureJWT("another-secret", 0)
	t.Cleanup(func() { ConfigureJWT("TestSecretKeyAUTH1945", 0) })
	_, err = ParseToken(token)
	assert.Error(t, err, "signed with a different secret")
}
