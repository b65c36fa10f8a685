package token_test

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rundeklar/go-auth-client/token"
)

// forgeToken builds an unsigned three-segment token carrying the given
// exp claim. The parser never verifies signatures, so "sig" suffices.
func forgeToken(exp int64) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d,"sub":"club-1"}`, exp)))
	return header + "." + payload + ".sig"
}

func forgeTokenWithoutExp() string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"club-1"}`))
	return header + "." + payload + ".sig"
}

func TestExpiryReadsExpClaim(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	expiry, ok := token.Expiry(forgeToken(exp))
	require.True(t, ok)
	require.Equal(t, time.Unix(exp, 0), expiry)
}

func TestExpiryMalformedTokens(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "whitespace", raw: "   "},
		{name: "not a token", raw: "hello"},
		{name: "two segments", raw: "abc.def"},
		{name: "garbage segments", raw: "!!.!!.!!"},
		{name: "missing exp", raw: forgeTokenWithoutExp()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := token.Expiry(tc.raw)
			require.False(t, ok)
		})
	}
}

func TestExpiresWithin(t *testing.T) {
	now := time.Now()

	require.True(t, token.ExpiresWithin(forgeToken(now.Add(30*time.Minute).Unix()), time.Hour))
	require.False(t, token.ExpiresWithin(forgeToken(now.Add(2*time.Hour).Unix()), time.Hour))
	require.True(t, token.ExpiresWithin(forgeToken(now.Add(-time.Minute).Unix()), time.Hour))
}

func TestExpiresWithinMalformedExpiresImmediately(t *testing.T) {
	require.True(t, token.ExpiresWithin("not-a-token", time.Hour))
	require.True(t, token.ExpiresWithin("", time.Hour))
}
