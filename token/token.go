// Package token holds the credential pair handled by the session client
// and the unverified expiry parser used for refresh scheduling.
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Pair is an access/refresh credential pair as issued by the authority.
// Both values are opaque strings to this client; only the access token's
// exp claim is ever inspected, and only for scheduling.
type Pair struct {
	Access  string
	Refresh string
}

// Expiry decodes the exp claim of an access token without verifying its
// signature. Trust is delegated to the authority on every call; the
// expiry is needed locally only to decide when to refresh. Returns
// ok=false on any structural defect, which callers must treat as
// "expires immediately".
func Expiry(raw string) (time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	claims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return time.Time{}, false
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}

	return time.Unix(int64(exp), 0), true
}

// ExpiresWithin reports whether the token expires inside the given
// horizon. A malformed token expires immediately.
func ExpiresWithin(raw string, horizon time.Duration) bool {
	expiry, ok := Expiry(raw)
	if !ok {
		return true
	}
	return !expiry.After(NowTimeFunc().Add(horizon))
}
