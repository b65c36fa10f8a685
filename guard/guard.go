// Package guard derives routing verdicts from session state. It mutates
// nothing and navigates nowhere; the UI layer acts on the verdict.
package guard

import (
	"github.com/rundeklar/go-auth-client/principal"
	"github.com/rundeklar/go-auth-client/session"
)

// Verdict is the outcome of a guard check.
type Verdict string

const (
	// Allow renders the protected area.
	Allow Verdict = "allow"
	// DenyRedirectToLogin sends the user to the authentication entry
	// point.
	DenyRedirectToLogin Verdict = "deny-redirect-to-login"
	// Loading means the session is still initializing; render a
	// placeholder and re-check.
	Loading Verdict = "loading"
)

// SessionReader is the slice of the session facade the guard consumes.
type SessionReader interface {
	State() session.State
	Current() *principal.Principal
}

// Check gates a protected area on an authenticated session.
func Check(s SessionReader) Verdict {
	return CheckRole(s, "")
}

// CheckRole gates a protected area on an authenticated session holding
// at least minimum. An empty minimum requires authentication only. An
// unknown role on the principal never satisfies a role requirement.
func CheckRole(s SessionReader, minimum principal.RoleType) Verdict {
	switch s.State() {
	case session.StateInitializing:
		return Loading
	case session.StateAuthenticated, session.StateRefreshing:
	default:
		return DenyRedirectToLogin
	}

	p := s.Current()
	if p == nil {
		return DenyRedirectToLogin
	}
	if minimum == "" {
		return Allow
	}
	if !p.HasRole(minimum) {
		return DenyRedirectToLogin
	}
	return Allow
}
