package session

import (
	"net/url"
	"strings"
)

// ExtractFlowToken lifts an auth-flow token (verify-email,
// reset-password, reset-pin) out of a landing URL. The fragment
// query-string is preferred, then the path query-string. Returns the
// empty string when no token is carried.
func ExtractFlowToken(u *url.URL) string {
	if u == nil {
		return ""
	}
	if _, query, ok := strings.Cut(u.Fragment, "?"); ok {
		if values, err := url.ParseQuery(query); err == nil {
			if token := values.Get("token"); token != "" {
				return token
			}
		}
	}
	return u.Query().Get("token")
}

// LiftFlowToken extracts the flow token from u into the service's
// ephemeral slot, so the host may clean the URL without losing it.
func (s *Service) LiftFlowToken(u *url.URL) {
	token := ExtractFlowToken(u)
	if token == "" {
		return
	}
	s.mu.Lock()
	s.flowToken = token
	s.mu.Unlock()
}

// ConsumeFlowToken returns the lifted token and clears the slot. A
// second call returns the empty string.
func (s *Service) ConsumeFlowToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := s.flowToken
	s.flowToken = ""
	return token
}
