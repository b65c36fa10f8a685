// Package principal defines the identifying projection of the
// authenticated party and the closed role set used for authorization
// decisions.
package principal

// RoleType represents a user role within a club tenant
type RoleType string

const (
	RoleCoach       RoleType = "coach"        // Runs training evenings, manages attendance
	RoleAdmin       RoleType = "admin"        // Manages the club: members, seasons, settings
	RoleSystemAdmin RoleType = "system_admin" // Cross-tenant operations and vendor-sync console
)

// roleRank orders the closed role set for minimum-role checks. Unknown
// role strings rank below every known role.
var roleRank = map[RoleType]int{
	RoleCoach:       1,
	RoleAdmin:       2,
	RoleSystemAdmin: 3,
}

// Known reports whether r is part of the closed role set.
func (r RoleType) Known() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r ranks at or above minimum. An unknown role
// never satisfies any minimum.
func (r RoleType) AtLeast(minimum RoleType) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	minRank, ok := roleRank[minimum]
	if !ok {
		return false
	}
	return rank >= minRank
}

// Principal is the authenticated party bound to the current session.
// Immutable per session: a re-login replaces it wholesale.
type Principal struct {
	ID            string   `json:"id"`                 // Stable unique identifier
	Email         string   `json:"email"`              // Login email address
	Username      string   `json:"username,omitempty"` // Optional short username (PIN login)
	Role          RoleType `json:"role"`               // Role within the bound tenant
	TenantID      string   `json:"tenantId"`           // Club tenant the session is scoped to
	EmailVerified bool     `json:"emailVerified"`      // Whether the email has been confirmed
	TwoFactor     bool     `json:"twoFactorEnabled"`   // Whether a second factor is enrolled
}

// HasRole reports whether the principal holds at least the given role.
func (p *Principal) HasRole(minimum RoleType) bool {
	if p == nil {
		return false
	}
	return p.Role.AtLeast(minimum)
}
