// Package store provides durable, synchronous-read storage for the three
// credential slots the session client owns. Writes are best-effort: a
// store that cannot persist (read-only volume, quota) silently no-ops and
// reads return the empty string, which the session layer treats as
// anonymous. Storage failure is never fatal.
package store

// Well-known slot names. Shared across every store implementation so a
// file store and a future keyring store remain interchangeable.
const (
	AccessTokenKey  = "auth_access_token"
	RefreshTokenKey = "auth_refresh_token"
	IsolationKey    = "rundeklar_isolation_id"
)

// Store is the credential slot store. The empty string denotes an absent
// slot. Implementations must be safe for concurrent use.
type Store interface {
	GetAccess() string
	GetRefresh() string
	SetPair(access, refresh string)
	ClearPair()

	GetIsolation() string
	SetIsolation(value string)
	ClearIsolation()
}

type options struct {
	onChange func()
}

// Option configures a store implementation.
type Option func(*options)

// WithOnChange registers a callback invoked after every mutation. Used by
// the tenant binding to observe isolation-identifier changes.
func WithOnChange(fn func()) Option {
	return func(o *options) {
		o.onChange = fn
	}
}
