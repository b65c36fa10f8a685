package tenant

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rundeklar/go-auth-client/token/store"
)

// Binding holds the active tenant for a session and the demo tenant's
// isolation identifier. It owns no cache content itself; consumers
// subscribe to the invalidation signal and drop their keyed state when it
// fires.
type Binding struct {
	store store.Store
	log   zerolog.Logger

	mu            sync.Mutex
	tenantID      string
	lastIsolation string
	subscribers   map[int]chan struct{}
	nextSubID     int
}

// BindingOption configures a Binding.
type BindingOption func(*Binding)

// WithLogger sets the binding logger.
func WithLogger(log zerolog.Logger) BindingOption {
	return func(b *Binding) {
		b.log = log
	}
}

// NewBinding creates a binding for the given resolved tenant.
func NewBinding(tenantID string, tokenStore store.Store, options ...BindingOption) *Binding {
	b := &Binding{
		store:       tokenStore,
		log:         zerolog.Nop(),
		tenantID:    tenantID,
		subscribers: make(map[int]chan struct{}),
	}
	for _, opt := range options {
		opt(b)
	}
	if b.tenantID == "" {
		b.tenantID = Default
	}
	if b.IsDemo() {
		b.lastIsolation = tokenStore.GetIsolation()
	}
	return b
}

// TenantID returns the active tenant identifier.
func (b *Binding) TenantID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tenantID
}

// IsDemo reports whether the active tenant is the shared demo club.
func (b *Binding) IsDemo() bool {
	return b.TenantID() == Demo
}

// SetTenant rebinds the session to a new tenant. A change fires the
// invalidation signal before any subsequent authority call can observe
// the new identifier.
func (b *Binding) SetTenant(tenantID string) {
	if tenantID == "" {
		tenantID = Default
	}
	b.mu.Lock()
	changed := b.tenantID != tenantID
	b.tenantID = tenantID
	b.mu.Unlock()
	if changed {
		b.log.Debug().Str("tenant", tenantID).Msg("tenant rebound")
		b.invalidate()
	}
}

// GetOrCreateIsolation returns the persisted isolation identifier,
// minting and persisting a fresh one on first demand. Only the demo
// tenant carries one; for every other tenant the result is empty
// irrespective of store contents.
func (b *Binding) GetOrCreateIsolation() string {
	if !b.IsDemo() {
		return ""
	}
	// Store calls stay outside the binding lock: the store's change
	// notification may re-enter via Track.
	id := b.store.GetIsolation()
	if id == "" {
		id = uuid.NewString()
		b.store.SetIsolation(id)
		b.log.Debug().Str("isolation", id).Msg("isolation identifier minted")
	}
	b.mu.Lock()
	changed := b.lastIsolation != id
	b.lastIsolation = id
	b.mu.Unlock()
	if changed {
		b.invalidate()
	}
	return id
}

// PeekIsolation returns the persisted isolation identifier without
// creating one.
func (b *Binding) PeekIsolation() string {
	if !b.IsDemo() {
		return ""
	}
	return b.store.GetIsolation()
}

// ClearIsolation removes the persisted identifier. The next
// GetOrCreateIsolation mints a new one.
func (b *Binding) ClearIsolation() {
	if !b.IsDemo() {
		return
	}
	b.store.ClearIsolation()
	b.mu.Lock()
	changed := b.lastIsolation != ""
	b.lastIsolation = ""
	b.mu.Unlock()
	if changed {
		b.invalidate()
	}
}

// Track re-reads the persisted isolation identifier and fires the
// invalidation signal when it differs from the last-known value. Wired
// to the store's change notification so an external rewrite (another
// process sharing the store) is observed.
func (b *Binding) Track() {
	if !b.IsDemo() {
		return
	}
	b.mu.Lock()
	id := b.store.GetIsolation()
	changed := b.lastIsolation != id
	b.lastIsolation = id
	b.mu.Unlock()
	if changed {
		b.invalidate()
	}
}

// SubscribeInvalidation returns a signal channel and an unsubscribe
// function. The channel carries at most one pending invalidation;
// coalescing is fine because consumers drop all keyed state regardless.
func (b *Binding) SubscribeInvalidation() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

func (b *Binding) invalidate() {
	b.mu.Lock()
	subs := make([]chan struct{}, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
