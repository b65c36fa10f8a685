package store

import "sync"

// InMemory is a Store backed by a process-local map. It is the default
// for tests and for hosts without a durable per-user location.
type InMemory struct {
	mu       sync.RWMutex
	values   map[string]string
	onChange func()
}

var _ Store = (*InMemory)(nil)

func NewInMemory(opts ...Option) *InMemory {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &InMemory{
		values:   make(map[string]string),
		onChange: o.onChange,
	}
}

func (s *InMemory) GetAccess() string  { return s.get(AccessTokenKey) }
func (s *InMemory) GetRefresh() string { return s.get(RefreshTokenKey) }

func (s *InMemory) SetPair(access, refresh string) {
	s.mu.Lock()
	s.values[AccessTokenKey] = access
	s.values[RefreshTokenKey] = refresh
	s.mu.Unlock()
	s.notify()
}

func (s *InMemory) ClearPair() {
	s.mu.Lock()
	delete(s.values, AccessTokenKey)
	delete(s.values, RefreshTokenKey)
	s.mu.Unlock()
	s.notify()
}

func (s *InMemory) GetIsolation() string { return s.get(IsolationKey) }

func (s *InMemory) SetIsolation(value string) {
	s.mu.Lock()
	s.values[IsolationKey] = value
	s.mu.Unlock()
	s.notify()
}

func (s *InMemory) ClearIsolation() {
	s.mu.Lock()
	delete(s.values, IsolationKey)
	s.mu.Unlock()
	s.notify()
}

func (s *InMemory) get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *InMemory) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
