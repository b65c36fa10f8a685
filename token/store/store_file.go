package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const storeFileName = "auth_store.json"

// File is a Store persisted as a JSON file in the configured data folder.
// The file is loaded once at construction; reads are then synchronous
// from memory while every mutation is written back best-effort. A write
// failure is logged at debug level and otherwise ignored: last-write-wins
// across processes is accepted, matching the browser storage the slots
// were designed around.
type File struct {
	mu       sync.RWMutex
	path     string
	values   map[string]string
	onChange func()
}

var _ Store = (*File)(nil)

func NewFile(dataFolder string, opts ...Option) *File {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	f := &File{
		path:     filepath.Join(dataFolder, storeFileName),
		values:   make(map[string]string),
		onChange: o.onChange,
	}

	if err := os.MkdirAll(dataFolder, 0o700); err != nil {
		log.Debug().Err(err).Str("folder", dataFolder).Msg("token store folder unavailable")
		return f
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return f
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		log.Debug().Err(err).Str("path", f.path).Msg("token store file corrupt, starting empty")
		f.values = make(map[string]string)
	}
	return f
}

func (s *File) GetAccess() string  { return s.get(AccessTokenKey) }
func (s *File) GetRefresh() string { return s.get(RefreshTokenKey) }

func (s *File) SetPair(access, refresh string) {
	s.mu.Lock()
	s.values[AccessTokenKey] = access
	s.values[RefreshTokenKey] = refresh
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *File) ClearPair() {
	s.mu.Lock()
	delete(s.values, AccessTokenKey)
	delete(s.values, RefreshTokenKey)
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *File) GetIsolation() string { return s.get(IsolationKey) }

func (s *File) SetIsolation(value string) {
	s.mu.Lock()
	s.values[IsolationKey] = value
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *File) ClearIsolation() {
	s.mu.Lock()
	delete(s.values, IsolationKey)
	s.persistLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *File) get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *File) persistLocked() {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		log.Debug().Err(err).Str("path", s.path).Msg("token store write failed")
	}
}

func (s *File) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
