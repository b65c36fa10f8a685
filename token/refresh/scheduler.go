package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rundeklar/go-auth-client/internal/config"
	"github.com/rundeklar/go-auth-client/token"
	"github.com/rundeklar/go-auth-client/token/store"
)

// Scheduler drives the Coordinator with three cooperating triggers while
// a session is authenticated:
//
//   - a periodic tick, purely time-based;
//   - a trailing-edge debounce armed by user activity (Touch), gated so
//     back-to-back activity inside the threshold schedules nothing;
//   - a proactive check that refreshes when the stored access token
//     expires inside the configured horizon, bounding the damage of a
//     wall-clock jump or a missed tick.
//
// None of the triggers bypasses the Coordinator's single-flight. Start
// and Stop are invoked by the session facade on state transitions; the
// host UI only calls Touch.
type Scheduler struct {
	coordinator *Coordinator
	store       store.Store
	cfg         config.SchedulerConfig
	log         zerolog.Logger
	nowTime     func() time.Time

	mu                  sync.Mutex
	done                chan struct{}
	debounce            *time.Timer
	lastActivityRefresh time.Time
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler logger.
func WithSchedulerLogger(log zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.log = log
	}
}

// WithSchedulerNowTime sets the now time function (primarily for testing).
func WithSchedulerNowTime(nowFunc func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.nowTime = nowFunc
	}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(coordinator *Coordinator, tokenStore store.Store, cfg config.SchedulerConfig, options ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		coordinator: coordinator,
		store:       tokenStore,
		cfg:         cfg,
		log:         zerolog.Nop(),
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start arms the periodic and proactive triggers. Idempotent while
// running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	go s.run(s.done)
	s.log.Debug().
		Dur("periodic", s.cfg.GetPeriodicRefreshInterval()).
		Dur("proactive", s.cfg.GetProactiveCheckInterval()).
		Msg("refresh scheduler started")
}

// Stop tears down all three triggers synchronously. An in-flight refresh
// is left to the Coordinator; its outcome is discarded by the facade if
// the session has already ended.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	close(s.done)
	s.done = nil
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.lastActivityRefresh = time.Time{}
	s.log.Debug().Msg("refresh scheduler stopped")
}

// Touch records user activity. When the last activity-driven refresh is
// older than the activity threshold it arms (or re-arms) the trailing
// debounce; the refresh fires once the activity settles.
func (s *Scheduler) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	if s.nowTime().Sub(s.lastActivityRefresh) < s.cfg.GetActivityThreshold() {
		return
	}

	if s.debounce != nil {
		s.debounce.Reset(s.cfg.GetActivityDebounce())
		return
	}
	done := s.done
	s.debounce = time.AfterFunc(s.cfg.GetActivityDebounce(), func() {
		select {
		case <-done:
			return
		default:
		}
		s.mu.Lock()
		s.lastActivityRefresh = s.nowTime()
		s.debounce = nil
		s.mu.Unlock()
		s.refresh("activity")
	})
}

func (s *Scheduler) run(done chan struct{}) {
	periodic := time.NewTicker(s.cfg.GetPeriodicRefreshInterval())
	proactive := time.NewTicker(s.cfg.GetProactiveCheckInterval())
	defer periodic.Stop()
	defer proactive.Stop()

	for {
		select {
		case <-done:
			return
		case <-periodic.C:
			s.refresh("periodic")
		case <-proactive.C:
			// A malformed or absent token counts as expired, so the
			// proactive path also repairs a corrupted slot.
			if token.ExpiresWithin(s.store.GetAccess(), s.cfg.GetExpiryHorizon()) {
				s.refresh("proactive")
			}
		}
	}
}

func (s *Scheduler) refresh(trigger string) {
	if err := s.coordinator.Refresh(context.Background()); err != nil {
		s.log.Debug().Err(err).Str("trigger", trigger).Msg("scheduled refresh failed")
		return
	}
	s.log.Debug().Str("trigger", trigger).Msg("scheduled refresh succeeded")
}
