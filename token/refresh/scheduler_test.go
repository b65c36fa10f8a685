package refresh_test

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rundeklar/go-auth-client/internal/config"
	"github.com/rundeklar/go-auth-client/token/refresh"
	"github.com/rundeklar/go-auth-client/token/store"
)

// testIntervals compresses the scheduler cycle into milliseconds.
type testIntervals struct {
	periodic  time.Duration
	threshold time.Duration
	debounce  time.Duration
	proactive time.Duration
	horizon   time.Duration
}

var _ config.SchedulerConfig = testIntervals{}

func (c testIntervals) GetPeriodicRefreshInterval() time.Duration { return c.periodic }
func (c testIntervals) GetActivityThreshold() time.Duration       { return c.threshold }
func (c testIntervals) GetActivityDebounce() time.Duration        { return c.debounce }
func (c testIntervals) GetProactiveCheckInterval() time.Duration  { return c.proactive }
func (c testIntervals) GetExpiryHorizon() time.Duration           { return c.horizon }

func forgeAccessToken(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp.Unix())))
	return header + "." + payload + ".sig"
}

func newSchedulerFixture(t *testing.T, intervals testIntervals) (*refresh.Scheduler, *store.InMemory, *refreshAuthority) {
	t.Helper()
	authority := newRefreshAuthority(t, func(w http.ResponseWriter, _ *http.Request, attempt int64) {
		writePair(w, fmt.Sprintf("A%d", attempt+1), fmt.Sprintf("R%d", attempt+1))
	})
	s := store.NewInMemory()
	coordinator := refresh.NewCoordinator(s, authority.server.URL, refresh.WithSleep(noSleep))
	scheduler := refresh.NewScheduler(coordinator, s, intervals)
	t.Cleanup(scheduler.Stop)
	return scheduler, s, authority
}

func TestSchedulerPeriodicTick(t *testing.T) {
	scheduler, s, authority := newSchedulerFixture(t, testIntervals{
		periodic:  25 * time.Millisecond,
		threshold: time.Hour,
		debounce:  time.Hour,
		proactive: time.Hour,
		horizon:   time.Hour,
	})
	s.SetPair(forgeAccessToken(time.Now().Add(24*time.Hour)), "R1")

	scheduler.Start()
	require.Eventually(t, func() bool {
		return authority.calls.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSchedulerProactiveRefreshesExpiringToken(t *testing.T) {
	scheduler, s, authority := newSchedulerFixture(t, testIntervals{
		periodic:  time.Hour,
		threshold: time.Hour,
		debounce:  time.Hour,
		proactive: 25 * time.Millisecond,
		horizon:   time.Hour,
	})
	// Expires inside the horizon: the proactive check must refresh.
	s.SetPair(forgeAccessToken(time.Now().Add(10*time.Minute)), "R1")

	scheduler.Start()
	require.Eventually(t, func() bool {
		return authority.calls.Load() >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSchedulerProactiveSkipsFreshToken(t *testing.T) {
	scheduler, s, authority := newSchedulerFixture(t, testIntervals{
		periodic:  time.Hour,
		threshold: time.Hour,
		debounce:  time.Hour,
		proactive: 10 * time.Millisecond,
		horizon:   time.Hour,
	})
	s.SetPair(forgeAccessToken(time.Now().Add(24*time.Hour)), "R1")

	scheduler.Start()
	time.Sleep(150 * time.Millisecond)
	require.EqualValues(t, 0, authority.calls.Load())
}

func TestSchedulerProactiveTreatsMalformedAsExpired(t *testing.T) {
	scheduler, s, authority := newSchedulerFixture(t, testIntervals{
		periodic:  time.Hour,
		threshold: time.Hour,
		debounce:  time.Hour,
		proactive: 10 * time.Millisecond,
		horizon:   time.Hour,
	})
	s.SetPair("not-a-token", "R1")

	scheduler.Start()
	require.Eventually(t, func() bool {
		return authority.calls.Load() >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSchedulerActivityDebounce(t *testing.T) {
	scheduler, s, authority := newSchedulerFixture(t, testIntervals{
		periodic:  time.Hour,
		threshold: 10 * time.Minute,
		debounce:  30 * time.Millisecond,
		proactive: time.Hour,
		horizon:   time.Hour,
	})
	s.SetPair(forgeAccessToken(time.Now().Add(24*time.Hour)), "R1")
	scheduler.Start()

	// A burst of activity collapses into one trailing-edge refresh.
	scheduler.Touch()
	scheduler.Touch()
	scheduler.Touch()
	require.Eventually(t, func() bool {
		return authority.calls.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)

	// Further activity inside the threshold schedules nothing.
	scheduler.Touch()
	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 1, authority.calls.Load())
}

func TestSchedulerTouchWhileStoppedIsIgnored(t *testing.T) {
	scheduler, s, authority := newSchedulerFixture(t, testIntervals{
		periodic:  time.Hour,
		threshold: time.Millisecond,
		debounce:  10 * time.Millisecond,
		proactive: time.Hour,
		horizon:   time.Hour,
	})
	s.SetPair(forgeAccessToken(time.Now().Add(24*time.Hour)), "R1")

	scheduler.Touch()
	time.Sleep(60 * time.Millisecond)
	require.EqualValues(t, 0, authority.calls.Load())
}

func TestSchedulerStopTearsDownTriggers(t *testing.T) {
	scheduler, s, authority := newSchedulerFixture(t, testIntervals{
		periodic:  20 * time.Millisecond,
		threshold: 10 * time.Minute,
		debounce:  20 * time.Millisecond,
		proactive: 20 * time.Millisecond,
		horizon:   time.Hour,
	})
	s.SetPair(forgeAccessToken(time.Now()), "R1")

	scheduler.Start()
	scheduler.Touch()
	scheduler.Stop()

	// Let any tick already in flight drain before sampling.
	time.Sleep(50 * time.Millisecond)
	calls := authority.calls.Load()
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, calls, authority.calls.Load())
}
