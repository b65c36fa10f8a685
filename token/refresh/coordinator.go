// Package refresh owns the credential refresh lifecycle: a single-flight
// coordinator that redeems the stored refresh token for a fresh pair, and
// the scheduler whose triggers funnel into it.
package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rundeklar/go-auth-client/internal/autherrors"
	"github.com/rundeklar/go-auth-client/internal/utils"
	"github.com/rundeklar/go-auth-client/token/store"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	refreshPath = "/auth/refresh"
	refreshKey  = "refresh"
	maxRetries  = 3
)

// Retry delays between attempts. The budget is one initial attempt plus
// len(retryDelays) retries.
var retryDelays = [maxRetries]time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken *string `json:"refreshToken,omitempty"`
}

// Coordinator redeems the stored refresh credential for a new pair.
//
// Concurrent callers during an in-flight refresh share the same eventual
// outcome without a second network call. On authority-confirmed
// invalidation after the retry budget the coordinator terminates the
// session: both credentials are cleared and the OnTerminated hook fires.
// Transport failures never clear credentials; the next trigger may
// succeed.
type Coordinator struct {
	store      store.Store
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	// requireRotation treats a rotation-less success as an authority
	// protocol violation. Off by default: the authority is allowed to
	// reissue the same refresh credential.
	requireRotation bool

	onTerminated func()
	sleep        func(context.Context, time.Duration) error

	group singleflight.Group

	mu         sync.Mutex
	terminated bool
	inFlight   bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithHTTPClient sets the HTTP client used for authority calls.
func WithHTTPClient(client *http.Client) CoordinatorOption {
	return func(c *Coordinator) {
		c.httpClient = client
	}
}

// WithRequireRotation makes a refresh response without a new refresh
// token a permanent failure. Enable when the authority issues strictly
// single-use refresh credentials.
func WithRequireRotation() CoordinatorOption {
	return func(c *Coordinator) {
		c.requireRotation = true
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(log zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = log
	}
}

// WithSleep overrides the backoff sleep (primarily for testing).
func WithSleep(fn func(context.Context, time.Duration) error) CoordinatorOption {
	return func(c *Coordinator) {
		c.sleep = fn
	}
}

// NewCoordinator creates a refresh coordinator over the given store,
// calling the authority rooted at baseURL.
func NewCoordinator(tokenStore store.Store, baseURL string, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:      tokenStore,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		log:        zerolog.Nop(),
		sleep:      sleepContext,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Refresh redeems the stored refresh credential. It returns nil on
// success. Failure is either permanent (ErrSessionTerminated,
// ErrRefreshRejected, ErrNoRefreshToken: the session is over until the
// next login) or recoverable (ErrRefreshUnavailable: the authority was
// unreachable, credentials are intact).
//
// The refresh itself is detached from ctx so an abandoned caller cannot
// fail the callers sharing the flight; ctx only bounds the wait.
func (c *Coordinator) Refresh(ctx context.Context) error {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return nil, c.doRefresh()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTerminated registers a hook fired exactly once per termination,
// after credentials are cleared. The session facade uses it to drop the
// principal and notify subscribers.
func (c *Coordinator) OnTerminated(fn func()) {
	c.onTerminated = fn
}

// InFlight reports whether a refresh is currently executing.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Terminated reports whether the coordinator has permanently invalidated
// the session. Reset by the facade on the next successful login.
func (c *Coordinator) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Reset clears the terminated state. Called after a successful login has
// stored a fresh credential pair.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.terminated = false
	c.mu.Unlock()
}

// Invalidate marks the coordinator terminated without touching the store
// or firing the termination hook. Called on logout, where the facade
// already owns the state transition; a refresh resolving afterwards
// discards its outcome instead of resurrecting the cleared pair. Reset
// re-arms on the next login.
func (c *Coordinator) Invalidate() {
	c.mu.Lock()
	c.terminated = true
	c.mu.Unlock()
}

func (c *Coordinator) doRefresh() error {
	if c.Terminated() {
		return autherrors.ErrSessionTerminated
	}

	c.mu.Lock()
	c.inFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	refreshToken := c.store.GetRefresh()
	if refreshToken == "" {
		return autherrors.ErrNoRefreshToken
	}

	ctx := context.Background()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug().Int("attempt", attempt).Msg("retrying refresh")
			if err := c.sleep(ctx, retryDelays[attempt-1]); err != nil {
				return err
			}
		}

		resp, err := c.call(ctx, refreshToken)
		if err == nil {
			return c.rotate(refreshToken, resp)
		}
		lastErr = err

		// Only transport failures and authority-side rejections consume
		// the retry budget; anything else ends the flight immediately.
		if !autherrors.IsTransport(err) && !autherrors.Is(err, autherrors.ErrRefreshRejected) {
			break
		}
	}

	if autherrors.Is(lastErr, autherrors.ErrRefreshRejected) {
		c.terminate()
		return lastErr
	}
	if autherrors.IsTransport(lastErr) {
		c.log.Warn().Err(lastErr).Msg("refresh unreachable, credentials retained")
		return fmt.Errorf("%w: %w", autherrors.ErrRefreshUnavailable, lastErr)
	}
	return lastErr
}

func (c *Coordinator) call(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &autherrors.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, autherrors.ErrRefreshRejected
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return nil, &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if parsed.AccessToken == "" {
		return nil, &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return &parsed, nil
}

// rotate stores the new pair. The refresh credential is replaced only
// when the authority issued a new one; otherwise the redeemed credential
// is retained. When the session ended while the flight was running, or
// the stored refresh credential no longer matches the one redeemed, the
// outcome is discarded: a refresh resolving after logout must not
// restore cleared credentials.
func (c *Coordinator) rotate(redeemed string, resp *refreshResponse) error {
	newRefresh := utils.Value(resp.RefreshToken)
	if newRefresh == "" {
		if c.requireRotation {
			c.log.Error().Msg("authority did not rotate refresh token")
			c.terminate()
			return autherrors.ErrRotationRequired
		}
		newRefresh = redeemed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated || c.store.GetRefresh() != redeemed {
		c.log.Debug().Msg("refresh outcome discarded, session ended mid-flight")
		return autherrors.ErrSessionTerminated
	}
	c.store.SetPair(resp.AccessToken, newRefresh)
	c.log.Debug().Bool("rotated", resp.RefreshToken != nil).Msg("refresh succeeded")
	return nil
}

// terminate clears both credentials exactly once and notifies the owner.
func (c *Coordinator) terminate() {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return
	}
	c.terminated = true
	c.mu.Unlock()

	c.store.ClearPair()
	c.log.Info().Msg("session terminated by authority")
	if c.onTerminated != nil {
		c.onTerminated()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
