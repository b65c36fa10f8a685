// Package session is the public surface of the auth client: login,
// logout, registration, the startup identity probe, second-factor
// enrollment, account recovery, and a subscribable current-principal
// signal. It owns the session state machine and drives the refresh
// scheduler across state transitions.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/rundeklar/go-auth-client/fetch"
	"github.com/rundeklar/go-auth-client/internal/autherrors"
	"github.com/rundeklar/go-auth-client/principal"
	"github.com/rundeklar/go-auth-client/tenant"
	"github.com/rundeklar/go-auth-client/token/refresh"
	"github.com/rundeklar/go-auth-client/token/store"
)

const (
	loginPath    = "/auth/login"
	logoutPath   = "/auth/logout"
	registerPath = "/auth/register"
	mePath       = "/auth/me"
)

// Deps holds all collaborator dependencies for the Service.
type Deps struct {
	Store       store.Store          // Credential slot store
	Coordinator *refresh.Coordinator // Single-flight refresh engine
	Scheduler   *refresh.Scheduler   // Refresh triggers, started while authenticated
	Fetch       *fetch.Client        // Bearer-authenticated authority calls
	Binding     *tenant.Binding      // Active tenant and demo isolation
}

// Service is the session facade.
type Service struct {
	deps       Deps
	httpClient *http.Client
	log        zerolog.Logger
	nowTime    func() time.Time

	mu               sync.Mutex
	state            State
	principal        *principal.Principal
	flowToken        string
	subscribers      map[int]chan *principal.Principal
	stateSubscribers map[int]chan State
	nextSubID        int
	probed           bool
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithHTTPClient sets the HTTP client used for the unauthenticated
// authority calls (login, register, recovery). Bearer calls go through
// Deps.Fetch regardless.
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		s.httpClient = client
	}
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// NewService initializes the session facade with required dependencies.
// It registers itself as the coordinator's termination observer.
func NewService(deps Deps, options ...ServiceOption) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("[NewService] Store is required")
	}
	if deps.Coordinator == nil {
		return nil, errors.New("[NewService] Coordinator is required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("[NewService] Scheduler is required")
	}
	if deps.Fetch == nil {
		return nil, errors.New("[NewService] Fetch is required")
	}
	if deps.Binding == nil {
		return nil, errors.New("[NewService] Binding is required")
	}

	s := &Service{
		deps:             deps,
		httpClient:       http.DefaultClient,
		log:              zerolog.Nop(),
		nowTime:          time.Now,
		state:            StateInitializing,
		subscribers:      make(map[int]chan *principal.Principal),
		stateSubscribers: make(map[int]chan State),
	}
	for _, opt := range options {
		opt(s)
	}

	deps.Coordinator.OnTerminated(s.handleTerminated)
	return s, nil
}

// State returns the facade's current state. A refresh in flight while
// authenticated reads as StateRefreshing.
func (s *Service) State() State {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateAuthenticated && s.deps.Coordinator.InFlight() {
		return StateRefreshing
	}
	return state
}

// Current returns the authenticated principal, or nil while anonymous.
func (s *Service) Current() *principal.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// Subscribe returns a channel delivering the current principal (nil for
// anonymous) on every change, and an unsubscribe function. Delivery is
// last-writer-wins: a slow consumer sees the latest value, not every
// intermediate one.
func (s *Service) Subscribe() (<-chan *principal.Principal, func()) {
	ch := make(chan *principal.Principal, 1)
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// SubscribeState returns a channel delivering facade state transitions
// in order, and an unsubscribe function. Unlike the principal signal it
// does not coalesce, so the transient StateTerminated label is observed
// before the state settles at StateAnonymous. A consumer that stops
// reading misses transitions past the buffer.
func (s *Service) SubscribeState() (<-chan State, func()) {
	ch := make(chan State, 8)
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.stateSubscribers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.stateSubscribers, id)
		s.mu.Unlock()
	}
}

type loginRequest struct {
	Email       string `json:"email,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	PIN         string `json:"pin,omitempty"`
	TOTPCode    string `json:"totpCode,omitempty"`
	TenantID    string `json:"tenantId"`
	IsolationID string `json:"isolationId,omitempty"`
}

type loginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	Club         *principal.Principal `json:"club"`
}

// LoginWithPassword authenticates with email and password, plus an
// optional TOTP or recovery code when the account has a second factor
// enrolled. When the authority demands a second factor the sentinel
// autherrors.ErrSecondFactorRequired is returned and nothing is stored;
// the caller prompts and retries with the code.
func (s *Service) LoginWithPassword(ctx context.Context, email, password, totpCode string) (*principal.Principal, error) {
	return s.login(ctx, loginRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
		TOTPCode: totpCode,
	})
}

// LoginWithPIN authenticates with a short username and a six-digit
// numeric code. The username is lowercased and trimmed before the call.
// No second-factor path exists for PIN login.
func (s *Service) LoginWithPIN(ctx context.Context, username, pin string) (*principal.Principal, error) {
	return s.login(ctx, loginRequest{
		Username: strings.ToLower(strings.TrimSpace(username)),
		PIN:      pin,
	})
}

func (s *Service) login(ctx context.Context, req loginRequest) (*principal.Principal, error) {
	req.TenantID = s.deps.Binding.TenantID()
	if s.deps.Binding.IsDemo() {
		req.IsolationID = s.deps.Binding.GetOrCreateIsolation()
	}

	resp, err := s.postJSON(ctx, loginPath, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.login] authority call")
	}
	defer resp.Body.Close()

	if err := checkFailure(resp); err != nil {
		return nil, err
	}

	var body loginResponse
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	if body.AccessToken == "" || body.RefreshToken == "" || body.Club == nil {
		return nil, &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	s.deps.Store.SetPair(body.AccessToken, body.RefreshToken)
	s.deps.Coordinator.Reset()
	s.setPrincipal(body.Club, StateAuthenticated)
	s.deps.Scheduler.Start()
	s.log.Info().Str("tenant", req.TenantID).Msg("login succeeded")
	return body.Club, nil
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	TenantID    string `json:"tenantId"`
	IsolationID string `json:"isolationId,omitempty"`
}

// Register creates an unverified account. It does not log in; the
// account must confirm its email before credentials are issued.
func (s *Service) Register(ctx context.Context, email, password string) error {
	req := registerRequest{
		Email:    strings.TrimSpace(email),
		Password: password,
		TenantID: s.deps.Binding.TenantID(),
	}
	if s.deps.Binding.IsDemo() {
		req.IsolationID = s.deps.Binding.GetOrCreateIsolation()
	}

	resp, err := s.postJSON(ctx, registerPath, req)
	if err != nil {
		return errors.Wrap(err, "[Service.Register] authority call")
	}
	defer resp.Body.Close()
	return checkFailure(resp)
}

// Logout notifies the authority best-effort so the refresh credential
// can be revoked, then terminates the local session unconditionally.
// Idempotent and safe to race against itself.
func (s *Service) Logout(ctx context.Context) {
	s.deps.Scheduler.Stop()

	if refreshToken := s.deps.Store.GetRefresh(); refreshToken != "" {
		resp, err := s.postJSON(ctx, logoutPath, map[string]string{"refreshToken": refreshToken})
		if err != nil {
			s.log.Debug().Err(err).Msg("logout notification failed")
		} else {
			resp.Body.Close()
		}
	}

	// A refresh already in flight may complete after this point; marking
	// the coordinator invalid makes it discard the outcome.
	s.deps.Coordinator.Invalidate()
	s.deps.Store.ClearPair()

	s.mu.Lock()
	wasAuthenticated := s.state == StateAuthenticated
	s.mu.Unlock()
	if wasAuthenticated {
		s.setPrincipal(nil, StateAnonymous)
	} else {
		s.mu.Lock()
		changed := s.state != StateAnonymous
		s.state = StateAnonymous
		s.principal = nil
		states := s.snapshotStateSubscribersLocked()
		s.mu.Unlock()
		if changed {
			publishState(states, StateAnonymous)
		}
	}
	s.log.Info().Msg("logged out")
}

type meResponse struct {
	Club *principal.Principal `json:"club"`
}

// WhoAmI is the startup identity probe: it reads the stored access
// credential and asks the authority who it belongs to, populating the
// principal or settling at anonymous. Runs the probe once per process;
// later calls return the current principal. The scheduler is armed only
// after the probe completes.
func (s *Service) WhoAmI(ctx context.Context) (*principal.Principal, error) {
	s.mu.Lock()
	if s.probed {
		p := s.principal
		s.mu.Unlock()
		return p, nil
	}
	s.probed = true
	s.mu.Unlock()

	if s.deps.Store.GetAccess() == "" {
		s.setPrincipal(nil, StateAnonymous)
		return nil, nil
	}

	resp, err := s.deps.Fetch.DoJSON(ctx, http.MethodGet, mePath, nil)
	if err != nil {
		// Authority unreachable: stored credentials are retained, but
		// the session cannot claim an identity it has not confirmed.
		s.log.Warn().Err(err).Msg("identity probe unreachable")
		s.setPrincipal(nil, StateAnonymous)
		return nil, errors.Wrap(err, "[Service.WhoAmI] authority call")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		s.deps.Store.ClearPair()
		s.setPrincipal(nil, StateAnonymous)
		return nil, nil
	}
	if err := checkFailure(resp); err != nil {
		s.setPrincipal(nil, StateAnonymous)
		return nil, err
	}

	var body meResponse
	if err := decodeJSON(resp, &body); err != nil {
		s.setPrincipal(nil, StateAnonymous)
		return nil, err
	}
	if body.Club == nil {
		s.setPrincipal(nil, StateAnonymous)
		return nil, &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	s.setPrincipal(body.Club, StateAuthenticated)
	s.deps.Scheduler.Start()
	return body.Club, nil
}

// handleTerminated reacts to authority-confirmed invalidation from the
// coordinator. Credentials are already cleared; the facade drops the
// principal, delivers the transient terminated label to state
// subscribers, and settles at anonymous.
func (s *Service) handleTerminated() {
	s.deps.Scheduler.Stop()

	s.mu.Lock()
	s.principal = nil
	s.state = StateAnonymous
	subs := s.snapshotSubscribersLocked()
	states := s.snapshotStateSubscribersLocked()
	s.mu.Unlock()

	publishState(states, StateTerminated)
	publishState(states, StateAnonymous)
	publish(subs, nil)
	s.log.Info().Msg("session terminated")
}

func (s *Service) setPrincipal(p *principal.Principal, state State) {
	s.mu.Lock()
	s.principal = p
	s.state = state
	subs := s.snapshotSubscribersLocked()
	states := s.snapshotStateSubscribersLocked()
	s.mu.Unlock()
	publishState(states, state)
	publish(subs, p)
}

func (s *Service) snapshotSubscribersLocked() []chan *principal.Principal {
	subs := make([]chan *principal.Principal, 0, len(s.subscribers))
	for _, ch := range s.subscribers {
		subs = append(subs, ch)
	}
	return subs
}

func (s *Service) snapshotStateSubscribersLocked() []chan State {
	subs := make([]chan State, 0, len(s.stateSubscribers))
	for _, ch := range s.stateSubscribers {
		subs = append(subs, ch)
	}
	return subs
}

// publish delivers the latest principal without blocking: a full buffer
// is drained first so the subscriber always observes the newest value.
func publish(subs []chan *principal.Principal, p *principal.Principal) {
	for _, ch := range subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}

// publishState delivers a state transition without blocking. No
// draining: transitions arrive in order until the buffer fills.
func publishState(subs []chan State, state State) {
	for _, ch := range subs {
		select {
		case ch <- state:
		default:
		}
	}
}

// postJSON issues an unauthenticated JSON POST against the authority.
func (s *Service) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.deps.Fetch.BaseURL()+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &autherrors.TransportError{Err: err}
	}
	return resp, nil
}

type failureBody struct {
	Error       string            `json:"error"`
	Detail      string            `json:"detail,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	Requires2FA bool              `json:"requires2FA,omitempty"`
}

// checkFailure maps a non-2xx authority response onto the error
// taxonomy. The content type is validated before parsing so an HTML
// error page is never swallowed as JSON.
func checkFailure(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var body failureBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if body.Requires2FA {
		return autherrors.ErrSecondFactorRequired
	}
	switch body.Error {
	case "invalid credentials", "invalid_credentials":
		return autherrors.ErrInvalidCredentials
	case "invalid totp code", "invalid_totp_code":
		return autherrors.ErrSecondFactorInvalid
	}
	if len(body.FieldErrors) > 0 {
		return &autherrors.ValidationError{Message: body.Error, FieldErrors: body.FieldErrors}
	}
	if body.Error != "" {
		return &autherrors.AuthorityError{Reason: body.Error, Detail: body.Detail}
	}
	return &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
}

// decodeJSON parses a 2xx response body, validating the content type
// first.
func decodeJSON(resp *http.Response, dest any) error {
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		return &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &autherrors.ServerError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
