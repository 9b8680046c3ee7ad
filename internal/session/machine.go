package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/metrics"
	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/transport"
)

var (
	// ErrTransitionInProgress is returned by Login while a login or refresh is already running.
	ErrTransitionInProgress = errors.New("authentication already in progress")
	// ErrAlreadyAuthenticated is returned by Login while a session is active. Log out first.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
)

type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseRefreshing
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRefreshing:
		return "refreshing"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is an immutable snapshot of the authentication state.
// Version increases with every transition, so observers can drop stale snapshots.
type State struct {
	Phase   Phase
	Profile *models.Profile
	Reason  string
	Version uint64
}

func (s State) IsAuthenticated() bool {
	return s.Phase == PhaseAuthenticated || s.Phase == PhaseRefreshing
}

func (s State) IsLoading() bool    { return s.Phase == PhaseAuthenticating }
func (s State) IsRefreshing() bool { return s.Phase == PhaseRefreshing }

func (s State) clone() State {
	if s.Profile != nil {
		p := s.Profile.Clone()
		s.Profile = &p
	}
	return s
}

// Decision is the outcome of a route-level authorization check.
type Decision int

const (
	DecisionAllowed Decision = iota
	DecisionPending
	DecisionLoginRequired
	DecisionForbidden
)

func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionPending:
		return "pending"
	case DecisionLoginRequired:
		return "login required"
	case DecisionForbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Manager holds the single authoritative authentication state of the process.
type Manager struct {
	mu    sync.Mutex
	state State

	coord     *Coordinator
	transport Transport
	now       func() time.Time
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics

	states        broadcaster[State]
	invalidations broadcaster[models.InvalidationEvent]
}

// NewManager bootstraps from the credential store: a stored session with
// both tokens is taken as authenticated without contacting the server.
func NewManager(ctx context.Context, coord *Coordinator, t Transport, log *zap.SugaredLogger, m *metrics.Metrics) *Manager {
	mgr := &Manager{
		state:     State{Phase: PhaseAnonymous},
		coord:     coord,
		transport: t,
		now:       time.Now,
		log:       log,
		metrics:   m,
	}

	if session := coord.Current(ctx); session.Valid() {
		profile := session.Profile.Clone()
		mgr.state = State{Phase: PhaseAuthenticated, Profile: &profile, Version: 1}
		log.Infow("restored stored session", "username", profile.Username, "expiresAt", session.ExpiresAt)
	}
	return mgr
}

// State returns a snapshot of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Subscribe registers fn for every state change. The returned func unsubscribes.
// fn runs on the goroutine that caused the change.
func (m *Manager) Subscribe(fn func(State)) func() {
	return m.states.subscribe(fn)
}

// OnInvalidated registers fn for forced session loss. It is not called for Logout.
func (m *Manager) OnInvalidated(fn func(models.InvalidationEvent)) func() {
	return m.invalidations.subscribe(fn)
}

// Close drops every subscriber.
func (m *Manager) Close() {
	m.states.reset()
	m.invalidations.reset()
}

// transition applies step to the current state under the lock and
// publishes the result after the lock is released.
func (m *Manager) transition(step func(s State) (State, bool)) (State, bool) {
	m.mu.Lock()
	next, changed := step(m.state)
	if changed {
		next.Version = m.state.Version + 1
		m.state = next
	}
	snapshot := m.state.clone()
	m.mu.Unlock()

	if changed {
		m.metrics.PhaseEntered(snapshot.Phase.String())
		m.states.publish(snapshot)
	}
	return snapshot, changed
}

// Login exchanges credentials for a session. It is accepted only from
// Anonymous or Failed. A failed login leaves the store empty.
func (m *Manager) Login(ctx context.Context, creds models.LoginRequest) (*models.Profile, error) {
	var rejected error
	m.transition(func(s State) (State, bool) {
		switch s.Phase {
		case PhaseAnonymous, PhaseFailed:
			return State{Phase: PhaseAuthenticating}, true
		case PhaseAuthenticated:
			rejected = ErrAlreadyAuthenticated
		default:
			rejected = ErrTransitionInProgress
		}
		return s, false
	})
	if rejected != nil {
		return nil, rejected
	}

	var resp models.TokenPairResponse
	err := m.transport.Post(ctx, transport.EndpointLogin, creds, &resp)
	var session *models.Session
	if err == nil {
		session, err = m.coord.Establish(ctx, resp)
		if errors.Is(err, errIncompleteTokenPair) {
			err = transport.NewError(transport.KindUnauthorized, 0, "Login failed")
		}
	}
	if err != nil {
		m.coord.Clear(ctx)
		reason := reasonOf(err)
		m.transition(func(State) (State, bool) {
			return State{Phase: PhaseFailed, Reason: reason}, true
		})
		m.log.Infow("login failed", "username", creds.Username, "reason", reason)
		return nil, err
	}

	profile := session.Profile.Clone()
	m.transition(func(State) (State, bool) {
		return State{Phase: PhaseAuthenticated, Profile: &profile}, true
	})
	m.log.Infow("logged in", "username", profile.Username)

	out := profile.Clone()
	return &out, nil
}

// Register creates an account without logging in. A failure is recorded
// as the state's reason only when no session is active.
func (m *Manager) Register(ctx context.Context, req models.RegisterRequest) error {
	err := m.transport.Post(ctx, transport.EndpointRegister, req, nil)
	if err == nil {
		m.log.Infow("registered account", "username", req.Username)
		return nil
	}

	reason := reasonOf(err)
	m.transition(func(s State) (State, bool) {
		if s.Phase != PhaseAnonymous && s.Phase != PhaseFailed {
			return s, false
		}
		return State{Phase: PhaseFailed, Reason: reason}, true
	})
	return err
}

// Logout tells the server to revoke the refresh token and clears the local
// session whatever the server answers. It is safe to call repeatedly.
func (m *Manager) Logout(ctx context.Context) {
	if session := m.coord.Current(ctx); session != nil && session.RefreshToken != "" {
		err := m.transport.Post(ctx, transport.EndpointLogout, models.LogoutRequest{RefreshToken: session.RefreshToken}, nil)
		if err != nil {
			m.log.Warnw("remote logout failed, clearing local session", "error", err)
		}
	}

	// Leave the authenticated phases before clearing, so a refresh that
	// lands in between sees the logout and discards its pair.
	m.transition(func(s State) (State, bool) {
		if s.Phase == PhaseAnonymous && s.Reason == "" {
			return s, false
		}
		return State{Phase: PhaseAnonymous}, true
	})
	m.coord.Clear(ctx)
}

// Refresh renews the session through the coordinator. On failure the
// session is invalidated and the invalidation signal raised once.
func (m *Manager) Refresh(ctx context.Context) (*models.Session, error) {
	m.transition(func(s State) (State, bool) {
		if s.Phase != PhaseAuthenticated {
			return s, false
		}
		next := s
		next.Phase = PhaseRefreshing
		return next, true
	})

	session, err := m.coord.Refresh(ctx)
	if err == ErrSessionSuperseded {
		// The session this refresh started from is gone; whatever replaced it stays.
		m.log.Infow("refresh superseded by logout or login")
		return nil, err
	}
	if err != nil {
		m.invalidate(reasonOf(err))
		return nil, err
	}

	alive := false
	m.transition(func(s State) (State, bool) {
		if !s.IsAuthenticated() {
			return s, false
		}
		alive = true
		if s.Phase == PhaseAuthenticated {
			return s, false
		}
		profile := session.Profile.Clone()
		return State{Phase: PhaseAuthenticated, Profile: &profile}, true
	})
	if !alive {
		// The session ended while the refresh was outstanding.
		// Logout clears the store after leaving the authenticated phases,
		// so the saved pair is already gone or about to be.
		m.log.Infow("discarding refreshed session after logout")
		return nil, ErrSessionSuperseded
	}
	return session, nil
}

// RefreshDue reports whether the stored session should be refreshed now.
func (m *Manager) RefreshDue(ctx context.Context) bool {
	return m.coord.RefreshDue(ctx)
}

// RefreshInFlight reports whether a refresh is outstanding.
func (m *Manager) RefreshInFlight() bool {
	return m.coord.InFlight()
}

// Invalidate clears the session because the server no longer accepts it.
func (m *Manager) Invalidate(ctx context.Context, reason string) {
	m.invalidate(reason)
	m.coord.Clear(ctx)
}

// invalidate publishes the signal only when a session was active, so
// concurrent failures for the same session raise it once.
func (m *Manager) invalidate(reason string) {
	var lost *models.Profile
	_, fired := m.transition(func(s State) (State, bool) {
		if !s.IsAuthenticated() {
			return s, false
		}
		lost = s.Profile
		return State{Phase: PhaseAnonymous, Reason: reason}, true
	})
	if !fired {
		return
	}

	event := models.InvalidationEvent{
		ID:         uuid.NewString(),
		Reason:     reason,
		OccurredAt: m.now().UTC(),
	}
	if lost != nil {
		event.Username = lost.Username
	}
	m.metrics.SessionInvalidated()
	m.log.Warnw("session invalidated", "username", event.Username, "reason", reason)
	m.invalidations.publish(event)
}

// ClearError drops the failure reason without changing phase.
func (m *Manager) ClearError() {
	m.transition(func(s State) (State, bool) {
		if s.Reason == "" {
			return s, false
		}
		s.Reason = ""
		return s, true
	})
}

func (m *Manager) HasRole(role models.Role) bool {
	return m.State().hasAny(role)
}

func (m *Manager) HasAnyRole(roles ...models.Role) bool {
	return m.State().hasAny(roles...)
}

func (m *Manager) HasAllRoles(roles ...models.Role) bool {
	return m.State().hasAll(roles...)
}

// Authorize decides access to a resource guarded by roles. With no roles
// any authenticated user is allowed. requireAll switches from any-of to all-of.
func (m *Manager) Authorize(requireAll bool, roles ...models.Role) Decision {
	s := m.State()
	switch {
	case s.IsLoading() || s.IsRefreshing():
		return DecisionPending
	case !s.IsAuthenticated():
		return DecisionLoginRequired
	case len(roles) == 0:
		return DecisionAllowed
	}

	ok := s.hasAny(roles...)
	if requireAll {
		ok = s.hasAll(roles...)
	}
	if !ok {
		return DecisionForbidden
	}
	return DecisionAllowed
}

func (s State) hasAny(roles ...models.Role) bool {
	if !s.IsAuthenticated() || s.Profile == nil {
		return false
	}
	for _, r := range roles {
		if s.Profile.HasRole(r) {
			return true
		}
	}
	return false
}

func (s State) hasAll(roles ...models.Role) bool {
	if !s.IsAuthenticated() || s.Profile == nil {
		return false
	}
	for _, r := range roles {
		if !s.Profile.HasRole(r) {
			return false
		}
	}
	return true
}

func reasonOf(err error) string {
	var terr *transport.Error
	if errors.As(err, &terr) && terr.Message != "" {
		return terr.Message
	}
	return err.Error()
}
