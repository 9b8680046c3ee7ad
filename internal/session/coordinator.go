package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/metrics"
	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
	"github.com/rryowa/sessiongate/internal/transport"
)

const refreshKey = "refresh"

// ErrNoRefreshToken is returned by Refresh when the store holds no refresh token. It is terminal.
var ErrNoRefreshToken = transport.NewError(transport.KindUnauthorized, http.StatusUnauthorized, "No refresh token available")

// ErrSessionSuperseded is returned by Refresh when the session it started
// from was cleared or replaced before the new pair arrived. The pair is dropped.
var ErrSessionSuperseded = transport.NewError(transport.KindUnauthorized, 0, "Session ended during refresh")

var errIncompleteTokenPair = errors.New("response carried no token pair")

type CoordinatorConfig struct {
	TokenLifetime time.Duration
	Lookahead     time.Duration
}

// Coordinator owns every write of credentials to the store and guarantees
// that at most one refresh call is outstanding at any time.
type Coordinator struct {
	store     storage.CredentialStore
	transport Transport
	lifetime  time.Duration
	lookahead time.Duration
	now       func() time.Time
	flights   flightGroup
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics

	// mu serializes store writes; generation counts them, so a refresh can
	// tell whether the session it read is still the stored one.
	mu         sync.Mutex
	generation uint64
}

func NewCoordinator(store storage.CredentialStore, t Transport, cfg CoordinatorConfig, log *zap.SugaredLogger, m *metrics.Metrics) *Coordinator {
	if cfg.TokenLifetime <= 0 {
		cfg.TokenLifetime = DefaultTokenLifetime
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	return &Coordinator{
		store:     store,
		transport: t,
		lifetime:  cfg.TokenLifetime,
		lookahead: cfg.Lookahead,
		now:       time.Now,
		log:       log,
		metrics:   m,
	}
}

// Refresh exchanges the stored refresh token for a new pair. Concurrent
// callers share one network call and observe the same outcome. Every
// failure clears the store and is reported as an Unauthorized *transport.Error.
// Once started the call runs to completion even if ctx is cancelled.
func (c *Coordinator) Refresh(ctx context.Context) (*models.Session, error) {
	detached := context.WithoutCancel(ctx)
	res, joined := c.flights.do(refreshKey, func() flightResult {
		return c.refresh(detached)
	})
	if joined {
		c.metrics.RefreshCompleted(metrics.OutcomeJoined)
	}
	if errors.Is(res.err, errFlightPanicked) {
		return nil, refreshFailed(res.err)
	}
	if res.err != nil {
		return nil, res.err
	}
	return cloneSession(res.session), nil
}

// InFlight reports whether a refresh is currently outstanding.
func (c *Coordinator) InFlight() bool {
	return c.flights.inFlight(refreshKey)
}

// RefreshDue reports whether the stored session should be refreshed now.
func (c *Coordinator) RefreshDue(ctx context.Context) bool {
	return IsDue(c.Current(ctx), c.now(), c.lookahead)
}

// Current returns the stored session, or nil when none is stored or the store is unreadable.
func (c *Coordinator) Current(ctx context.Context) *models.Session {
	session, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warnw("credential store unavailable, treating as no session", "error", err)
		return nil
	}
	return session
}

// Establish persists the pair returned by a successful login.
func (c *Coordinator) Establish(ctx context.Context, resp models.TokenPairResponse) (*models.Session, error) {
	if resp.Bearer() == "" || resp.RefreshToken == "" {
		return nil, errIncompleteTokenPair
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(ctx, resp)
}

// Clear removes the stored session. Failures are logged.
func (c *Coordinator) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear(ctx)
}

// save and clear require c.mu.
func (c *Coordinator) save(ctx context.Context, resp models.TokenPairResponse) (*models.Session, error) {
	session := resp.Session(c.now(), c.lifetime)
	c.generation++
	if err := c.store.Save(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Coordinator) clear(ctx context.Context) {
	c.generation++
	if err := c.store.Clear(ctx); err != nil {
		c.log.Errorw("failed to clear credential store", "error", err)
	}
}

// snapshot reads the stored session together with the write generation.
// Without a refresh token the store is cleared under the same lock, so a
// login landing concurrently is never wiped.
func (c *Coordinator) snapshot(ctx context.Context) (*models.Session, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.Current(ctx)
	if current == nil || current.RefreshToken == "" {
		c.clear(ctx)
		return nil, c.generation, false
	}
	return current, c.generation, true
}

func (c *Coordinator) refresh(ctx context.Context) flightResult {
	current, generation, ok := c.snapshot(ctx)
	if !ok {
		c.metrics.RefreshCompleted(metrics.OutcomeFailure)
		c.log.Infow("refresh requested without a refresh token")
		return flightResult{err: ErrNoRefreshToken}
	}

	var resp models.TokenPairResponse
	err := c.transport.Post(ctx, transport.EndpointRefresh, models.RefreshRequest{RefreshToken: current.RefreshToken}, &resp)
	if err == nil && (resp.Bearer() == "" || resp.RefreshToken == "") {
		err = errIncompleteTokenPair
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		c.metrics.RefreshCompleted(metrics.OutcomeFailure)
		c.log.Infow("dropping refresh result for a session that was cleared or replaced", "error", err)
		return flightResult{err: ErrSessionSuperseded}
	}
	if err != nil {
		return c.fail(ctx, err)
	}

	next, err := c.save(ctx, resp)
	if err != nil {
		return c.fail(ctx, err)
	}

	c.metrics.RefreshCompleted(metrics.OutcomeSuccess)
	c.log.Infow("session refreshed", "username", next.Profile.Username, "expiresAt", next.ExpiresAt)
	return flightResult{session: next}
}

// fail requires c.mu.
func (c *Coordinator) fail(ctx context.Context, cause error) flightResult {
	c.clear(ctx)
	c.metrics.RefreshCompleted(metrics.OutcomeFailure)
	c.log.Warnw("session refresh failed", "error", cause)
	return flightResult{err: refreshFailed(cause)}
}

// refreshFailed passes an Unauthorized transport error through and turns
// anything else into one, keeping the cause in Details.
func refreshFailed(cause error) error {
	var terr *transport.Error
	if errors.As(cause, &terr) && terr.Kind == transport.KindUnauthorized {
		return terr
	}
	e := transport.NewError(transport.KindUnauthorized, http.StatusUnauthorized, "Token refresh failed")
	e.Details = map[string]any{"cause": cause.Error()}
	return e
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Profile = s.Profile.Clone()
	return &out
}
