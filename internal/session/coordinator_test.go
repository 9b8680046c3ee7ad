package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
	"github.com/rryowa/sessiongate/internal/transport"
)

func refreshConcurrently(coord *Coordinator, n int) ([]*models.Session, []error) {
	sessions := make([]*models.Session, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = coord.Refresh(context.Background())
		}(i)
	}
	wg.Wait()
	return sessions, errs
}

func TestCoordinatorSingleFlight(t *testing.T) {
	const callers = 10
	f := newFixture(t, withStoredSession(time.Hour))
	gate := make(chan struct{})
	f.api.refreshGate = gate

	done := make(chan struct{})
	var sessions []*models.Session
	var errs []error
	go func() {
		sessions, errs = refreshConcurrently(f.coord, callers)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return f.coord.flights.waiters(refreshKey) == callers
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.coord.InFlight())

	close(gate)
	<-done

	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
	assert.False(t, f.coord.InFlight())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-2", sessions[i].AccessToken)
		assert.Equal(t, "refresh-2", sessions[i].RefreshToken)
	}

	stored := f.stored(t)
	require.NotNil(t, stored)
	assert.Equal(t, "access-2", stored.AccessToken)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenLifetime), stored.ExpiresAt, time.Minute)
}

func TestCoordinatorSingleFlightFailure(t *testing.T) {
	const callers = 5
	f := newFixture(t, withStoredSession(time.Hour))
	gate := make(chan struct{})
	f.api.refreshGate = gate
	f.api.refreshStatus = http.StatusUnauthorized

	done := make(chan struct{})
	var errs []error
	go func() {
		_, errs = refreshConcurrently(f.coord, callers)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return f.coord.flights.waiters(refreshKey) == callers
	}, 2*time.Second, 5*time.Millisecond)
	close(gate)
	<-done

	assert.EqualValues(t, 1, f.api.refreshCalls.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, transport.ErrUnauthorized)
		assert.Same(t, errs[0], err)
	}
	assert.Nil(t, f.stored(t))
}

func TestCoordinatorSequentialRefreshes(t *testing.T) {
	f := newFixture(t, withStoredSession(time.Hour))

	first, err := f.coord.Refresh(context.Background())
	require.NoError(t, err)
	second, err := f.coord.Refresh(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.api.refreshCalls.Load())
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
}

func TestCoordinatorNoRefreshToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Refresh(context.Background())
	assert.Same(t, ErrNoRefreshToken, err)
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.EqualValues(t, 0, f.api.refreshCalls.Load())
}

func TestCoordinatorServerErrorBecomesUnauthorized(t *testing.T) {
	f := newFixture(t, withStoredSession(time.Hour))
	f.api.refreshStatus = http.StatusInternalServerError

	_, err := f.coord.Refresh(context.Background())

	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, transport.KindUnauthorized, terr.Kind)
	assert.Contains(t, terr.Details["cause"], "server error")
	assert.Nil(t, f.stored(t))
}

func TestCoordinatorRunsToCompletionAfterCancel(t *testing.T) {
	f := newFixture(t, withStoredSession(time.Hour))
	gate := make(chan struct{})
	f.api.refreshGate = gate

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Refresh(ctx)
		done <- err
	}()

	require.Eventually(t, f.coord.InFlight, 2*time.Second, 5*time.Millisecond)
	cancel()
	close(gate)

	require.NoError(t, <-done)
	assert.Equal(t, "access-2", f.stored(t).AccessToken)
}

type failingSaveStore struct {
	storage.CredentialStore
	cleared bool
}

func (s *failingSaveStore) Save(context.Context, models.Session) error {
	return storage.ErrStorageUnavailable
}

func (s *failingSaveStore) Clear(ctx context.Context) error {
	s.cleared = true
	return s.CredentialStore.Clear(ctx)
}

func TestCoordinatorSaveFailure(t *testing.T) {
	f := newFixture(t, withStoredSession(time.Hour))
	store := &failingSaveStore{CredentialStore: f.store}
	coord := NewCoordinator(store, f.client, CoordinatorConfig{}, zap.NewNop().Sugar(), nil)

	_, err := coord.Refresh(context.Background())
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.True(t, store.cleared)
}

// panickingTransport blocks refresh calls until release is closed, then panics.
type panickingTransport struct {
	*transport.Client
	release chan struct{}
}

func (p *panickingTransport) Post(ctx context.Context, endpoint string, body, out any) error {
	if endpoint == transport.EndpointRefresh {
		<-p.release
		panic("decoder exploded")
	}
	return p.Client.Post(ctx, endpoint, body, out)
}

func TestCoordinatorJoinerOfPanickedRefresh(t *testing.T) {
	f := newFixture(t, withStoredSession(time.Hour))
	tr := &panickingTransport{Client: f.client, release: make(chan struct{})}
	coord := NewCoordinator(f.store, tr, CoordinatorConfig{}, zap.NewNop().Sugar(), nil)

	leader := make(chan any, 1)
	go func() {
		defer func() { leader <- recover() }()
		_, _ = coord.Refresh(context.Background())
	}()
	require.Eventually(t, coord.InFlight, 2*time.Second, 5*time.Millisecond)

	joiner := make(chan error, 1)
	go func() {
		_, err := coord.Refresh(context.Background())
		joiner <- err
	}()
	require.Eventually(t, func() bool {
		return coord.flights.waiters(refreshKey) == 2
	}, 2*time.Second, 5*time.Millisecond)
	close(tr.release)

	assert.NotNil(t, <-leader)
	err := <-joiner
	require.ErrorIs(t, err, transport.ErrUnauthorized)
	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "Token refresh failed", terr.Message)
	assert.Equal(t, errFlightPanicked.Error(), terr.Details["cause"])
	assert.False(t, coord.InFlight())
}

func TestCoordinatorSupersededRefreshKeepsNewSession(t *testing.T) {
	f := newFixture(t, withStoredSession(time.Hour))
	gate := make(chan struct{})
	f.api.refreshGate = gate
	f.api.acceptStaleRefresh = true

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Refresh(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return f.api.refreshCalls.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	f.coord.Clear(context.Background())
	_, err := f.coord.Establish(context.Background(), models.TokenPairResponse{AccessToken: "fresh-a", RefreshToken: "fresh-r", Username: "bob"})
	require.NoError(t, err)

	close(gate)
	assert.Same(t, ErrSessionSuperseded, <-done)
	stored := f.stored(t)
	require.NotNil(t, stored)
	assert.Equal(t, "fresh-a", stored.AccessToken)
	assert.Equal(t, "fresh-r", stored.RefreshToken)
	assert.Equal(t, "bob", stored.Profile.Username)
}

func TestCoordinatorRefreshDue(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn time.Duration
		want      bool
	}{
		{"far from expiry", time.Hour, false},
		{"outside lookahead", 6 * time.Minute, false},
		{"inside lookahead", 4 * time.Minute, true},
		{"already expired", -time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, withStoredSession(tt.expiresIn))
			assert.Equal(t, tt.want, f.coord.RefreshDue(context.Background()))
		})
	}

	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)
		assert.False(t, f.coord.RefreshDue(context.Background()))
	})
}

func TestCoordinatorEstablish(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Establish(context.Background(), models.TokenPairResponse{RefreshToken: "r"})
	assert.True(t, errors.Is(err, errIncompleteTokenPair))
	assert.Nil(t, f.stored(t))

	s, err := f.coord.Establish(context.Background(), models.TokenPairResponse{Token: "legacy", RefreshToken: "r", Username: "zoe"})
	require.NoError(t, err)
	assert.Equal(t, "legacy", s.AccessToken)
	assert.Equal(t, "zoe", f.stored(t).Profile.Username)
}
