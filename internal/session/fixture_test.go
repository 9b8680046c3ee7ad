package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/metrics"
	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage/memory"
	"github.com/rryowa/sessiongate/internal/transport"
)

// fakeAuthAPI is a scriptable stand-in for the remote auth API.
type fakeAuthAPI struct {
	mu       sync.Mutex
	issued   int
	access   string
	refresh  string
	roles    []models.Role
	username string

	// refreshGate, when set, holds every refresh request until it is closed.
	refreshGate   chan struct{}
	refreshStatus int
	loginStatus   int
	logoutStatus  int
	registerFail  int
	// protectedStatus, when set, is returned by every protected endpoint.
	protectedStatus int
	// acceptStaleRefresh makes refresh succeed for any refresh token.
	acceptStaleRefresh bool

	refreshCalls   atomic.Int32
	refreshServed  atomic.Int32
	logoutCalls    atomic.Int32
	protectedCalls atomic.Int32
}

func newFakeAuthAPI() *fakeAuthAPI {
	return &fakeAuthAPI{
		username: "alice",
		roles:    []models.Role{models.RoleUser},
	}
}

func (f *fakeAuthAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if f.loginStatus != 0 {
			writeFailure(w, f.loginStatus, "Invalid username or password")
			return
		}
		writeSuccess(w, f.issue())
	})
	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		if f.registerFail != 0 {
			writeFailure(w, f.registerFail, "Username is already taken")
			return
		}
		writeSuccess(w, nil)
	})
	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if gate := f.gate(); gate != nil {
			<-gate
		}
		if f.refreshStatus != 0 {
			writeFailure(w, f.refreshStatus, "Invalid refresh token")
			return
		}

		var req models.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		current := f.refresh
		f.mu.Unlock()
		if req.RefreshToken != current && !f.acceptStaleRefresh {
			writeFailure(w, http.StatusUnauthorized, "Invalid refresh token")
			f.refreshServed.Add(1)
			return
		}
		writeSuccess(w, f.issue())
		f.refreshServed.Add(1)
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		if f.logoutStatus != 0 {
			writeFailure(w, f.logoutStatus, "logout failed")
			return
		}
		writeSuccess(w, nil)
	})
	mux.HandleFunc("GET /api/v1/users/profile", func(w http.ResponseWriter, r *http.Request) {
		f.protectedCalls.Add(1)
		if f.protectedStatus != 0 {
			writeFailure(w, f.protectedStatus, "Token has expired")
			return
		}
		f.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+f.access
		user := models.User{ID: "u-1", Username: f.username, Roles: f.roles, Active: true}
		f.mu.Unlock()
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "Token has expired")
			return
		}
		writeSuccess(w, user)
	})
	return mux
}

func (f *fakeAuthAPI) gate() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshGate
}

func (f *fakeAuthAPI) issue() models.TokenPairResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	f.access = fmt.Sprintf("access-%d", f.issued)
	f.refresh = fmt.Sprintf("refresh-%d", f.issued)
	return models.TokenPairResponse{
		AccessToken:  f.access,
		RefreshToken: f.refresh,
		Username:     f.username,
		Email:        f.username + "@example.com",
		Roles:        f.roles,
	}
}

// switchUser makes subsequent logins and refreshes issue tokens for username.
func (f *fakeAuthAPI) switchUser(username string, roles ...models.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.username = username
	f.roles = roles
}

// revokeAccess makes the server reject the current access token.
func (f *fakeAuthAPI) revokeAccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = "revoked"
}

func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(models.Envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.Envelope{Success: false, Message: message})
}

type fixture struct {
	api     *fakeAuthAPI
	store   *memory.CredentialStore
	client  *transport.Client
	coord   *Coordinator
	manager *Manager
	gateway *Gateway
	events  *eventRecorder
	metrics *metrics.Metrics
}

type fixtureOption func(f *fixture)

// withStoredSession seeds the credential store before the manager bootstraps.
func withStoredSession(expiresIn time.Duration) fixtureOption {
	return func(f *fixture) {
		pair := f.api.issue()
		session := pair.Session(time.Now(), expiresIn)
		if err := f.store.Save(context.Background(), session); err != nil {
			panic(err)
		}
	}
}

func withMetrics(m *metrics.Metrics) fixtureOption {
	return func(f *fixture) { f.metrics = m }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()

	api := newFakeAuthAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	f := &fixture{api: api, store: memory.NewCredentialStore()}
	for _, opt := range opts {
		opt(f)
	}

	f.client = transport.NewClient(srv.URL+"/api/v1", 5*time.Second, f.store, log)
	f.coord = NewCoordinator(f.store, f.client, CoordinatorConfig{}, log, f.metrics)
	f.manager = NewManager(context.Background(), f.coord, f.client, log, f.metrics)
	f.gateway = NewGateway(f.manager, f.client, log, f.metrics)
	f.events = recordEvents(f.manager)
	t.Cleanup(f.manager.Close)
	return f
}

func (f *fixture) stored(t *testing.T) *models.Session {
	t.Helper()
	s, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return s
}

type eventRecorder struct {
	mu            sync.Mutex
	states        []State
	invalidations []models.InvalidationEvent
}

func recordEvents(m *Manager) *eventRecorder {
	r := &eventRecorder{}
	m.Subscribe(func(s State) {
		r.mu.Lock()
		r.states = append(r.states, s)
		r.mu.Unlock()
	})
	m.OnInvalidated(func(e models.InvalidationEvent) {
		r.mu.Lock()
		r.invalidations = append(r.invalidations, e)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.Phase)
	}
	return out
}

func (r *eventRecorder) invalidationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.invalidations)
}
