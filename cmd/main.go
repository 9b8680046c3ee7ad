package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rryowa/sessiongate/internal/metrics"
	"github.com/rryowa/sessiongate/internal/migrations"
	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/session"
	"github.com/rryowa/sessiongate/internal/storage"
	"github.com/rryowa/sessiongate/internal/storage/memory"
	"github.com/rryowa/sessiongate/internal/storage/postgres"
	"github.com/rryowa/sessiongate/internal/storage/redis"
	"github.com/rryowa/sessiongate/internal/transport"
	"github.com/rryowa/sessiongate/internal/util"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logger := util.NewZapLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := util.NewClientConfig()
	if err != nil {
		logger.Fatalw("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(cfg.Store, logger)
	if err != nil {
		logger.Fatalw("failed to open credential store", "backend", cfg.Store.Backend, "error", err)
	}
	defer cleanup()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := transport.NewClient(cfg.BaseURL, cfg.RequestTimeout, store, logger, transport.WithAPIKey(cfg.APIKey))
	coord := session.NewCoordinator(store, client, session.CoordinatorConfig{
		TokenLifetime: cfg.TokenLifetime,
		Lookahead:     cfg.RefreshLookahead,
	}, logger, m)
	manager := session.NewManager(ctx, coord, client, logger, m)
	defer manager.Close()

	gateway := session.NewGateway(manager, client, logger, m)
	users := session.NewUserService(gateway)
	scheduler := session.NewScheduler(manager, cfg.RefreshInterval, logger)

	webhook := session.NewWebhookService(logger, cfg.WebhookURL)
	webhook.Attach(manager)
	defer webhook.Wait()

	manager.Subscribe(func(s session.State) {
		logger.Infow("session state changed", "phase", s.Phase.String(), "reason", s.Reason)
	})

	if !manager.State().IsAuthenticated() && cfg.Username != "" {
		if _, err := manager.Login(ctx, models.LoginRequest{Username: cfg.Username, Password: cfg.Password}); err != nil {
			logger.Errorw("initial login failed", "username", cfg.Username, "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return probe(gctx, users, manager, cfg.ProbeInterval, logger) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveControl(gctx, cfg.MetricsAddr, reg, manager, scheduler, logger) })
	}

	if err := g.Wait(); err != nil {
		logger.Errorw("session daemon stopped with error", "error", err)
	}
	logger.Info("session daemon stopped")
}

func openStore(cfg util.StoreConfig, logger *zap.SugaredLogger) (storage.CredentialStore, func(), error) {
	switch cfg.Backend {
	case util.StoreRedis:
		client, cleanup, err := util.NewRedisClient(logger, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewCredentialStore(client, cfg.Namespace), cleanup, nil
	case util.StorePostgres:
		db, cleanup, err := util.NewDBConnection(logger, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunMigrations(db, logger); err != nil {
			cleanup()
			return nil, nil, err
		}
		return postgres.NewCredentialStore(db, cfg.Namespace), cleanup, nil
	default:
		return memory.NewCredentialStore(), func() {}, nil
	}
}

// probe periodically reads the profile through the gateway, so an expired
// or revoked session is noticed even when nothing else calls the API.
func probe(ctx context.Context, users *session.UserService, manager *session.Manager, interval time.Duration, logger *zap.SugaredLogger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !manager.State().IsAuthenticated() {
				continue
			}
			profile, err := users.CurrentProfile(ctx)
			if err != nil {
				logger.Warnw("profile probe failed", "error", err)
				continue
			}
			logger.Debugw("profile probe ok", "username", profile.Username)
		}
	}
}

type stateResponse struct {
	Phase     string          `json:"phase"`
	Reason    string          `json:"reason,omitempty"`
	Profile   *models.Profile `json:"profile,omitempty"`
	Refreshes bool            `json:"refreshInFlight"`
}

// serveControl exposes metrics and a small control surface for the host application.
func serveControl(ctx context.Context, addr string, reg *prometheus.Registry, manager *session.Manager, scheduler *session.Scheduler, logger *zap.SugaredLogger) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	e.GET("/session", func(c echo.Context) error {
		s := manager.State()
		return c.JSON(http.StatusOK, stateResponse{
			Phase:     s.Phase.String(),
			Reason:    s.Reason,
			Profile:   s.Profile,
			Refreshes: manager.RefreshInFlight(),
		})
	})
	e.POST("/session/focus", func(c echo.Context) error {
		scheduler.Focus()
		return c.NoContent(http.StatusAccepted)
	})
	e.POST("/session/logout", func(c echo.Context) error {
		manager.Logout(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("control server shutdown", "error", err)
		}
	}()

	logger.Infow("control server listening", "addr", addr)
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
