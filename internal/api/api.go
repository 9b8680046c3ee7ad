package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	middleware "github.com/oapi-codegen/echo-middleware"
	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/controller"
	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/service"
	"github.com/rryowa/sessiongate/internal/util"
)

const (
	BasePath        = "/api/v1"
	shutdownTimeout = 5 * time.Second
)

type API struct {
	server          *echo.Echo
	log             *zap.SugaredLogger
	gracefulTimeout time.Duration
}

// NewAPI builds the echo server with every route and middleware mounted.
func NewAPI(
	c *controller.Controller,
	authService *service.AuthService,
	apiKeys *service.APIKeyService,
	sc *util.ServerConfig,
	rl *util.RateLimiterConfig,
	l *zap.SugaredLogger,
) (*API, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.Addr = sc.ServerAddr
	e.Server.WriteTimeout = sc.WriteTimeout
	e.Server.ReadTimeout = sc.ReadTimeout
	e.Server.IdleTimeout = sc.IdleTimeout
	e.HTTPErrorHandler = ErrorHandler(l)

	swagger, err := controller.GetSwagger()
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI specification: %w", err)
	}
	swagger.Servers = nil

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestLoggerWithConfig(GetLoggerMiddlewareConfig(l)))
	if rl != nil {
		e.Use(RateLimiterMiddleware(rl))
	}
	e.Use(APIKeyAuthMiddleware(apiKeys))

	g := e.Group(BasePath, middleware.OapiRequestValidator(swagger))
	controller.RegisterHandlers(g, c, BearerAuthMiddleware(authService), RequireRole(models.RoleAdmin))

	return &API{
		server:          e,
		log:             l,
		gracefulTimeout: sc.GracefulTimeout,
	}, nil
}

// Handler exposes the router, for httptest.
func (a *API) Handler() http.Handler {
	return a.server
}

// Run serves until SIGINT, SIGTERM or ctx cancellation, then shuts down gracefully.
func (a *API) Run(ctxBackground context.Context) {
	ctx, stop := signal.NotifyContext(ctxBackground, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.ListenGracefulShutdown(ctx)
}

func (a *API) ListenGracefulShutdown(ctx context.Context) {
	go func() {
		err := a.server.Start(a.server.Server.Addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()
	a.log.Infof("Listening on: %s", a.server.Server.Addr)

	<-ctx.Done()
	a.log.Info("Shutting down server...")

	timeout := a.gracefulTimeout
	if timeout <= 0 {
		timeout = shutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Errorf("shutdown: %v", err)
		return
	}
	a.log.Info("server shutdown completed")
}
