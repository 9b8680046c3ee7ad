package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rryowa/sessiongate/internal/controller"
	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/service"
	"github.com/rryowa/sessiongate/internal/util"
)

const (
	ClientIDContextKey = "client_id"
)

// APIKeyAuthMiddleware checks the X-API-Key header and stores the client id
// in the echo context. It passes everything through when keys are not required.
func APIKeyAuthMiddleware(apiKeys *service.APIKeyService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !apiKeys.Required() {
				return next(c)
			}

			apiKey := c.Request().Header.Get(models.MwAPIKeyHeader)
			if apiKey == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "API key is missing")
			}

			foundAPIKey, err := apiKeys.Validate(c.Request().Context(), apiKey)
			if err != nil {
				if errors.Is(err, service.ErrInvalidAPIKey) {
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
				}
				return echo.NewHTTPError(http.StatusInternalServerError, "Error validating API key")
			}

			c.Set(ClientIDContextKey, foundAPIKey.ClientID)

			return next(c)
		}
	}
}

// BearerAuthMiddleware resolves the bearer token and stores the caller's identity in the echo context.
func BearerAuthMiddleware(auth *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := controller.BearerToken(c.Request())
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}

			claims, err := auth.Authenticate(c.Request().Context(), token)
			if err != nil {
				return err
			}

			c.Set(models.MwUserIDKey, claims.Subject)
			c.Set(models.MwUsernameKey, claims.Username)
			c.Set(models.MwRolesKey, claims.Roles)

			return next(c)
		}
	}
}

// RequireRole rejects callers whose token does not carry role. It must run after BearerAuthMiddleware.
func RequireRole(role models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles, _ := c.Get(models.MwRolesKey).([]models.Role)
			for _, r := range roles {
				if r == role {
					return next(c)
				}
			}
			return util.NewResponseError(http.StatusForbidden, "Access denied")
		}
	}
}

func RateLimiterMiddleware(cfg *util.RateLimiterConfig) echo.MiddlewareFunc {
	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(cfg.Limit) / cfg.Interval.Seconds()),
		Burst:     cfg.Limit,
		ExpiresIn: cfg.BlockTime,
	})
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
		},
	})
}

func GetLoggerMiddlewareConfig(log *zap.SugaredLogger) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", c.Request().Method,
				"uri", v.URI,
				"status", v.Status,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
				log.Warnw("Request", fields...)
			} else {
				log.Infow("Request", fields...)
			}
			return nil
		},
	}
}
