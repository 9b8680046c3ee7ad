package main

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/util"
)

const defaultReceiverAddr = ":9090"

// A development receiver for session invalidation webhooks.
func main() {
	logger := util.NewZapLogger()

	addr := os.Getenv("WEBHOOK_RECEIVER_ADDR")
	if addr == "" {
		addr = defaultReceiverAddr
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.POST("/", func(c echo.Context) error {
		var event models.InvalidationEvent
		if err := c.Bind(&event); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Error parsing JSON")
		}

		logger.Infow("Received webhook",
			"id", event.ID,
			"username", event.Username,
			"reason", event.Reason,
			"occurredAt", event.OccurredAt,
		)

		return c.String(http.StatusOK, "Webhook received!")
	})

	logger.Infof("Webhook receiver listening on %s", addr)
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
