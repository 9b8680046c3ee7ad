package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/models"
)

const (
	defaultHTTPStatusThreshold = 300
	webhookTimeout             = 10 * time.Second
)

// WebhookService forwards invalidation events to an HTTP endpoint.
type WebhookService struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
	wg         sync.WaitGroup
}

func NewWebhookService(log *zap.SugaredLogger, webhookURL string) *WebhookService {
	return &WebhookService{
		client:     &http.Client{Timeout: webhookTimeout},
		log:        log,
		webhookURL: webhookURL,
	}
}

// Attach subscribes the service to m's invalidation signal.
func (s *WebhookService) Attach(m *Manager) func() {
	return m.OnInvalidated(s.NotifyInvalidated)
}

// NotifyInvalidated posts event in the background. Delivery failures are only logged.
func (s *WebhookService) NotifyInvalidated(event models.InvalidationEvent) {
	if s.webhookURL == "" {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		payload, err := json.Marshal(event)
		if err != nil {
			s.log.Errorw("failed to marshal webhook payload", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			s.log.Errorw("failed to create webhook request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Errorw("failed to send webhook", "event", event.ID, "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= defaultHTTPStatusThreshold {
			s.log.Warnw("webhook returned non-2xx status", "event", event.ID, "status", resp.StatusCode)
		}
	}()
}

// Wait blocks until every pending delivery has finished.
func (s *WebhookService) Wait() {
	s.wg.Wait()
}
