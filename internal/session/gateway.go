package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/metrics"
	"github.com/rryowa/sessiongate/internal/transport"
)

// Gateway wraps authenticated requests with the refresh-and-retry protocol.
type Gateway struct {
	sessions  *Manager
	transport Transport
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
}

func NewGateway(sessions *Manager, t Transport, log *zap.SugaredLogger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		sessions:  sessions,
		transport: t,
		log:       log,
		metrics:   m,
	}
}

// Call runs fn as an authenticated operation:
//
//  1. a due session is refreshed first; if that fails fn is not called;
//  2. an Unauthorized result with no refresh outstanding triggers one
//     refresh and one retry;
//  3. a retry that is still Unauthorized ends the session.
//
// Errors of any other kind are returned unchanged.
func (g *Gateway) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.sessions.RefreshDue(ctx) {
		if _, err := g.sessions.Refresh(ctx); err != nil {
			return err
		}
	}

	err := fn(ctx)
	if !errors.Is(err, transport.ErrUnauthorized) {
		return err
	}
	if g.sessions.RefreshInFlight() {
		return err
	}

	g.log.Debugw("request unauthorized, refreshing and retrying once")
	g.metrics.RequestRetried()
	if _, rerr := g.sessions.Refresh(ctx); rerr != nil {
		return rerr
	}

	err = fn(ctx)
	if errors.Is(err, transport.ErrUnauthorized) {
		g.sessions.Invalidate(ctx, reasonOf(err))
	}
	return err
}

// Do is Call for operations that produce a value.
func Do[T any](ctx context.Context, g *Gateway, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Call(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Send goes through Call for protected endpoints while a session exists,
// and straight to the transport otherwise.
func (g *Gateway) Send(ctx context.Context, req transport.Request, out any) error {
	send := func(ctx context.Context) error {
		return g.transport.Send(ctx, req, out)
	}
	if transport.IsPublicEndpoint(req.Endpoint) || !g.sessions.State().IsAuthenticated() {
		return send(ctx)
	}
	return g.Call(ctx, send)
}

func (g *Gateway) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	return g.Send(ctx, transport.Request{Method: http.MethodGet, Endpoint: endpoint, Query: query}, out)
}

func (g *Gateway) Post(ctx context.Context, endpoint string, body, out any) error {
	return g.Send(ctx, transport.Request{Method: http.MethodPost, Endpoint: endpoint, Body: body}, out)
}

func (g *Gateway) Put(ctx context.Context, endpoint string, query url.Values, body, out any) error {
	return g.Send(ctx, transport.Request{Method: http.MethodPut, Endpoint: endpoint, Query: query, Body: body}, out)
}

func (g *Gateway) Delete(ctx context.Context, endpoint string, out any) error {
	return g.Send(ctx, transport.Request{Method: http.MethodDelete, Endpoint: endpoint}, out)
}
