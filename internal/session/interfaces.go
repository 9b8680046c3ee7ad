package session

import (
	"context"
	"net/url"

	"github.com/rryowa/sessiongate/internal/transport"
)

// Transport is the request surface the session layer needs; *transport.Client implements it.
type Transport interface {
	Send(ctx context.Context, req transport.Request, out any) error
	Get(ctx context.Context, endpoint string, query url.Values, out any) error
	Post(ctx context.Context, endpoint string, body, out any) error
	Put(ctx context.Context, endpoint string, query url.Values, body, out any) error
	Delete(ctx context.Context, endpoint string, out any) error
}
