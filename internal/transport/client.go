package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/sessiongate/internal/models"
)

const (
	EndpointLogin    = "/auth/login"
	EndpointRegister = "/auth/register"
	EndpointRefresh  = "/auth/refresh"
	EndpointLogout   = "/auth/logout"
	EndpointHealth   = "/health"

	defaultErrorMessage = "request failed"
)

var publicEndpoints = []string{EndpointLogin, EndpointRegister, EndpointRefresh, EndpointHealth}

// IsPublicEndpoint reports whether endpoint is reachable without a credential.
func IsPublicEndpoint(endpoint string) bool {
	for _, public := range publicEndpoints {
		if strings.HasPrefix(endpoint, public) {
			return true
		}
	}
	return false
}

// CredentialReader yields the stored session the bearer token is read from.
type CredentialReader interface {
	Load(ctx context.Context) (*models.Session, error)
}

type Request struct {
	Method   string
	Endpoint string
	Query    url.Values
	Body     any
	Header   http.Header
}

type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialReader
	apiKey  string
	log     *zap.SugaredLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sends key in the X-API-Key header of every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func NewClient(baseURL string, timeout time.Duration, creds CredentialReader, log *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send performs one request and decodes the response payload into out.
// Every failure is returned as *Error.
func (c *Client) Send(ctx context.Context, req Request, out any) error {
	target := c.baseURL + req.Endpoint
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return &Error{Kind: KindBadRequest, Message: "encode request body", cause: err}
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return &Error{Kind: KindBadRequest, Message: "build request", cause: err}
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(models.MwAPIKeyHeader, c.apiKey)
	}
	if !IsPublicEndpoint(req.Endpoint) {
		if token := c.accessToken(ctx); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warnw("request failed without response", "method", req.Method, "endpoint", req.Endpoint, "error", err)
		return networkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}

	c.log.Debugw("request", "method", req.Method, "endpoint", req.Endpoint, "status", resp.StatusCode)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return classify(resp.StatusCode, raw)
	}

	if err := decodePayload(raw, out); err != nil {
		return networkError(err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, out any) error {
	return c.Send(ctx, Request{Method: http.MethodGet, Endpoint: endpoint, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Send(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, query url.Values, body, out any) error {
	return c.Send(ctx, Request{Method: http.MethodPut, Endpoint: endpoint, Query: query, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Send(ctx, Request{Method: http.MethodDelete, Endpoint: endpoint}, out)
}

// accessToken treats an unreadable store as having no credential.
func (c *Client) accessToken(ctx context.Context) string {
	if c.creds == nil {
		return ""
	}
	session, err := c.creds.Load(ctx)
	if err != nil {
		c.log.Warnw("credential store unavailable, sending without credential", "error", err)
		return ""
	}
	if !session.Valid() {
		return ""
	}
	return session.AccessToken
}

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

// decodePayload unwraps the {success, message, data} envelope when present.
func decodePayload(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}

func classify(status int, raw []byte) *Error {
	e := &Error{
		Kind:    KindFromStatus(status),
		Status:  status,
		Message: defaultErrorMessage,
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		switch {
		case env.Message != "":
			e.Message = env.Message
		case env.Reason != "":
			e.Message = env.Reason
		}
	}

	var details map[string]any
	if err := json.Unmarshal(raw, &details); err == nil {
		e.Details = details
	}
	return e
}
