// Package transport sends signed requests to the service and maps its
// responses onto the apierr taxonomy.
package transport

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattjoyce/launchkey/internal/apierr"
	"github.com/mattjoyce/launchkey/internal/envelope"
	"github.com/mattjoyce/launchkey/internal/keys"
	"github.com/mattjoyce/launchkey/internal/request"
)

// API paths.
const (
	PathAuths = "/v1/auths"
	PathPoll  = "/v1/poll"
	PathLogs  = "/v1/logs"
	PathUsers = "/v1/users"
	PathPing  = "/v1/ping"
)

// Client issues service calls. It holds no mutable state and is safe for
// concurrent use. Requests are never retried.
type Client struct {
	sender  Sender
	builder *request.Builder
	keys    *keys.Material
	appKey  string
	random  io.Reader
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the clock used to stamp secret keys.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRandom overrides the entropy source used to encrypt secret keys.
func WithRandom(r io.Reader) Option {
	return func(c *Client) { c.random = r }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(sender Sender, builder *request.Builder, km *keys.Material, appKey string, opts ...Option) *Client {
	c := &Client{
		sender:  sender,
		builder: builder,
		keys:    km,
		appKey:  appKey,
		random:  rand.Reader,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Auths starts an auth request and returns its id.
func (c *Client) Auths(ctx context.Context, req AuthsRequest) (string, error) {
	body, err := c.do(ctx, "auths", http.MethodPost, PathAuths, request.Options{
		Username:   req.Username,
		Session:    req.Session,
		UserPushID: req.UserPushID,
	})
	if err != nil {
		return "", err
	}

	var out authsResponse
	if err := decodeBody(body, &out); err != nil {
		return "", err
	}
	if out.AuthRequest == "" {
		return "", apierr.InvalidResponse("Error parsing response body", errors.New("missing auth_request"))
	}
	c.logger.Debug("auth request created", "auth_request", out.AuthRequest)
	return out.AuthRequest, nil
}

// Poll fetches the state of an auth request. A pending request surfaces as
// an InvalidRequest error carrying the service's message code.
func (c *Client) Poll(ctx context.Context, authRequestID string) (*PollResponse, error) {
	body, err := c.do(ctx, "poll", http.MethodGet, PathPoll, request.Options{
		Extra: request.Params{{Name: "auth_request", Value: authRequestID}},
	})
	if err != nil {
		return nil, err
	}

	var out PollResponse
	if err := decodeBody(body, &out); err != nil {
		return nil, err
	}
	if out.Auth == "" {
		return nil, apierr.InvalidResponse("Error parsing response body", errors.New("missing auth"))
	}
	return &out, nil
}

// Logs reports an auth outcome.
func (c *Client) Logs(ctx context.Context, req LogsRequest) error {
	_, err := c.do(ctx, "logs", http.MethodPut, PathLogs, request.Options{
		Extra: request.Params{
			{Name: "action", Value: req.Action},
			{Name: "status", Value: req.Status},
			{Name: "auth_request", Value: req.AuthRequest},
		},
	})
	return err
}

// LogAuthResult reports an Authenticate outcome as "true" or "false".
func (c *Client) LogAuthResult(ctx context.Context, authRequestID string, authorized bool) error {
	status := "false"
	if authorized {
		status = "true"
	}
	return c.Logs(ctx, LogsRequest{Action: ActionAuthenticate, Status: status, AuthRequest: authRequestID})
}

// Users creates a white-label user. The response is an encrypted envelope.
func (c *Client) Users(ctx context.Context, identifier string) (*UsersData, error) {
	body, err := c.do(ctx, "users", http.MethodPost, PathUsers, request.Options{
		Extra: request.Params{{Name: "identifier", Value: identifier}},
	})
	if err != nil {
		return nil, err
	}

	env, err := envelope.ParseResponse(body)
	if err != nil {
		return nil, err
	}
	plain, err := envelope.Open(env, c.keys)
	if err != nil {
		return nil, err
	}

	var out UsersData
	if err := decodeBody(plain, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping fetches the service time and public key. It is unsigned.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	resp, err := c.sender.Send(ctx, http.MethodGet, PathPing, nil)
	if err != nil {
		return nil, apierr.Protocol("Exception caught processing ping request", err)
	}
	if err := MapStatus(resp); err != nil {
		return nil, err
	}

	var out PingResponse
	if err := decodeBody(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do signs opts, sends them and maps the status. Sender failures are wrapped
// as Protocol errors and returned immediately.
func (c *Client) do(ctx context.Context, op, method, path string, opts request.Options) ([]byte, error) {
	secretKey, err := request.SecretKey(c.random, c.now(), c.keys.ServicePublicKey(), c.keys.Secret())
	if err != nil {
		return nil, apierr.Protocol(fmt.Sprintf("Exception caught processing %s request", op), err)
	}
	opts.AppKey = c.appKey
	opts.SecretKey = secretKey

	body, err := c.builder.Build(opts)
	if err != nil {
		return nil, apierr.Protocol(fmt.Sprintf("Exception caught processing %s request", op), err)
	}

	resp, err := c.sender.Send(ctx, method, path, body)
	if err != nil {
		c.logger.Warn("service call failed", "op", op, "error", err)
		return nil, apierr.Protocol(fmt.Sprintf("Exception caught processing %s request", op), err)
	}
	if err := MapStatus(resp); err != nil {
		c.logger.Debug("service call rejected", "op", op, "status", resp.StatusCode, "kind", apierr.KindOf(err).String())
		return nil, err
	}
	return resp.Body, nil
}

func decodeBody(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return apierr.InvalidResponse("Error parsing response body", err)
	}
	return nil
}
