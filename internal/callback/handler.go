// Package callback verifies the asynchronous callbacks sent by the service.
//
// A callback is a flat string map in one of two shapes:
//
//   - auth: auth, user_hash, auth_request (+ organization_user, user_push_id)
//   - logout: deorbit, signature
//
// The shape is decided from the key set alone before any cryptographic work,
// so a malformed payload fails the same way regardless of its content.
package callback

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mattjoyce/launchkey/internal/apierr"
	"github.com/mattjoyce/launchkey/internal/codec"
)

// DefaultTolerance is the default allowed distance between a de-orbit
// timestamp and the local clock.
const DefaultTolerance = 5 * time.Minute

// apiTimeLayouts are tried in order when parsing api_time.
var apiTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
}

type shape int

const (
	shapeUnknown shape = iota
	shapeAuth
	shapeLogout
)

// Handler dispatches callbacks to the auth or logout verifier. It holds no
// mutable state and is safe for concurrent use.
type Handler struct {
	crypto    Crypto
	logs      AuthLogger
	tolerance time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithTolerance sets the allowed de-orbit clock distance.
func WithTolerance(d time.Duration) Option {
	return func(h *Handler) { h.tolerance = d }
}

// WithClock overrides the clock used for the staleness check.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler returns a Handler. logs may be nil, in which case auth outcomes
// are not reported.
func NewHandler(crypto Crypto, logs AuthLogger, opts ...Option) *Handler {
	h := &Handler{
		crypto:    crypto,
		logs:      logs,
		tolerance: DefaultTolerance,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleCallback verifies payload and returns an AuthResponse or a
// LogoutResponse. Errors are *apierr.Error of kind InvalidCallback,
// InvalidResponse or InvalidSignature.
func (h *Handler) HandleCallback(ctx context.Context, payload map[string]string) (Response, error) {
	switch classify(payload) {
	case shapeLogout:
		return h.handleLogout(payload)
	case shapeAuth:
		return h.handleAuth(ctx, payload)
	default:
		return nil, apierr.InvalidCallback("not a recognized callback shape", nil)
	}
}

func classify(payload map[string]string) shape {
	if has(payload, ParamDeorbit, ParamSignature) {
		return shapeLogout
	}
	if has(payload, ParamAuth, ParamUserHash, ParamAuthRequest) {
		return shapeAuth
	}
	return shapeUnknown
}

// Fields returns the subset of payload that belongs to its callback shape.
// Keys outside the shape do not affect verification, so anything that
// identifies a delivery must be derived from Fields rather than the raw
// payload. It returns nil for an unrecognized shape.
func Fields(payload map[string]string) map[string]string {
	var keys []string
	switch classify(payload) {
	case shapeLogout:
		keys = []string{ParamDeorbit, ParamSignature}
	case shapeAuth:
		keys = []string{ParamAuth, ParamUserHash, ParamAuthRequest, ParamOrganizationUser, ParamUserPushID}
	default:
		return nil
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := payload[k]; ok {
			out[k] = v
		}
	}
	return out
}

func has(payload map[string]string, keys ...string) bool {
	for _, k := range keys {
		if _, ok := payload[k]; !ok {
			return false
		}
	}
	return true
}

func (h *Handler) handleAuth(ctx context.Context, payload map[string]string) (Response, error) {
	authRequestID := payload[ParamAuthRequest]

	encrypted, err := codec.DecodeBase64(payload[ParamAuth])
	if err != nil {
		return nil, apierr.InvalidCallback("unable to decode auth payload", err)
	}
	plain, err := h.crypto.Decrypt(encrypted)
	if err != nil {
		return nil, apierr.InvalidCallback("unable to decrypt auth payload", nil)
	}

	var auth authPayload
	if err := json.Unmarshal(plain, &auth); err != nil {
		return nil, apierr.InvalidCallback("unable to parse auth payload", err)
	}
	if auth.Response == nil {
		return nil, apierr.InvalidCallback("unable to parse auth payload", errors.New("missing response"))
	}
	if subtle.ConstantTimeCompare([]byte(auth.AuthRequest), []byte(authRequestID)) != 1 {
		return nil, apierr.InvalidResponse("auth_request in payload does not match auth_request parameter", nil)
	}

	resp := AuthResponse{
		AuthRequestID:    authRequestID,
		Authorized:       *auth.Response,
		UserHash:         payload[ParamUserHash],
		OrganizationUser: payload[ParamOrganizationUser],
		UserPushID:       payload[ParamUserPushID],
		DeviceID:         auth.DeviceID,
	}

	if h.logs != nil {
		if err := h.logs.LogAuthResult(ctx, resp.AuthRequestID, resp.Authorized); err != nil {
			h.logger.Warn("failed to report auth result",
				"auth_request", resp.AuthRequestID,
				"kind", apierr.KindOf(err).String(),
				"error", err,
			)
		}
	}

	return resp, nil
}

func (h *Handler) handleLogout(payload map[string]string) (Response, error) {
	deorbit := payload[ParamDeorbit]

	signature, err := codec.DecodeBase64(payload[ParamSignature])
	if err != nil || !h.crypto.Verify(signature, []byte(deorbit)) {
		return nil, apierr.InvalidSignature("invalid signature for deorbit callback")
	}

	var d deorbitPayload
	if err := json.Unmarshal([]byte(deorbit), &d); err != nil {
		return nil, apierr.InvalidCallback("unable to parse deorbit payload", err)
	}

	apiTime, err := parseAPITime(d.APITime)
	if err != nil {
		return nil, apierr.InvalidCallback("unable to parse deorbit api_time", err)
	}

	skew := h.now().Sub(apiTime)
	if skew > h.tolerance || skew < -h.tolerance {
		return nil, apierr.InvalidCallback("deorbit api_time is outside the allowed window", nil)
	}

	return LogoutResponse{
		LogoutRequestedAt: apiTime.Truncate(time.Second).UTC(),
		UserHash:          d.UserHash,
	}, nil
}

func parseAPITime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range apiTimeLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
