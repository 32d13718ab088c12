package webhook

import (
	"context"

	"github.com/mattjoyce/launchkey/internal/callback"
	"github.com/mattjoyce/launchkey/internal/journal"
)

// CallbackHandler verifies a callback payload.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, payload map[string]string) (callback.Response, error)
}

// Journal records handled callbacks for replay detection.
type Journal interface {
	Seen(ctx context.Context, digest string) (bool, error)
	Record(ctx context.Context, e journal.Entry) (string, error)
}

// Config holds webhook server configuration.
type Config struct {
	Listen string
	// Path is the URL path the service delivers callbacks to.
	Path string
	// MaxBodySize is the maximum allowed request body size in bytes.
	MaxBodySize int64
	// RatePerSecond and RateBurst configure a token bucket shared by all
	// clients. RatePerSecond 0 disables rate limiting.
	RatePerSecond float64
	RateBurst     int
}

// CallbackResponse is the JSON response for a verified callback.
type CallbackResponse struct {
	Type              string `json:"type"`
	JournalID         string `json:"journal_id,omitempty"`
	AuthRequest       string `json:"auth_request,omitempty"`
	Authorized        *bool  `json:"authorized,omitempty"`
	UserHash          string `json:"user_hash,omitempty"`
	LogoutRequestedAt string `json:"logout_requested_at,omitempty"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Default values
const (
	DefaultMaxBodySize = 64 * 1024
	DefaultPath        = "/callback"
)
