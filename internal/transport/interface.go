package transport

import "context"

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks github.com/mattjoyce/launchkey/internal/transport Sender

// Sender performs one HTTP exchange. It owns connection handling, TLS and
// timeouts; a returned error means no status was received.
type Sender interface {
	Send(ctx context.Context, method, path string, body []byte) (*Response, error)
}
