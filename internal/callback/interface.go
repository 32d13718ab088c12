package callback

import "context"

//go:generate mockgen -destination=mocks/mock_callback.go -package=mocks github.com/mattjoyce/launchkey/internal/callback Crypto,AuthLogger

// Crypto is the key-bound cryptography the verifiers need. keys.Material
// implements it.
type Crypto interface {
	// Decrypt RSA-decrypts a payload addressed to the caller.
	Decrypt(ciphertext []byte) ([]byte, error)
	// Verify checks a service signature over message.
	Verify(signature, message []byte) bool
}

// AuthLogger reports auth outcomes back to the service.
type AuthLogger interface {
	LogAuthResult(ctx context.Context, authRequestID string, authorized bool) error
}
