// Package keystest provides RSA key material for tests.
package keystest

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/mattjoyce/launchkey/internal/keys"
)

// Secret is the shared secret used by Material.
const Secret = "test-shared-secret"

var (
	once    sync.Once
	service *rsa.PrivateKey
	client  *rsa.PrivateKey
	genErr  error
)

func generate() {
	service, genErr = rsa.GenerateKey(rand.Reader, 2048)
	if genErr != nil {
		return
	}
	client, genErr = rsa.GenerateKey(rand.Reader, 2048)
}

// ServiceKey returns the service side key pair. Callbacks are signed with it.
func ServiceKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	once.Do(generate)
	if genErr != nil {
		t.Fatalf("generate rsa keys: %v", genErr)
	}
	return service
}

// ClientKey returns the caller's key pair. Envelopes and auth payloads are
// encrypted to its public half.
func ClientKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	once.Do(generate)
	if genErr != nil {
		t.Fatalf("generate rsa keys: %v", genErr)
	}
	return client
}

// Material returns client key material trusting ServiceKey.
func Material(t testing.TB) *keys.Material {
	t.Helper()
	m, err := keys.New(&ServiceKey(t).PublicKey, ClientKey(t), []byte(Secret))
	if err != nil {
		t.Fatalf("build key material: %v", err)
	}
	return m
}
