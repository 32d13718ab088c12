// Package keys holds the pre-provisioned key material of a client instance.
package keys

import (
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattjoyce/launchkey/internal/codec"
	"github.com/zeebo/blake3"
)

// Material is the service's public key, the caller's private key and the
// shared secret issued by the service. It is read only after construction and
// safe for concurrent use.
type Material struct {
	servicePublicKey *rsa.PublicKey
	privateKey       *rsa.PrivateKey
	secret           []byte
}

// New validates and wraps key material. The secret is copied.
func New(servicePublicKey *rsa.PublicKey, privateKey *rsa.PrivateKey, secret []byte) (*Material, error) {
	if servicePublicKey == nil {
		return nil, errors.New("service public key is required")
	}
	if privateKey == nil {
		return nil, errors.New("private key is required")
	}
	if err := privateKey.Validate(); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Material{
		servicePublicKey: servicePublicKey,
		privateKey:       privateKey,
		secret:           append([]byte(nil), secret...),
	}, nil
}

// LoadFiles reads PEM encoded keys from disk.
func LoadFiles(servicePublicKeyPath, privateKeyPath string, secret []byte) (*Material, error) {
	pubPEM, err := os.ReadFile(servicePublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read service public key: %w", err)
	}
	pub, err := codec.ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("service public key %s: %w", servicePublicKeyPath, err)
	}

	privPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	priv, err := codec.ParsePrivateKeyPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("private key %s: %w", privateKeyPath, err)
	}

	return New(pub, priv, secret)
}

func (m *Material) ServicePublicKey() *rsa.PublicKey { return m.servicePublicKey }

func (m *Material) PrivateKey() *rsa.PrivateKey { return m.privateKey }

// Secret returns a copy of the shared secret.
func (m *Material) Secret() []byte { return append([]byte(nil), m.secret...) }

// Decrypt RSA-decrypts ciphertext addressed to the caller.
func (m *Material) Decrypt(ciphertext []byte) ([]byte, error) {
	return codec.RSADecrypt(m.privateKey, ciphertext)
}

// Verify checks a signature made by the service.
func (m *Material) Verify(signature, message []byte) bool {
	return codec.RSAVerify(m.servicePublicKey, signature, message)
}

// Sign signs message with the caller's private key.
func (m *Material) Sign(message []byte) ([]byte, error) {
	return codec.RSASign(m.privateKey, message)
}

// EncryptForService RSA-encrypts plaintext with the service public key.
func (m *Material) EncryptForService(random io.Reader, plaintext []byte) ([]byte, error) {
	return codec.RSAEncrypt(random, m.servicePublicKey, plaintext)
}

// Fingerprint returns the hex BLAKE3-256 digest of the PKIX DER encoding of pub.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := blake3.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyFingerprint checks pub against a pinned fingerprint.
func VerifyFingerprint(pub *rsa.PublicKey, expected string) error {
	actual, err := Fingerprint(pub)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("service public key fingerprint mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
