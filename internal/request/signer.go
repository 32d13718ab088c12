package request

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/mattjoyce/launchkey/internal/codec"
)

// Signer produces the base64 signature over a canonical parameter string.
// Implementations must be deterministic.
type Signer interface {
	Sign(canonical []byte) (string, error)
}

// RSASigner signs with the caller's private key (PKCS#1 v1.5, SHA-256).
type RSASigner struct {
	Key *rsa.PrivateKey
}

func (s RSASigner) Sign(canonical []byte) (string, error) {
	sig, err := codec.RSASign(s.Key, canonical)
	if err != nil {
		return "", err
	}
	return codec.EncodeBase64(sig), nil
}

// HMACSigner signs with the shared secret (HMAC-SHA256).
type HMACSigner struct {
	Secret []byte
}

func (s HMACSigner) Sign(canonical []byte) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("hmac sign: empty secret")
	}
	return codec.EncodeBase64(codec.HMACSign(s.Secret, canonical)), nil
}

// Signature schemes accepted by NewSigner.
const (
	SchemeRSA  = "rsa"
	SchemeHMAC = "hmac"
)

// NewSigner returns the signer for scheme.
func NewSigner(scheme string, key *rsa.PrivateKey, secret []byte) (Signer, error) {
	switch scheme {
	case SchemeRSA, "":
		if key == nil {
			return nil, errors.New("rsa signer requires a private key")
		}
		return RSASigner{Key: key}, nil
	case SchemeHMAC:
		if len(secret) == 0 {
			return nil, errors.New("hmac signer requires a shared secret")
		}
		return HMACSigner{Secret: secret}, nil
	default:
		return nil, fmt.Errorf("unknown signature scheme %q (must be %s or %s)", scheme, SchemeRSA, SchemeHMAC)
	}
}
