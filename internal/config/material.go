package config

import (
	"fmt"

	"github.com/mattjoyce/launchkey/internal/keys"
	"github.com/mattjoyce/launchkey/internal/request"
)

// LoadKeys loads the configured key pair and, when a fingerprint is pinned,
// checks the service public key against it.
func (c *Config) LoadKeys() (*keys.Material, error) {
	km, err := keys.LoadFiles(c.API.ServicePublicKeyPath, c.API.PrivateKeyPath, []byte(c.API.Secret))
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}
	if c.API.ServiceKeyFingerprint != "" {
		if err := keys.VerifyFingerprint(km.ServicePublicKey(), c.API.ServiceKeyFingerprint); err != nil {
			return nil, err
		}
	}
	return km, nil
}

// Signer returns the request signer for the configured scheme.
func (c *Config) Signer(km *keys.Material) (request.Signer, error) {
	return request.NewSigner(c.API.SignatureScheme, km.PrivateKey(), km.Secret())
}
