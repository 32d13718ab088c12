// Package envelope implements the two-layer encrypted response structure.
//
// The cipher field is an RSA-encrypted 48 byte secret: a 32 byte AES-256 key
// followed by a 16 byte CBC IV. The data field is the AES-CBC encrypted JSON
// document. Open is the only place the two layers are combined.
package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mattjoyce/launchkey/internal/apierr"
	"github.com/mattjoyce/launchkey/internal/codec"
)

// SecretSize is the length of the decrypted cipher blob.
const SecretSize = codec.AESKeySize + codec.AESIVSize

// Envelope is the {cipher, data} pair, both base64 encoded.
type Envelope struct {
	Cipher string `json:"cipher"`
	Data   string `json:"data"`
}

type wireResponse struct {
	Response *Envelope `json:"response"`
}

// Decrypter decrypts RSA ciphertext addressed to the caller.
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// ParseResponse decodes a {"response": {"cipher": ..., "data": ...}} body.
func ParseResponse(body []byte) (Envelope, error) {
	var w wireResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return Envelope{}, apierr.InvalidResponse("Error parsing response body", err)
	}
	if w.Response == nil || w.Response.Cipher == "" || w.Response.Data == "" {
		return Envelope{}, apierr.InvalidResponse("Error parsing response body", errors.New("missing cipher or data"))
	}
	return *w.Response, nil
}

// Open decrypts env and returns the inner JSON document.
func Open(env Envelope, d Decrypter) ([]byte, error) {
	encSecret, err := codec.DecodeBase64(env.Cipher)
	if err != nil {
		return nil, apierr.InvalidResponse("malformed key material", err)
	}
	secret, err := d.Decrypt(encSecret)
	if err != nil {
		return nil, apierr.InvalidResponse("malformed key material", err)
	}

	key, iv, err := SplitSecret(secret)
	if err != nil {
		return nil, apierr.InvalidResponse("malformed key material", err)
	}

	data, err := codec.DecodeBase64(env.Data)
	if err != nil {
		return nil, apierr.InvalidResponse("malformed response data", err)
	}
	plain, err := codec.AESCBCDecrypt(key, iv, data)
	if err != nil {
		return nil, apierr.InvalidResponse("malformed response data", err)
	}

	if !json.Valid(plain) {
		return nil, apierr.InvalidResponse("Error parsing response body", errors.New("decrypted data is not JSON"))
	}
	return plain, nil
}

// Seal is the inverse of Open: it draws a fresh 48 byte secret from random,
// encrypts plaintext with it and the secret with pub.
func Seal(random io.Reader, pub *rsa.PublicKey, plaintext []byte) (Envelope, error) {
	if random == nil {
		random = rand.Reader
	}
	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(random, secret); err != nil {
		return Envelope{}, fmt.Errorf("generate envelope secret: %w", err)
	}

	key, iv, _ := SplitSecret(secret)
	data, err := codec.AESCBCEncrypt(key, iv, plaintext)
	if err != nil {
		return Envelope{}, fmt.Errorf("encrypt envelope data: %w", err)
	}
	encSecret, err := codec.RSAEncrypt(random, pub, secret)
	if err != nil {
		return Envelope{}, fmt.Errorf("encrypt envelope secret: %w", err)
	}

	return Envelope{
		Cipher: codec.EncodeBase64(encSecret),
		Data:   codec.EncodeBase64(data),
	}, nil
}

// SplitSecret splits a 48 byte blob into the AES key (first 32 bytes) and IV
// (last 16 bytes). The returned slices alias secret.
func SplitSecret(secret []byte) (key, iv []byte, err error) {
	if len(secret) != SecretSize {
		return nil, nil, fmt.Errorf("secret must be %d bytes, got %d", SecretSize, len(secret))
	}
	return secret[:codec.AESKeySize], secret[codec.AESKeySize:], nil
}

// JoinSecret concatenates key and IV into a 48 byte blob.
func JoinSecret(key, iv []byte) ([]byte, error) {
	if len(key) != codec.AESKeySize || len(iv) != codec.AESIVSize {
		return nil, fmt.Errorf("key and iv must be %d and %d bytes", codec.AESKeySize, codec.AESIVSize)
	}
	out := make([]byte, 0, SecretSize)
	out = append(out, key...)
	return append(out, iv...), nil
}
