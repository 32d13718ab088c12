// Package request assembles signed, form-encoded request bodies.
package request

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mattjoyce/launchkey/internal/codec"
)

// Field names on the wire.
const (
	FieldUsername   = "username"
	FieldAppKey     = "app_key"
	FieldSecretKey  = "secret_key"
	FieldSession    = "session"
	FieldUserPushID = "user_push_id"
	FieldSignature  = "signature"
)

// Options is the set of recognized request options. Zero values are omitted,
// except AppKey which is always sent.
type Options struct {
	Username   string
	AppKey     string
	SecretKey  string
	Session    bool
	UserPushID bool

	// Extra fields are appended in order after the recognized ones and
	// before the signature.
	Extra Params
}

// Builder produces signed request bodies.
type Builder struct {
	signer Signer
}

func NewBuilder(signer Signer) *Builder {
	return &Builder{signer: signer}
}

// Params returns the unsigned fields for opts in wire order.
func (b *Builder) Params(opts Options) Params {
	var p Params
	if opts.Username != "" {
		p.Add(FieldUsername, opts.Username)
	}
	p.Add(FieldAppKey, opts.AppKey)
	if opts.SecretKey != "" {
		p.Add(FieldSecretKey, opts.SecretKey)
	}
	if opts.Session {
		p.Add(FieldSession, "1")
	}
	if opts.UserPushID {
		p.Add(FieldUserPushID, "1")
	}
	for _, f := range opts.Extra {
		if f.Name == FieldSignature {
			continue
		}
		p = append(p, f)
	}
	return p
}

// Sign computes the signature over p and returns p with it appended.
func (b *Builder) Sign(p Params) (Params, error) {
	sig, err := b.signer.Sign([]byte(p.Encode()))
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	signed := make(Params, 0, len(p)+1)
	signed = append(signed, p...)
	signed.Add(FieldSignature, sig)
	return signed, nil
}

// Build returns the application/x-www-form-urlencoded body for opts.
func (b *Builder) Build(opts Options) ([]byte, error) {
	signed, err := b.Sign(b.Params(opts))
	if err != nil {
		return nil, err
	}
	return []byte(signed.Encode()), nil
}

// StampLayout is the timestamp layout inside the secret_key payload.
const StampLayout = "2006-01-02 15:04:05"

type secretPayload struct {
	Secret  string `json:"secret"`
	Stamped string `json:"stamped"`
}

// SecretKey builds the secret_key value: the shared secret and a UTC stamp,
// RSA-encrypted to the service and base64 encoded.
func SecretKey(random io.Reader, now time.Time, servicePublicKey *rsa.PublicKey, secret []byte) (string, error) {
	payload, err := json.Marshal(secretPayload{
		Secret:  string(secret),
		Stamped: now.UTC().Format(StampLayout),
	})
	if err != nil {
		return "", fmt.Errorf("marshal secret payload: %w", err)
	}
	ct, err := codec.RSAEncrypt(random, servicePublicKey, payload)
	if err != nil {
		return "", fmt.Errorf("encrypt secret key: %w", err)
	}
	return codec.EncodeBase64(ct), nil
}
