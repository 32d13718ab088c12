// Package codec provides the stateless cryptographic primitives of the
// protocol: base64, RSA-OAEP, RSA signatures, HMAC and AES-256-CBC.
//
// Nothing in this package performs I/O or keeps state; every function is safe
// for concurrent use.
package codec

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// AESKeySize is the AES-256 key length.
	AESKeySize = 32

	// AESIVSize is the CBC initialization vector length.
	AESIVSize = aes.BlockSize
)

var (
	// ErrDecryption is returned for any RSA or AES decryption failure. The
	// cause is not exposed.
	ErrDecryption = errors.New("decryption failed")

	// ErrEncryption is returned when a plaintext cannot be encrypted.
	ErrEncryption = errors.New("encryption failed")
)

// ──────────────── Base64 ────────────────

// EncodeBase64 encodes bytes with the standard padded alphabet.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a standard padded base64 string.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return b, nil
}

// ──────────────── RSA ────────────────

// RSAEncrypt encrypts with RSA-OAEP (SHA-1, MGF1-SHA-1).
func RSAEncrypt(random io.Reader, pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: nil public key", ErrEncryption)
	}
	ct, err := rsa.EncryptOAEP(sha1.New(), random, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return ct, nil
}

// RSADecrypt decrypts RSA-OAEP (SHA-1) ciphertext. A ciphertext whose length
// differs from the modulus size, or that fails the padding check, yields
// ErrDecryption.
func RSADecrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if priv == nil || len(ciphertext) != priv.Size() {
		return nil, ErrDecryption
	}
	pt, err := rsa.DecryptOAEP(sha1.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return pt, nil
}

// RSASign signs SHA-256(message) with PKCS#1 v1.5. The output is
// deterministic for a given key and message.
func RSASign(priv *rsa.PrivateKey, message []byte) ([]byte, error) {
	if priv == nil {
		return nil, errors.New("rsa sign: nil private key")
	}
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("rsa sign: %w", err)
	}
	return sig, nil
}

// RSAVerify reports whether signature is a valid PKCS#1 v1.5 SHA-256
// signature of message. It never returns an error for a bad signature.
func RSAVerify(pub *rsa.PublicKey, signature, message []byte) bool {
	if pub == nil || len(signature) == 0 {
		return false
	}
	digest := sha256.Sum256(message)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature) == nil
}

// ──────────────── HMAC-SHA256 ────────────────

// HMACSign returns HMAC-SHA256(secret, message).
func HMACSign(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// HMACVerify compares mac against HMAC-SHA256(secret, message) in constant time.
func HMACVerify(secret, message, mac []byte) bool {
	return subtle.ConstantTimeCompare(HMACSign(secret, message), mac) == 1
}

// ──────────────── AES-256-CBC ────────────────

// AESCBCEncrypt encrypts with AES-256-CBC and PKCS#7 padding.
func AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// AESCBCDecrypt decrypts AES-256-CBC ciphertext and strips PKCS#7 padding.
// Wrong key or IV sizes, partial blocks and bad padding yield ErrDecryption.
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, ErrDecryption
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecryption
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("aes key must be %d bytes, got %d", AESKeySize, len(key))
	}
	if len(iv) != AESIVSize {
		return nil, fmt.Errorf("aes iv must be %d bytes, got %d", AESIVSize, len(iv))
	}
	return aes.NewCipher(key)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrDecryption
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrDecryption
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrDecryption
		}
	}
	return data[:len(data)-n], nil
}
