package keys_test

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/launchkey/internal/codec"
	"github.com/mattjoyce/launchkey/internal/keys"
	"github.com/mattjoyce/launchkey/internal/keys/keystest"
)

func TestNewRequiresKeys(t *testing.T) {
	_, err := keys.New(nil, keystest.ClientKey(t), nil)
	assert.Error(t, err)

	_, err = keys.New(&keystest.ServiceKey(t).PublicKey, nil, nil)
	assert.Error(t, err)
}

func TestSecretIsCopied(t *testing.T) {
	secret := []byte("secret")
	m, err := keys.New(&keystest.ServiceKey(t).PublicKey, keystest.ClientKey(t), secret)
	require.NoError(t, err)

	secret[0] = 'X'
	assert.Equal(t, []byte("secret"), m.Secret())

	out := m.Secret()
	out[0] = 'Y'
	assert.Equal(t, []byte("secret"), m.Secret())
}

func TestDecryptAndVerify(t *testing.T) {
	m := keystest.Material(t)

	ct, err := codec.RSAEncrypt(rand.Reader, &keystest.ClientKey(t).PublicKey, []byte("hello"))
	require.NoError(t, err)
	pt, err := m.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)

	sig, err := codec.RSASign(keystest.ServiceKey(t), []byte("deorbit"))
	require.NoError(t, err)
	assert.True(t, m.Verify(sig, []byte("deorbit")))
	assert.False(t, m.Verify(sig, []byte("other")))
}

func TestEncryptForService(t *testing.T) {
	m := keystest.Material(t)

	ct, err := m.EncryptForService(rand.Reader, []byte("secret"))
	require.NoError(t, err)
	pt, err := codec.RSADecrypt(keystest.ServiceKey(t), ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), pt)
}

func TestSignVerifiableWithClientPublicKey(t *testing.T) {
	m := keystest.Material(t)

	sig, err := m.Sign([]byte("body"))
	require.NoError(t, err)
	assert.True(t, codec.RSAVerify(&keystest.ClientKey(t).PublicKey, sig, []byte("body")))
}

func TestFingerprint(t *testing.T) {
	pub := &keystest.ServiceKey(t).PublicKey

	fp, err := keys.Fingerprint(pub)
	require.NoError(t, err)
	assert.Len(t, fp, 64)

	again, err := keys.Fingerprint(pub)
	require.NoError(t, err)
	assert.Equal(t, fp, again)

	other, err := keys.Fingerprint(&keystest.ClientKey(t).PublicKey)
	require.NoError(t, err)
	assert.NotEqual(t, fp, other)

	assert.NoError(t, keys.VerifyFingerprint(pub, fp))
	assert.Error(t, keys.VerifyFingerprint(pub, other))
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	pubPEM, err := codec.EncodePublicKeyPEM(&keystest.ServiceKey(t).PublicKey)
	require.NoError(t, err)

	pubPath := filepath.Join(dir, "service.pub")
	privPath := filepath.Join(dir, "client.key")
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o600))
	require.NoError(t, os.WriteFile(privPath, codec.EncodePrivateKeyPEM(keystest.ClientKey(t)), 0o600))

	m, err := keys.LoadFiles(pubPath, privPath, []byte("s"))
	require.NoError(t, err)
	assert.True(t, m.ServicePublicKey().Equal(&keystest.ServiceKey(t).PublicKey))
	assert.True(t, m.PrivateKey().Equal(keystest.ClientKey(t)))

	_, err = keys.LoadFiles(filepath.Join(dir, "missing"), privPath, nil)
	assert.Error(t, err)

	_, err = keys.LoadFiles(privPath, privPath, nil)
	assert.Error(t, err)
}
