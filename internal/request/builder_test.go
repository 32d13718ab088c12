package request_test

import (
	"crypto/rand"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/launchkey/internal/codec"
	"github.com/mattjoyce/launchkey/internal/keys/keystest"
	"github.com/mattjoyce/launchkey/internal/request"
)

func hmacBuilder() *request.Builder {
	return request.NewBuilder(request.HMACSigner{Secret: []byte(keystest.Secret)})
}

func TestBuildFieldEncoding(t *testing.T) {
	tests := []struct {
		name    string
		opts    request.Options
		want    []string
		notWant []string
	}{
		{
			name: "username",
			opts: request.Options{Username: "expected_username"},
			want: []string{"username=expected_username"},
		},
		{
			name: "app key",
			opts: request.Options{AppKey: "1234567890"},
			want: []string{"app_key=1234567890"},
		},
		{
			name: "secret key percent-encoded",
			opts: request.Options{SecretKey: "SecretKey=="},
			want: []string{"secret_key=SecretKey%3D%3D"},
		},
		{
			name: "session",
			opts: request.Options{Session: true},
			want: []string{"session=1"},
		},
		{
			name: "user push id",
			opts: request.Options{UserPushID: true},
			want: []string{"user_push_id=1"},
		},
		{
			name:    "zero flags omitted",
			opts:    request.Options{AppKey: "k"},
			notWant: []string{"session=", "user_push_id=", "username=", "secret_key="},
		},
		{
			name: "extra fields",
			opts: request.Options{Extra: request.Params{{Name: "auth_request", Value: "a b"}}},
			want: []string{"auth_request=a+b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := hmacBuilder().Build(tt.opts)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(body), w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, string(body), nw)
			}
		})
	}
}

func TestBuildFieldOrder(t *testing.T) {
	body, err := hmacBuilder().Build(request.Options{
		Username:   "user",
		AppKey:     "app",
		SecretKey:  "sk",
		Session:    true,
		UserPushID: true,
		Extra:      request.Params{{Name: "action", Value: "Authenticate"}},
	})
	require.NoError(t, err)

	names := make([]string, 0)
	for _, pair := range strings.Split(string(body), "&") {
		names = append(names, strings.SplitN(pair, "=", 2)[0])
	}
	assert.Equal(t, []string{"username", "app_key", "secret_key", "session", "user_push_id", "action", "signature"}, names)
}

func TestBuildIsDeterministic(t *testing.T) {
	opts := request.Options{Username: "user", AppKey: "app", SecretKey: "S/+=", Session: true}

	for _, b := range []*request.Builder{
		hmacBuilder(),
		request.NewBuilder(request.RSASigner{Key: keystest.ClientKey(t)}),
	} {
		first, err := b.Build(opts)
		require.NoError(t, err)
		for range 5 {
			again, err := b.Build(opts)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestSignatureCoversOtherFields(t *testing.T) {
	b := hmacBuilder()
	opts := request.Options{AppKey: "app", SecretKey: "sk", Extra: request.Params{{Name: "signature", Value: "forged"}}}

	body, err := b.Build(opts)
	require.NoError(t, err)

	values, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	require.Len(t, values["signature"], 1, "caller supplied signature must be dropped")

	canonical := b.Params(opts).Encode()
	assert.NotContains(t, canonical, "signature")
	mac, err := codec.DecodeBase64(values.Get("signature"))
	require.NoError(t, err)
	assert.True(t, codec.HMACVerify([]byte(keystest.Secret), []byte(canonical), mac))
}

func TestRSASignatureVerifies(t *testing.T) {
	key := keystest.ClientKey(t)
	b := request.NewBuilder(request.RSASigner{Key: key})
	opts := request.Options{AppKey: "app", Username: "user"}

	body, err := b.Build(opts)
	require.NoError(t, err)
	values, err := url.ParseQuery(string(body))
	require.NoError(t, err)

	sig, err := codec.DecodeBase64(values.Get("signature"))
	require.NoError(t, err)
	assert.True(t, codec.RSAVerify(&key.PublicKey, sig, []byte(b.Params(opts).Encode())))
}

func TestNewSigner(t *testing.T) {
	s, err := request.NewSigner("rsa", keystest.ClientKey(t), nil)
	require.NoError(t, err)
	assert.IsType(t, request.RSASigner{}, s)

	s, err = request.NewSigner("hmac", nil, []byte("x"))
	require.NoError(t, err)
	assert.IsType(t, request.HMACSigner{}, s)

	_, err = request.NewSigner("hmac", nil, nil)
	assert.Error(t, err)
	_, err = request.NewSigner("rsa", nil, nil)
	assert.Error(t, err)
	_, err = request.NewSigner("md5", nil, nil)
	assert.Error(t, err)
}

func TestSecretKey(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 30, 45, 0, time.UTC)
	sk, err := request.SecretKey(rand.Reader, now, &keystest.ServiceKey(t).PublicKey, []byte("s3cret"))
	require.NoError(t, err)

	ct, err := codec.DecodeBase64(sk)
	require.NoError(t, err)
	pt, err := codec.RSADecrypt(keystest.ServiceKey(t), ct)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(pt, &payload))
	assert.Equal(t, "s3cret", payload["secret"])
	assert.Equal(t, "2026-10-15 12:30:45", payload["stamped"])
}

func TestParamsGet(t *testing.T) {
	var p request.Params
	p.Add("a", "1")
	p.Add("a", "2")

	v, ok := p.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = p.Get("missing")
	assert.False(t, ok)
}
