package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/launchkey/internal/apierr"
	"github.com/mattjoyce/launchkey/internal/callback"
	"github.com/mattjoyce/launchkey/internal/codec"
	"github.com/mattjoyce/launchkey/internal/config"
	"github.com/mattjoyce/launchkey/internal/journal"
	"github.com/mattjoyce/launchkey/internal/keys/keystest"
	"github.com/mattjoyce/launchkey/internal/storage"
)

// fakeHandler is a stand-in CallbackHandler for testing.
type fakeHandler struct {
	handleFn func(ctx context.Context, payload map[string]string) (callback.Response, error)
}

func (f *fakeHandler) HandleCallback(ctx context.Context, payload map[string]string) (callback.Response, error) {
	return f.handleFn(ctx, payload)
}

// fakeJournal is a stand-in Journal for testing.
type fakeJournal struct {
	seenErr error
}

func (f *fakeJournal) Seen(ctx context.Context, digest string) (bool, error) {
	return false, f.seenErr
}

func (f *fakeJournal) Record(ctx context.Context, e journal.Entry) (string, error) {
	return "entry-1", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() Config {
	return Config{Listen: "127.0.0.1:0", Path: "/callback", MaxBodySize: 4096}
}

func openJournal(t *testing.T) *journal.Journal {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return journal.New(db)
}

func postForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func signedDeorbit(t *testing.T, apiTime string) url.Values {
	t.Helper()
	deorbit := `{"api_time":"` + apiTime + `","user_hash":"User Hash"}`
	sig, err := codec.RSASign(keystest.ServiceKey(t), []byte(deorbit))
	require.NoError(t, err)
	return url.Values{"deorbit": {deorbit}, "signature": {codec.EncodeBase64(sig)}}
}

func TestCallback_DeorbitAcceptedThenReplayRejected(t *testing.T) {
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	handler := callback.NewHandler(keystest.Material(t), nil, callback.WithClock(func() time.Time { return now }))
	server := New(testConfig(), handler, openJournal(t), testLogger())
	routes := server.Routes()
	form := signedDeorbit(t, "2026-10-15T07:59:30Z")

	rec := postForm(routes, "/callback", form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CallbackResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "logout", resp.Type)
	assert.Equal(t, "User Hash", resp.UserHash)
	assert.Equal(t, "2026-10-15T07:59:30Z", resp.LogoutRequestedAt)
	assert.NotEmpty(t, resp.JournalID)
	assert.Nil(t, resp.Authorized)

	rec = postForm(routes, "/callback", form)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "callback already handled", decodeError(t, rec))
}

func TestCallback_ReplayWithExtraParametersRejected(t *testing.T) {
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	handler := callback.NewHandler(keystest.Material(t), nil, callback.WithClock(func() time.Time { return now }))
	server := New(testConfig(), handler, openJournal(t), testLogger())
	routes := server.Routes()
	form := signedDeorbit(t, "2026-10-15T07:59:30Z")

	rec := postForm(routes, "/callback", form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	form.Set("x", "1")
	rec = postForm(routes, "/callback", form)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/callback?nonce=2", strings.NewReader(signedDeorbit(t, "2026-10-15T07:59:30Z").Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestCallback_ConcurrentDuplicateHandledOnce(t *testing.T) {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var calls atomic.Int32
	handler := &fakeHandler{handleFn: func(ctx context.Context, payload map[string]string) (callback.Response, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-proceed
		}
		return callback.AuthResponse{AuthRequestID: payload["auth_request"], Authorized: true}, nil
	}}
	server := New(testConfig(), handler, &fakeJournal{}, testLogger())
	routes := server.Routes()
	form := url.Values{"auth": {"a"}, "user_hash": {"u"}, "auth_request": {"r"}}

	first := make(chan int, 1)
	go func() { first <- postForm(routes, "/callback", form).Code }()
	<-entered

	dup := url.Values{"auth": {"a"}, "user_hash": {"u"}, "auth_request": {"r"}, "extra": {"1"}}
	rec := postForm(routes, "/callback", dup)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(proceed)
	assert.Equal(t, http.StatusOK, <-first)
	assert.Equal(t, int32(1), calls.Load())

	// Released once the first delivery completes.
	rec = postForm(routes, "/callback", form)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCallback_ForgedDeorbit(t *testing.T) {
	handler := callback.NewHandler(keystest.Material(t), nil)
	server := New(testConfig(), handler, openJournal(t), testLogger())

	form := signedDeorbit(t, time.Now().UTC().Format(time.RFC3339))
	form.Set("deorbit", `{"api_time":"`+time.Now().UTC().Format(time.RFC3339)+`","user_hash":"Someone Else"}`)

	rec := postForm(server.Routes(), "/callback", form)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	// Error should be generic (no details leaked)
	assert.Equal(t, "forbidden", decodeError(t, rec))
}

func TestCallback_StaleDeorbit(t *testing.T) {
	handler := callback.NewHandler(keystest.Material(t), nil)
	server := New(testConfig(), handler, nil, testLogger())

	rec := postForm(server.Routes(), "/callback", signedDeorbit(t, "2001-01-01 01:01:01"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid callback", decodeError(t, rec))
}

func TestCallback_UnknownShapeViaQuery(t *testing.T) {
	handler := callback.NewHandler(keystest.Material(t), nil)
	server := New(testConfig(), handler, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/callback?foo=bar", nil)
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_AuthMergesParameters(t *testing.T) {
	var got map[string]string
	handler := &fakeHandler{handleFn: func(ctx context.Context, payload map[string]string) (callback.Response, error) {
		got = payload
		return callback.AuthResponse{AuthRequestID: payload["auth_request"], Authorized: true, UserHash: payload["user_hash"]}, nil
	}}
	server := New(testConfig(), handler, &fakeJournal{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/callback?auth_request=from-query&auth_request=second&user_hash=u",
		strings.NewReader("auth=abc&auth_request=from-body"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, map[string]string{"auth": "abc", "auth_request": "from-body", "user_hash": "u"}, got)

	var resp CallbackResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "auth", resp.Type)
	assert.Equal(t, "from-body", resp.AuthRequest)
	require.NotNil(t, resp.Authorized)
	assert.True(t, *resp.Authorized)
	assert.Equal(t, "entry-1", resp.JournalID)
}

func TestCallback_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"signature", apierr.InvalidSignature("bad"), http.StatusForbidden},
		{"callback", apierr.InvalidCallback("bad", nil), http.StatusBadRequest},
		{"response", apierr.InvalidResponse("bad", nil), http.StatusBadRequest},
		{"protocol", apierr.Protocol("boom", errors.New("io")), http.StatusInternalServerError},
		{"untyped", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &fakeHandler{handleFn: func(ctx context.Context, payload map[string]string) (callback.Response, error) {
				return nil, tt.err
			}}
			server := New(testConfig(), handler, nil, testLogger())
			rec := postForm(server.Routes(), "/callback", url.Values{"a": {"b"}})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCallback_BodyTooLarge(t *testing.T) {
	handler := &fakeHandler{handleFn: func(ctx context.Context, payload map[string]string) (callback.Response, error) {
		t.Fatal("handler should not be called for oversized body")
		return nil, nil
	}}
	server := New(testConfig(), handler, nil, testLogger())

	rec := postForm(server.Routes(), "/callback", url.Values{"auth": {strings.Repeat("a", 8192)}})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCallback_UnsupportedContentType(t *testing.T) {
	handler := &fakeHandler{handleFn: func(ctx context.Context, payload map[string]string) (callback.Response, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}}
	server := New(testConfig(), handler, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(`{"auth":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed parameters", decodeError(t, rec))
}

func TestCallback_RateLimited(t *testing.T) {
	handler := &fakeHandler{handleFn: func(ctx context.Context, payload map[string]string) (callback.Response, error) {
		return callback.LogoutResponse{UserHash: "u"}, nil
	}}
	cfg := testConfig()
	cfg.RatePerSecond = 0.001
	cfg.RateBurst = 1
	server := New(cfg, handler, nil, testLogger())
	routes := server.Routes()

	rec := postForm(routes, "/callback", url.Values{"n": {"1"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(routes, "/callback", url.Values{"n": {"2"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestCallback_JournalFailure(t *testing.T) {
	handler := &fakeHandler{handleFn: func(ctx context.Context, payload map[string]string) (callback.Response, error) {
		t.Fatal("handler should not be called when the journal is down")
		return nil, nil
	}}
	server := New(testConfig(), handler, &fakeJournal{seenErr: errors.New("database is locked")}, testLogger())

	rec := postForm(server.Routes(), "/callback", url.Values{"deorbit": {"d"}, "signature": {"s"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCallback_UnknownPath(t *testing.T) {
	server := New(testConfig(), &fakeHandler{}, nil, testLogger())

	rec := postForm(server.Routes(), "/other", url.Values{"a": {"b"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_AppliesDefaults(t *testing.T) {
	server := New(Config{Listen: "127.0.0.1:0"}, &fakeHandler{}, nil, testLogger())

	assert.Equal(t, int64(DefaultMaxBodySize), server.config.MaxBodySize)
	assert.Equal(t, DefaultPath, server.config.Path)
	assert.Nil(t, server.limiter)
}

func TestFromGlobalConfig(t *testing.T) {
	cc := config.Defaults().Callback
	cc.MaxBodySize = "1MB"

	cfg, err := FromGlobalConfig(&cc)
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024), cfg.MaxBodySize)
	assert.Equal(t, cc.Path, cfg.Path)
	assert.Equal(t, cc.RateLimit.PerSecond, cfg.RatePerSecond)
	assert.Equal(t, cc.RateLimit.Burst, cfg.RateBurst)

	cc.MaxBodySize = "huge"
	_, err = FromGlobalConfig(&cc)
	assert.Error(t, err)

	_, err = FromGlobalConfig(nil)
	assert.Error(t, err)
}
