package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSenderPostsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/auths", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "username=u&signature=s", string(body))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"auth_request":"abc"}`))
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL+"/", time.Second)
	resp, err := s.Send(context.Background(), http.MethodPost, "/v1/auths", []byte("username=u&signature=s"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "OK", resp.StatusMessage)
	assert.Equal(t, `{"auth_request":"abc"}`, string(resp.Body))
}

func TestHTTPSenderGetUsesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "abc", r.URL.Query().Get("auth_request"))
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, time.Second)
	resp, err := s.Send(context.Background(), http.MethodGet, "/v1/poll", []byte("auth_request=abc"))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "Bad Request", resp.StatusMessage)
}

func TestHTTPSenderConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewHTTPSender(url, time.Second)
	_, err := s.Send(context.Background(), http.MethodGet, "/v1/ping", nil)
	assert.Error(t, err)
}
