package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxResponseBytes caps how much of a response body is read.
const MaxResponseBytes = 4 << 20

// HTTPSender sends form-encoded requests to the service over net/http. GET
// requests carry the body as the query string.
type HTTPSender struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSender returns a sender rooted at baseURL (e.g. https://api.launchkey.com).
func NewHTTPSender(baseURL string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSender) Send(ctx context.Context, method, path string, body []byte) (*Response, error) {
	url := s.baseURL + path

	var reqBody io.Reader
	if method == http.MethodGet {
		if len(body) > 0 {
			url += "?" + string(body)
		}
	} else {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		StatusMessage: statusMessage(resp),
		Body:          data,
	}, nil
}

// statusMessage returns the reason phrase of the status line.
func statusMessage(resp *http.Response) string {
	msg := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return msg
}
