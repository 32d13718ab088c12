package transport

import (
	"encoding/json"
	"strings"

	"github.com/mattjoyce/launchkey/internal/apierr"
)

type errorBody struct {
	MessageCode json.RawMessage `json:"message_code"`
	Message     string          `json:"message"`
}

// MapStatus converts a non-2xx response into a typed error. It returns nil for
// 2xx responses.
func MapStatus(resp *Response) error {
	switch code := resp.StatusCode; {
	case code >= 200 && code <= 299:
		return nil
	case code == 401:
		return apierr.Authentication(resp.StatusMessage)
	case code == 400:
		if msg, msgCode, ok := parseErrorBody(resp.Body); ok {
			return apierr.InvalidRequest(msg, msgCode)
		}
		return apierr.Communication(resp.StatusMessage)
	default:
		return apierr.Communication(resp.StatusMessage)
	}
}

func parseErrorBody(body []byte) (message, code string, ok bool) {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return "", "", false
	}
	code = strings.Trim(string(eb.MessageCode), `"`)
	if code == "" || code == "null" || eb.Message == "" {
		return "", "", false
	}
	return eb.Message, code, true
}
