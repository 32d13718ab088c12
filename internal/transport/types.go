package transport

import "time"

// Response is the raw result of a Sender exchange.
type Response struct {
	StatusCode    int
	StatusMessage string
	Body          []byte
}

// AuthsRequest starts an authentication request for a user.
type AuthsRequest struct {
	Username   string
	Session    bool
	UserPushID bool
}

type authsResponse struct {
	AuthRequest string `json:"auth_request"`
}

// PollResponse is the result of polling an auth request. Auth is the
// encrypted auth payload; the rest is plaintext.
type PollResponse struct {
	Auth             string `json:"auth"`
	UserHash         string `json:"user_hash"`
	OrganizationUser string `json:"organization_user,omitempty"`
	UserPushID       string `json:"user_push_id,omitempty"`
}

// Payload returns the poll result in callback form, keyed as an auth callback
// for the given auth request.
func (p PollResponse) Payload(authRequestID string) map[string]string {
	m := map[string]string{
		"auth":         p.Auth,
		"user_hash":    p.UserHash,
		"auth_request": authRequestID,
	}
	if p.OrganizationUser != "" {
		m["organization_user"] = p.OrganizationUser
	}
	if p.UserPushID != "" {
		m["user_push_id"] = p.UserPushID
	}
	return m
}

// Log actions.
const (
	ActionAuthenticate = "Authenticate"
	ActionRevoke       = "Revoke"
)

// LogsRequest reports the outcome of an auth request to the service.
type LogsRequest struct {
	Action      string
	Status      string
	AuthRequest string
}

// UsersData is the decrypted payload of a white-label user creation.
type UsersData struct {
	QRCode string `json:"qrcode"`
	Code   string `json:"code"`
}

// PingLayout is the layout of launchkey_time.
const PingLayout = "2006-01-02 15:04:05"

// PingResponse carries the service clock and its current public key.
type PingResponse struct {
	Key           string `json:"key"`
	LaunchKeyTime string `json:"launchkey_time"`
}

// Time parses LaunchKeyTime as UTC.
func (p PingResponse) Time() (time.Time, error) {
	return time.ParseInLocation(PingLayout, p.LaunchKeyTime, time.UTC)
}
