package callback

import "time"

// Kind names the variant of a Response.
type Kind string

const (
	KindAuth   Kind = "auth"
	KindLogout Kind = "logout"
)

// Response is the result of a handled callback: either AuthResponse or
// LogoutResponse.
type Response interface {
	Kind() Kind
}

// AuthResponse is a verified auth result. AuthRequestID identifies it.
type AuthResponse struct {
	AuthRequestID    string
	Authorized       bool
	UserHash         string
	OrganizationUser string
	UserPushID       string
	DeviceID         string
}

func (AuthResponse) Kind() Kind { return KindAuth }

// LogoutResponse is a verified de-orbit notification. LogoutRequestedAt is
// UTC with whole second precision.
type LogoutResponse struct {
	LogoutRequestedAt time.Time
	UserHash          string
}

func (LogoutResponse) Kind() Kind { return KindLogout }

// Equal reports whether both fields match.
func (r LogoutResponse) Equal(o LogoutResponse) bool {
	return r.LogoutRequestedAt.Equal(o.LogoutRequestedAt) && r.UserHash == o.UserHash
}

// Wire payloads.

type authPayload struct {
	Response    *bool  `json:"response"`
	AuthRequest string `json:"auth_request"`
	DeviceID    string `json:"device_id"`
}

type deorbitPayload struct {
	APITime  string `json:"api_time"`
	UserHash string `json:"user_hash"`
}

// Callback parameter names.
const (
	ParamAuth             = "auth"
	ParamUserHash         = "user_hash"
	ParamAuthRequest      = "auth_request"
	ParamOrganizationUser = "organization_user"
	ParamUserPushID       = "user_push_id"
	ParamDeorbit          = "deorbit"
	ParamSignature        = "signature"
)
