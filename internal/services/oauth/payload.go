package oauth

import "time"

// authCodePayload is sealed into the code returned by the authorize endpoint
type authCodePayload struct {
	ClientID            string   `json:"client_id"`
	RedirectURI         string   `json:"redirect_uri"`
	AuthCodeID          string   `json:"auth_code_id"`
	Scopes              []string `json:"scopes"`
	UserID              string   `json:"user_id"`
	ExpireTime          int64    `json:"expire_time"`
	CodeChallenge       string   `json:"code_challenge,omitempty"`
	CodeChallengeMethod string   `json:"code_challenge_method,omitempty"`
}

// refreshTokenPayload is sealed into the opaque refresh token
type refreshTokenPayload struct {
	ClientID       string   `json:"client_id"`
	RefreshTokenID string   `json:"refresh_token_id"`
	AccessTokenID  string   `json:"access_token_id"`
	Scopes         []string `json:"scopes"`
	UserID         string   `json:"user_id"`
	ExpireTime     int64    `json:"expire_time"`
}

// deviceCodePayload is sealed into the device_code handed to the device
type deviceCodePayload struct {
	ClientID        string   `json:"client_id"`
	DeviceCodeID    string   `json:"device_code_id"`
	Scopes          []string `json:"scopes"`
	UserCode        string   `json:"user_code"`
	VerificationURI string   `json:"verification_uri"`
	ExpireTime      int64    `json:"expire_time"`
}

// expired reports whether a unix expiry has passed; the expiry instant itself counts as expired
func expired(expireTime int64, now time.Time) bool {
	return !now.Before(time.Unix(expireTime, 0))
}
