package models

import "time"

// AuthorizationCode is a single-use code issued on the authorize endpoint
type AuthorizationCode struct {
	ID                  string    `json:"id" db:"id"`
	ClientID            string    `json:"client_id" db:"client_id"`
	UserID              string    `json:"user_id" db:"user_id"`
	RedirectURI         string    `json:"redirect_uri" db:"redirect_uri"`
	Scopes              []Scope   `json:"scopes" db:"scopes"`
	ExpiresAt           time.Time `json:"expires_at" db:"expires_at"`
	CodeChallenge       string    `json:"code_challenge,omitempty" db:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty" db:"code_challenge_method"`
	Revoked             bool      `json:"revoked" db:"revoked"`
}
