package models

import "time"

// RefreshToken model, handed to the client only as an encrypted payload
type RefreshToken struct {
	ID            string    `json:"id" db:"id"`
	AccessTokenID string    `json:"access_token_id" db:"access_token_id"`
	ClientID      string    `json:"client_id" db:"client_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Scopes        []Scope   `json:"scopes" db:"scopes"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	Revoked       bool      `json:"revoked" db:"revoked"`
}
