package models

import "time"

// AccessToken is the record behind a signed access token.
// ID doubles as the JWT "jti" claim.
type AccessToken struct {
	ID        string    `json:"id" db:"id"`
	ClientID  string    `json:"client_id" db:"client_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Scopes    []Scope   `json:"scopes" db:"scopes"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
}

// Subject returns the resource owner, or the client itself for client credentials
func (t *AccessToken) Subject() string {
	if t.UserID != "" {
		return t.UserID
	}
	return t.ClientID
}
