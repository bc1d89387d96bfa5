package models

import "time"

// DeviceCodeStatus is the approval state of a device authorization request
type DeviceCodeStatus string

const (
	DeviceCodePending  DeviceCodeStatus = "pending"
	DeviceCodeApproved DeviceCodeStatus = "approved"
	DeviceCodeDenied   DeviceCodeStatus = "denied"
)

// DeviceCode holds a device authorization grant (RFC 8628)
type DeviceCode struct {
	ID              string           `json:"id" db:"id"`
	UserCode        string           `json:"user_code" db:"user_code"`
	VerificationURI string           `json:"verification_uri" db:"verification_uri"`
	ClientID        string           `json:"client_id" db:"client_id"`
	UserID          string           `json:"user_id,omitempty" db:"user_id"`
	Scopes          []Scope          `json:"scopes" db:"scopes"`
	Status          DeviceCodeStatus `json:"status" db:"status"`
	Interval        time.Duration    `json:"interval" db:"interval"`
	ExpiresAt       time.Time        `json:"expires_at" db:"expires_at"`
	LastPolledAt    time.Time        `json:"last_polled_at,omitempty" db:"last_polled_at"`
	Revoked         bool             `json:"revoked" db:"revoked"`
}
