package oauth

import (
	"slices"
	"time"
)

// GrantType identifies a grant strategy
type GrantType string

const (
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantImplicit          GrantType = "implicit"
	GrantDeviceCode        GrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

// Default lifetimes used when Config leaves a value at zero
const (
	DefaultAccessTokenTTL      = time.Hour
	DefaultRefreshTokenTTL     = 30 * 24 * time.Hour
	DefaultAuthCodeTTL         = 10 * time.Minute
	DefaultDeviceCodeTTL       = 10 * time.Minute
	DefaultDevicePollInterval  = 5 * time.Second
	DefaultIdentifierRetries   = 10
	DefaultVerificationURIPath = "/device"
)

// Config is the immutable engine configuration, fixed at construction
type Config struct {
	// Issuer is written to the iss claim and required on verification when set
	Issuer string
	// Grants enabled in dispatch order
	Grants []GrantType

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthCodeTTL     time.Duration
	DeviceCodeTTL   time.Duration
	// AccessTokenTTLByGrant overrides AccessTokenTTL per grant
	AccessTokenTTLByGrant map[GrantType]time.Duration

	DevicePollInterval time.Duration
	VerificationURI    string

	// DefaultScopes substitute an empty scope request
	DefaultScopes []string

	RequireCodeChallengeForPublicClients bool
	IdentifierRetries                    int
}

// DefaultConfig enables every built-in grant with default lifetimes
func DefaultConfig() Config {
	return Config{
		Grants: []GrantType{
			GrantClientCredentials,
			GrantPassword,
			GrantAuthorizationCode,
			GrantRefreshToken,
			GrantImplicit,
			GrantDeviceCode,
		},
		AccessTokenTTL:                       DefaultAccessTokenTTL,
		RefreshTokenTTL:                      DefaultRefreshTokenTTL,
		AuthCodeTTL:                          DefaultAuthCodeTTL,
		DeviceCodeTTL:                        DefaultDeviceCodeTTL,
		DevicePollInterval:                   DefaultDevicePollInterval,
		VerificationURI:                      DefaultVerificationURIPath,
		RequireCodeChallengeForPublicClients: true,
		IdentifierRetries:                    DefaultIdentifierRetries,
	}
}

// withDefaults fills zero durations; the receiver is a copy so the caller's value is untouched
func (c Config) withDefaults() Config {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.AuthCodeTTL <= 0 {
		c.AuthCodeTTL = DefaultAuthCodeTTL
	}
	if c.DeviceCodeTTL <= 0 {
		c.DeviceCodeTTL = DefaultDeviceCodeTTL
	}
	if c.DevicePollInterval <= 0 {
		c.DevicePollInterval = DefaultDevicePollInterval
	}
	if c.VerificationURI == "" {
		c.VerificationURI = DefaultVerificationURIPath
	}
	if c.IdentifierRetries <= 0 {
		c.IdentifierRetries = DefaultIdentifierRetries
	}
	c.Grants = slices.Clone(c.Grants)
	c.DefaultScopes = slices.Clone(c.DefaultScopes)
	byGrant := make(map[GrantType]time.Duration, len(c.AccessTokenTTLByGrant))
	for g, ttl := range c.AccessTokenTTLByGrant {
		byGrant[g] = ttl
	}
	c.AccessTokenTTLByGrant = byGrant
	return c
}

func (c Config) accessTokenTTL(grant GrantType) time.Duration {
	if ttl, ok := c.AccessTokenTTLByGrant[grant]; ok && ttl > 0 {
		return ttl
	}
	return c.AccessTokenTTL
}

func (c Config) grantEnabled(grant GrantType) bool {
	return slices.Contains(c.Grants, grant)
}
