package models

import "slices"

// Client is an OAuth client registered with the authorization server
type Client struct {
	ID           string   `json:"id" db:"id"`
	Name         string   `json:"name" db:"name"`
	SecretHash   []byte   `json:"-" db:"secret_hash"`
	RedirectURIs []string `json:"redirect_uris" db:"redirect_uris"`
	Grants       []string `json:"grants" db:"grants"`
	Confidential bool     `json:"confidential" db:"confidential"`
}

// IsConfidential reports whether the client authenticates with a secret
func (c *Client) IsConfidential() bool {
	return c.Confidential
}

// HasRedirectURI checks exact match against registered redirect uris
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// DefaultRedirectURI returns the only registered uri, or "" when there are several
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) != 1 {
		return ""
	}
	return c.RedirectURIs[0]
}

// AllowsGrant reports whether grant is allow-listed for the client.
// An empty allow-list permits every grant.
func (c *Client) AllowsGrant(grant string) bool {
	if len(c.Grants) == 0 {
		return true
	}
	return slices.Contains(c.Grants, grant)
}
