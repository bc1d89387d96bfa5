package oauth_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssoengine/internal/services/oauth"
)

func refreshForm(refreshToken string, scope string) url.Values {
	return url.Values{
		"grant_type":    {string(oauth.GrantRefreshToken)},
		"client_id":     {confidentialID},
		"client_secret": {confidentialSecret},
		"refresh_token": {refreshToken},
		"scope":         {scope},
	}
}

func revokeRequest(token string, hint string) *http.Request {
	r := formRequest("/revoke", url.Values{"token": {token}, "token_type_hint": {hint}})
	r.SetBasicAuth(confidentialID, confidentialSecret)
	return r
}

func TestRefresh_RotatesPair(t *testing.T) {
	s := newSuite(t, nil)
	first := s.mustToken(s.passwordForm("read write"))

	second := s.mustToken(refreshForm(first.RefreshToken, ""))
	assert.NotEmpty(t, second.RefreshToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	claims := s.claims(second.AccessToken)
	assert.Equal(t, []string{"read", "write"}, claims.Scopes)
	assert.Equal(t, s.UserID, claims.Subject)

	// old refresh token is single use
	_, err := s.token(refreshForm(first.RefreshToken, ""))
	requireOAuthError(t, err, oauth.ErrInvalidGrant)

	// old access token is revoked by rotation
	_, err = s.Server.ValidateAuthenticatedRequest(s.Ctx, s.bearer(first.AccessToken))
	requireOAuthError(t, err, oauth.ErrInvalidToken)

	info, err := s.Server.ValidateAuthenticatedRequest(s.Ctx, s.bearer(second.AccessToken))
	require.NoError(t, err)
	assert.Equal(t, claims.ID, info.TokenID)
}

func TestRefresh_ScopeNarrowing(t *testing.T) {
	s := newSuite(t, nil)
	first := s.mustToken(s.passwordForm("read write"))

	narrowed := s.mustToken(refreshForm(first.RefreshToken, "read"))
	assert.Equal(t, []string{"read"}, s.claims(narrowed.AccessToken).Scopes)

	// the narrowed refresh token can never widen again
	_, err := s.token(refreshForm(narrowed.RefreshToken, "read write"))
	oerr := requireOAuthError(t, err, oauth.ErrInvalidScope)
	assert.Contains(t, oerr.Hint, "write")
}

func TestRefresh_EscalationRejectedWithoutConsuming(t *testing.T) {
	s := newSuite(t, nil)
	first := s.mustToken(s.passwordForm("read"))

	_, err := s.token(refreshForm(first.RefreshToken, "admin"))
	requireOAuthError(t, err, oauth.ErrInvalidScope)

	// a rejected scope request happens before consumption
	s.mustToken(refreshForm(first.RefreshToken, "read"))
}

func TestRefresh_RevokedTokenReuse(t *testing.T) {
	s := newSuite(t, nil)
	pair := s.mustToken(s.passwordForm("read"))

	resp, err := s.Server.Revoke(s.Ctx, revokeRequest(pair.RefreshToken, "refresh_token"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)

	_, err = s.token(refreshForm(pair.RefreshToken, ""))
	requireOAuthError(t, err, oauth.ErrInvalidGrant)

	// the earlier access token is still independently verifiable
	info, err := s.Server.ValidateAuthenticatedRequest(s.Ctx, s.bearer(pair.AccessToken))
	require.NoError(t, err)
	assert.Equal(t, s.UserID, info.Subject)
}

func TestRefresh_Failures(t *testing.T) {
	s := newSuite(t, nil)
	pair := s.mustToken(s.passwordForm("read"))

	_, err := s.token(refreshForm("garbage", ""))
	requireOAuthError(t, err, oauth.ErrInvalidGrant)

	_, err = s.token(refreshForm("", ""))
	requireOAuthError(t, err, oauth.ErrInvalidRequest)

	other := refreshForm(pair.RefreshToken, "")
	other.Set("client_id", webID)
	other.Set("client_secret", webSecret)
	_, err = s.token(other)
	requireOAuthError(t, err, oauth.ErrInvalidGrant)

	s.Clock.Advance(oauth.DefaultRefreshTokenTTL)
	_, err = s.token(refreshForm(pair.RefreshToken, ""))
	oerr := requireOAuthError(t, err, oauth.ErrInvalidGrant)
	assert.Contains(t, oerr.Hint, "expired")
}

func TestValidateAuthenticatedRequest(t *testing.T) {
	s := newSuite(t, nil)
	pair := s.mustToken(s.passwordForm("read"))

	info, err := s.Server.ValidateAuthenticatedRequest(s.Ctx, s.bearer(pair.AccessToken))
	require.NoError(t, err)
	assert.Equal(t, confidentialID, info.ClientID)
	assert.True(t, info.HasScope("read"))
	assert.False(t, info.HasScope("write"))

	_, err = s.Server.ValidateAuthenticatedRequest(s.Ctx, s.bearer("not.a.jwt"))
	requireOAuthError(t, err, oauth.ErrInvalidToken)

	r := s.bearer(pair.AccessToken)
	r.Header.Del("Authorization")
	_, err = s.Server.ValidateAuthenticatedRequest(s.Ctx, r)
	oerr := requireOAuthError(t, err, oauth.ErrInvalidToken)
	assert.Equal(t, http.StatusUnauthorized, oerr.Status)

	// expiry wins over a valid signature
	s.Clock.Advance(oauth.DefaultAccessTokenTTL)
	_, err = s.Server.ValidateAuthenticatedRequest(s.Ctx, s.bearer(pair.AccessToken))
	oerr = requireOAuthError(t, err, oauth.ErrInvalidToken)
	assert.Contains(t, oerr.Hint, "expired")
}

func TestRevoke_AccessToken(t *testing.T) {
	s := newSuite(t, nil)
	pair := s.mustToken(s.passwordForm("read"))

	resp, err := s.Server.Revoke(s.Ctx, revokeRequest(pair.AccessToken, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	_, err = s.Server.ValidateAuthenticatedRequest(s.Ctx, s.bearer(pair.AccessToken))
	requireOAuthError(t, err, oauth.ErrInvalidToken)

	// idempotent
	resp, err = s.Server.Revoke(s.Ctx, revokeRequest(pair.AccessToken, "access_token"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestRevoke_UnknownAndForeignTokens(t *testing.T) {
	s := newSuite(t, nil)

	resp, err := s.Server.Revoke(s.Ctx, revokeRequest("never-issued", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)

	pair := s.mustToken(s.passwordForm("read"))
	r := formRequest("/revoke", url.Values{"token": {pair.AccessToken}})
	r.SetBasicAuth(webID, webSecret)
	resp, err = s.Server.Revoke(s.Ctx, r)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	_, err = s.Server.ValidateAuthenticatedRequest(s.Ctx, s.bearer(pair.AccessToken))
	assert.NoError(t, err)
}

func TestRevoke_RequiresClientAuthentication(t *testing.T) {
	s := newSuite(t, nil)
	r := formRequest("/revoke", url.Values{"token": {"x"}})
	r.SetBasicAuth(confidentialID, "wrong")
	_, err := s.Server.Revoke(s.Ctx, r)
	requireOAuthError(t, err, oauth.ErrInvalidClient)
}

func TestIntrospect(t *testing.T) {
	s := newSuite(t, func(c *oauth.Config) { c.Issuer = "https://sso.test" })
	pair := s.mustToken(s.passwordForm("read write"))

	introspect := func(token, hint string) map[string]any {
		r := formRequest("/introspect", url.Values{"token": {token}, "token_type_hint": {hint}})
		r.SetBasicAuth(confidentialID, confidentialSecret)
		resp, err := s.Server.Introspect(s.Ctx, r)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		return decodeJSON(t, resp.Body)
	}

	body := introspect(pair.AccessToken, "")
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "read write", body["scope"])
	assert.Equal(t, confidentialID, body["client_id"])
	assert.Equal(t, s.UserID, body["sub"])
	assert.Equal(t, "https://sso.test", body["iss"])
	assert.Equal(t, s.claims(pair.AccessToken).ID, body["jti"])

	body = introspect(pair.RefreshToken, "refresh_token")
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "refresh_token", body["token_type"])

	body = introspect("garbage", "")
	assert.Equal(t, map[string]any{"active": false}, body)

	_, err := s.Server.Revoke(s.Ctx, revokeRequest(pair.AccessToken, "access_token"))
	require.NoError(t, err)
	body = introspect(pair.AccessToken, "access_token")
	assert.Equal(t, map[string]any{"active": false}, body)

	s.Clock.Advance(oauth.DefaultRefreshTokenTTL)
	body = introspect(pair.RefreshToken, "refresh_token")
	assert.Equal(t, map[string]any{"active": false}, body)
}
