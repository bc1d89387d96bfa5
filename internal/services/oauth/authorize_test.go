package oauth_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"ssoengine/internal/services/oauth"
)

func authorizeRequest(q url.Values) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil)
}

// authorize runs both authorize phases for the public client and returns the redirect location
func (s *Suite) authorize(q url.Values, approved bool) *url.URL {
	s.Helper()
	req, err := s.Server.ValidateAuthorizationRequest(s.Ctx, authorizeRequest(q))
	require.NoError(s, err)
	req.UserID = s.UserID
	req.Approved = approved

	resp, err := s.Server.CompleteAuthorizationRequest(s.Ctx, req)
	require.NoError(s, err)
	require.Equal(s, http.StatusFound, resp.Status)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(s, err)
	return loc
}

// issueCode returns a code bound to verifier (S256) and redirectURI
func (s *Suite) issueCode(verifier string) string {
	s.Helper()
	loc := s.authorize(url.Values{
		"response_type":         {"code"},
		"client_id":             {publicID},
		"redirect_uri":          {redirectURI},
		"scope":                 {"read write"},
		"state":                 {"xyz"},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"S256"},
	}, true)
	assert.Equal(s, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(s, code)
	return code
}

func redeemForm(code, verifier, redirect string) url.Values {
	return url.Values{
		"grant_type":    {string(oauth.GrantAuthorizationCode)},
		"client_id":     {publicID},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {redirect},
	}
}

func TestAuthCode_PKCE_HappyPath(t *testing.T) {
	s := newSuite(t, nil)
	verifier := oauth2.GenerateVerifier()
	code := s.issueCode(verifier)

	tr := s.mustToken(redeemForm(code, verifier, redirectURI))
	assert.NotEmpty(t, tr.RefreshToken)

	claims := s.claims(tr.AccessToken)
	assert.Equal(t, s.UserID, claims.Subject)
	assert.Equal(t, publicID, claims.ClientID())
	assert.Equal(t, []string{"read", "write"}, claims.Scopes)
}

func TestAuthCode_PKCE_Mismatches(t *testing.T) {
	s := newSuite(t, nil)
	verifier := oauth2.GenerateVerifier()

	code := s.issueCode(verifier)
	_, err := s.token(redeemForm(code, oauth2.GenerateVerifier(), redirectURI))
	requireOAuthError(t, err, oauth.ErrInvalidGrant)

	code = s.issueCode(verifier)
	_, err = s.token(redeemForm(code, verifier, otherRedirectURI))
	requireOAuthError(t, err, oauth.ErrInvalidGrant)
}

func TestAuthCode_FailedRedemptionConsumesCode(t *testing.T) {
	s := newSuite(t, nil)
	verifier := oauth2.GenerateVerifier()
	code := s.issueCode(verifier)

	_, err := s.token(redeemForm(code, oauth2.GenerateVerifier(), redirectURI))
	requireOAuthError(t, err, oauth.ErrInvalidGrant)

	_, err = s.token(redeemForm(code, verifier, redirectURI))
	requireOAuthError(t, err, oauth.ErrInvalidGrant)
}

func TestAuthCode_TamperedCodeIsInvalidGrant(t *testing.T) {
	s := newSuite(t, nil)
	verifier := oauth2.GenerateVerifier()
	code := s.issueCode(verifier)

	mid := len(code) / 2
	replacement := "A"
	if code[mid] == 'A' {
		replacement = "B"
	}
	tampered := code[:mid] + replacement + code[mid+1:]
	_, err := s.token(redeemForm(tampered, verifier, redirectURI))
	requireOAuthError(t, err, oauth.ErrInvalidGrant)

	// the untouched code is still redeemable
	s.mustToken(redeemForm(code, verifier, redirectURI))
}

func TestAuthCode_SingleUse(t *testing.T) {
	s := newSuite(t, nil)
	verifier := oauth2.GenerateVerifier()
	code := s.issueCode(verifier)

	s.mustToken(redeemForm(code, verifier, redirectURI))
	_, err := s.token(redeemForm(code, verifier, redirectURI))
	requireOAuthError(t, err, oauth.ErrInvalidGrant)
}

func TestAuthCode_SingleUseConcurrent(t *testing.T) {
	s := newSuite(t, nil)
	verifier := oauth2.GenerateVerifier()
	code := s.issueCode(verifier)

	const workers = 12
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.token(redeemForm(code, verifier, redirectURI)); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestAuthCode_Expired(t *testing.T) {
	s := newSuite(t, nil)
	verifier := oauth2.GenerateVerifier()
	code := s.issueCode(verifier)

	s.Clock.Advance(oauth.DefaultAuthCodeTTL)
	_, err := s.token(redeemForm(code, verifier, redirectURI))
	oerr := requireOAuthError(t, err, oauth.ErrInvalidGrant)
	assert.Contains(t, oerr.Hint, "expired")
}

func TestAuthCode_OtherClientCannotRedeem(t *testing.T) {
	s := newSuite(t, nil)
	verifier := oauth2.GenerateVerifier()
	code := s.issueCode(verifier)

	form := redeemForm(code, verifier, redirectURI)
	form.Set("client_id", webID)
	form.Set("client_secret", webSecret)
	_, err := s.token(form)
	requireOAuthError(t, err, oauth.ErrInvalidGrant)
}

func TestAuthCode_PlainChallengeAndConfidentialWithoutPKCE(t *testing.T) {
	s := newSuite(t, nil)

	verifier := oauth2.GenerateVerifier()
	loc := s.authorize(url.Values{
		"response_type":  {"code"},
		"client_id":      {publicID},
		"redirect_uri":   {redirectURI},
		"code_challenge": {verifier},
	}, true)
	s.mustToken(redeemForm(loc.Query().Get("code"), verifier, redirectURI))

	loc = s.authorize(url.Values{
		"response_type": {"code"},
		"client_id":     {webID},
		"redirect_uri":  {redirectURI},
		"scope":         {"read"},
	}, true)
	tr := s.mustToken(url.Values{
		"grant_type":    {string(oauth.GrantAuthorizationCode)},
		"client_id":     {webID},
		"client_secret": {webSecret},
		"code":          {loc.Query().Get("code")},
		"redirect_uri":  {redirectURI},
	})
	assert.Equal(t, []string{"read"}, s.claims(tr.AccessToken).Scopes)
}

func TestAuthCode_VerifierWithoutChallenge(t *testing.T) {
	s := newSuite(t, nil)
	loc := s.authorize(url.Values{
		"response_type": {"code"},
		"client_id":     {webID},
		"redirect_uri":  {redirectURI},
	}, true)
	_, err := s.token(url.Values{
		"grant_type":    {string(oauth.GrantAuthorizationCode)},
		"client_id":     {webID},
		"client_secret": {webSecret},
		"code":          {loc.Query().Get("code")},
		"redirect_uri":  {redirectURI},
		"code_verifier": {oauth2.GenerateVerifier()},
	})
	requireOAuthError(t, err, oauth.ErrInvalidRequest)
}

func TestAuthorize_ValidationErrors(t *testing.T) {
	s := newSuite(t, nil)
	challenge := oauth2.S256ChallengeFromVerifier(oauth2.GenerateVerifier())

	tests := []struct {
		name     string
		query    url.Values
		code     oauth.ErrorCode
		redirect bool
	}{
		{
			name:  "unknown client",
			query: url.Values{"response_type": {"code"}, "client_id": {"ghost"}},
			code:  oauth.ErrInvalidClient,
		},
		{
			name:  "unregistered redirect",
			query: url.Values{"response_type": {"code"}, "client_id": {publicID}, "redirect_uri": {"https://evil/cb"}},
			code:  oauth.ErrInvalidClient,
		},
		{
			name:  "ambiguous default redirect",
			query: url.Values{"response_type": {"code"}, "client_id": {publicID}},
			code:  oauth.ErrInvalidClient,
		},
		{
			name:  "client without redirect uris",
			query: url.Values{"response_type": {"code"}, "client_id": {confidentialID}, "redirect_uri": {redirectURI}},
			code:  oauth.ErrInvalidClient,
		},
		{
			name:  "unsupported response type",
			query: url.Values{"response_type": {"id_token"}, "client_id": {publicID}},
			code:  oauth.ErrUnsupportedResponseType,
		},
		{
			name: "unknown scope",
			query: url.Values{
				"response_type": {"code"}, "client_id": {publicID}, "redirect_uri": {redirectURI},
				"scope": {"nope"}, "code_challenge": {challenge}, "code_challenge_method": {"S256"},
			},
			code:     oauth.ErrInvalidScope,
			redirect: true,
		},
		{
			name:     "public client without challenge",
			query:    url.Values{"response_type": {"code"}, "client_id": {publicID}, "redirect_uri": {redirectURI}},
			code:     oauth.ErrInvalidRequest,
			redirect: true,
		},
		{
			name: "unsupported challenge method",
			query: url.Values{
				"response_type": {"code"}, "client_id": {publicID}, "redirect_uri": {redirectURI},
				"code_challenge": {challenge}, "code_challenge_method": {"S512"},
			},
			code:     oauth.ErrInvalidRequest,
			redirect: true,
		},
		{
			name: "malformed challenge",
			query: url.Values{
				"response_type": {"code"}, "client_id": {publicID}, "redirect_uri": {redirectURI},
				"code_challenge": {"short"},
			},
			code:     oauth.ErrInvalidRequest,
			redirect: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.Set("state", "st8")
			_, err := s.Server.ValidateAuthorizationRequest(s.Ctx, authorizeRequest(tt.query))
			oerr := requireOAuthError(t, err, tt.code)
			assert.Equal(t, tt.redirect, oerr.IsRedirect())
			if !tt.redirect {
				return
			}
			resp := oerr.Response()
			assert.Equal(t, http.StatusFound, resp.Status)
			loc, err := url.Parse(resp.Header.Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, "a", loc.Host)
			assert.Equal(t, string(tt.code), loc.Query().Get("error"))
			assert.Equal(t, "st8", loc.Query().Get("state"))
			assert.NotEmpty(t, loc.Query().Get("message"))
		})
	}
}

func TestAuthorize_Denied(t *testing.T) {
	s := newSuite(t, nil)
	loc := s.authorize(url.Values{
		"response_type":  {"code"},
		"client_id":      {publicID},
		"redirect_uri":   {redirectURI},
		"state":          {"abc"},
		"code_challenge": {oauth2.GenerateVerifier()},
	}, false)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "abc", loc.Query().Get("state"))
	assert.Empty(t, loc.Query().Get("code"))
}

func TestAuthorize_RequiresUser(t *testing.T) {
	s := newSuite(t, nil)
	req, err := s.Server.ValidateAuthorizationRequest(s.Ctx, authorizeRequest(url.Values{
		"response_type": {"code"},
		"client_id":     {webID},
		"redirect_uri":  {redirectURI},
	}))
	require.NoError(t, err)
	req.Approved = true
	_, err = s.Server.CompleteAuthorizationRequest(s.Ctx, req)
	requireOAuthError(t, err, oauth.ErrServerError)
}

func TestImplicit_TokenInFragment(t *testing.T) {
	s := newSuite(t, nil)
	loc := s.authorize(url.Values{
		"response_type": {"token"},
		"client_id":     {publicID},
		"redirect_uri":  {redirectURI},
		"scope":         {"read"},
		"state":         {"s1"},
	}, true)

	assert.Empty(t, loc.RawQuery)
	assert.False(t, strings.Contains(loc.String(), "code="))
	fragment, err := url.ParseQuery(loc.Fragment)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", fragment.Get("token_type"))
	assert.Equal(t, "3600", fragment.Get("expires_in"))
	assert.Equal(t, "s1", fragment.Get("state"))
	assert.Empty(t, fragment.Get("refresh_token"))

	claims := s.claims(fragment.Get("access_token"))
	assert.Equal(t, []string{"read"}, claims.Scopes)
	assert.Equal(t, s.UserID, claims.Subject)
}

func TestImplicit_ErrorsUseFragment(t *testing.T) {
	s := newSuite(t, nil)
	_, err := s.Server.ValidateAuthorizationRequest(s.Ctx, authorizeRequest(url.Values{
		"response_type": {"token"},
		"client_id":     {publicID},
		"redirect_uri":  {redirectURI},
		"scope":         {"nope"},
	}))
	oerr := requireOAuthError(t, err, oauth.ErrInvalidScope)
	assert.True(t, strings.HasPrefix(oerr.RedirectURL(), redirectURI+"#"))

	loc := s.authorize(url.Values{
		"response_type": {"token"},
		"client_id":     {publicID},
		"redirect_uri":  {redirectURI},
	}, false)
	fragment, err := url.ParseQuery(loc.Fragment)
	require.NoError(t, err)
	assert.Equal(t, "access_denied", fragment.Get("error"))
}

func TestImplicit_NotServedByTokenEndpoint(t *testing.T) {
	s := newSuite(t, nil)
	_, err := s.token(url.Values{"grant_type": {"implicit"}, "client_id": {publicID}})
	requireOAuthError(t, err, oauth.ErrUnsupportedGrantType)
}
