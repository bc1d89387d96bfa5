package oauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ssoengine/internal/domain/models"
	"ssoengine/internal/lib/jwt"
	"ssoengine/internal/lib/secretbox"
	"ssoengine/internal/services/oauth"
	"ssoengine/internal/storage/memory"
)

const (
	confidentialID     = "c1"
	confidentialSecret = "s1"
	webID              = "web"
	webSecret          = "web-secret"
	publicID           = "spa"
	redirectURI        = "https://a/cb"
	otherRedirectURI   = "https://a/other"
	userName           = "alice"
	userPassword       = "correct horse battery staple"
)

var (
	signerOnce sync.Once
	testSigner *jwt.RSASigner
)

// sharedSigner avoids generating an RSA key per test
func sharedSigner(t *testing.T) *jwt.RSASigner {
	t.Helper()
	signerOnce.Do(func() {
		s, err := jwt.GenerateRSASigner(2048)
		if err != nil {
			panic(err)
		}
		testSigner = s
	})
	return testSigner
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type Suite struct {
	*testing.T
	Ctx    context.Context
	Server *oauth.Server
	Store  *memory.Storage
	Signer *jwt.RSASigner
	Clock  *clock
	UserID string
}

// newSuite seeds clients, scopes and a user into memory storage and builds a server
func newSuite(t *testing.T, cfgFn func(*oauth.Config), opts ...oauth.Option) *Suite {
	t.Helper()
	ctx := context.Background()

	store := memory.New(time.Minute)
	require.NoError(t, store.SaveClient(ctx, models.Client{ID: confidentialID, Name: "machine"}, confidentialSecret))
	require.NoError(t, store.SaveClient(ctx, models.Client{
		ID:           webID,
		RedirectURIs: []string{redirectURI, otherRedirectURI},
	}, webSecret))
	require.NoError(t, store.SaveClient(ctx, models.Client{
		ID:           publicID,
		RedirectURIs: []string{redirectURI, otherRedirectURI},
		Grants: []string{
			string(oauth.GrantAuthorizationCode),
			string(oauth.GrantRefreshToken),
			string(oauth.GrantImplicit),
			string(oauth.GrantDeviceCode),
		},
	}, ""))
	for _, id := range []string{"read", "write", "admin"} {
		require.NoError(t, store.SaveScope(ctx, models.Scope{ID: id, Description: id + " access"}))
	}
	userID, err := store.SaveUser(ctx, userName, userPassword)
	require.NoError(t, err)

	key, err := secretbox.GenerateKey()
	require.NoError(t, err)
	box, err := secretbox.New(key)
	require.NoError(t, err)

	clk := &clock{now: time.Now().Truncate(time.Second)}
	cfg := oauth.DefaultConfig()
	if cfgFn != nil {
		cfgFn(&cfg)
	}

	signer := sharedSigner(t)
	srv, err := oauth.NewServer(cfg, oauth.Deps{
		Log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clients:       store,
		Scopes:        store,
		AccessTokens:  store,
		RefreshTokens: store,
		AuthCodes:     store,
		DeviceCodes:   store,
		Users:         store,
		Signer:        signer,
		Encrypter:     box,
	}, append([]oauth.Option{oauth.WithClock(clk.Now)}, opts...)...)
	require.NoError(t, err)

	return &Suite{
		T:      t,
		Ctx:    ctx,
		Server: srv,
		Store:  store,
		Signer: signer,
		Clock:  clk,
		UserID: userID,
	}
}

func formRequest(target string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

// token posts form to the token endpoint
func (s *Suite) token(form url.Values) (*oauth.Response, error) {
	return s.Server.RespondToAccessTokenRequest(s.Ctx, formRequest("/token", form))
}

// mustToken posts form and decodes a successful token response
func (s *Suite) mustToken(form url.Values) oauth.TokenResponse {
	s.Helper()
	resp, err := s.token(form)
	require.NoError(s, err)
	require.Equal(s, http.StatusOK, resp.Status)
	var tr oauth.TokenResponse
	require.NoError(s, json.Unmarshal(resp.Body, &tr))
	return tr
}

// requireOAuthError asserts err is an *oauth.Error with code
func requireOAuthError(t *testing.T, err error, code oauth.ErrorCode) *oauth.Error {
	t.Helper()
	require.Error(t, err)
	var oerr *oauth.Error
	require.True(t, errors.As(err, &oerr), "expected *oauth.Error, got %T", err)
	require.Equal(t, code, oerr.Code, "hint: %s", oerr.Hint)
	return oerr
}

func (s *Suite) bearer(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/resource", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func (s *Suite) claims(token string) *jwt.AccessClaims {
	s.Helper()
	claims, err := jwt.NewVerifier(s.Signer, jwt.WithTimeFunc(s.Clock.Now)).Verify(s.Ctx, token)
	require.NoError(s, err)
	return claims
}

func (s *Suite) passwordForm(scope string) url.Values {
	return url.Values{
		"grant_type":    {string(oauth.GrantPassword)},
		"client_id":     {confidentialID},
		"client_secret": {confidentialSecret},
		"username":      {userName},
		"password":      {userPassword},
		"scope":         {scope},
	}
}

func decodeJSON(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	return m
}
