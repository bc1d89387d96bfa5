package app_test

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssoengine/internal/app"
	"ssoengine/internal/config"
	"ssoengine/internal/lib/secretbox"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	key, err := secretbox.GenerateKey()
	require.NoError(t, err)

	return &config.Config{
		Env:  "local",
		HTTP: config.HTTPConfig{Address: "127.0.0.1:0", Timeout: time.Second, UserHeader: "X-Authenticated-User"},
		OAuth: config.OAuthConfig{
			Issuer:        "http://localhost",
			EncryptionKey: base64.StdEncoding.EncodeToString(key),
		},
		Storage: config.StorageConfig{Driver: app.DriverMemory, Tokens: app.DriverMemory, CleanupInterval: time.Minute},
		Signing: config.SigningConfig{Provider: app.SigningLocal},
		Seed: config.SeedConfig{
			Scopes:  []config.SeedScope{{ID: "read"}, {ID: "write"}},
			Clients: []config.SeedClient{{ID: "c1", Secret: "s1"}},
			Users:   []config.SeedUser{{Username: "alice", Password: "pw", Scopes: []string{"read"}}},
		},
	}
}

func newApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Stop(context.Background()) })
	return a
}

func postToken(h http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("c1", "s1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_MemorySeeded(t *testing.T) {
	a := newApp(t, testConfig(t))
	require.NotNil(t, a.HTTPSrv)

	rec := postToken(a.Handler, url.Values{"grant_type": {"client_credentials"}, "scope": {"read write"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// seeded user is limited to read
	rec = postToken(a.Handler, url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"pw"},
		"scope":      {"read write"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"scope":"read"`)
}

func TestNew_RedisTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Storage.Tokens = app.DriverRedis
	cfg.Redis = config.RedisConfig{Host: mr.Host(), Port: port}
	a := newApp(t, cfg)

	rec := postToken(a.Handler, url.Values{"grant_type": {"client_credentials"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, mr.Keys())
}

func TestNew_Errors(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown storage driver", func(c *config.Config) { c.Storage.Driver = "mongo" }},
		{"unknown token storage", func(c *config.Config) { c.Storage.Tokens = "etcd" }},
		{"unknown signing provider", func(c *config.Config) { c.Signing.Provider = "hsm" }},
		{"bad encryption key", func(c *config.Config) { c.OAuth.EncryptionKey = "short" }},
		{"missing signing key file", func(c *config.Config) { c.Signing.PrivateKeyPath = "/nonexistent/key.pem" }},
		{"unknown grant", func(c *config.Config) { c.OAuth.Grants = []string{"magic"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := app.New(context.Background(), log, cfg)
			require.Error(t, err)
		})
	}
}
