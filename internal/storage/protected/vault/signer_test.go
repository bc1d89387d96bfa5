package vault

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ssoengine/internal/config"
	"ssoengine/internal/lib/jwt"
	"ssoengine/internal/storage/protected"
	"ssoengine/internal/storage/redis"
)

// fakeTransit emulates the transit endpoints used by TransitSigner
type fakeTransit struct {
	mu    sync.Mutex
	keys  []*rsa.PrivateKey
	reads int
}

func (f *fakeTransit) rotate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
}

func (f *fakeTransit) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transit/keys/jwt_keys", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.reads++
		keys := map[string]any{}
		for i, key := range f.keys {
			der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			require.NoError(t, err)
			keys[strconv.Itoa(i+1)] = map[string]any{
				"public_key": string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})),
			}
		}
		writeData(w, map[string]any{"latest_version": len(f.keys), "keys": keys})
	})
	mux.HandleFunc("/v1/transit/keys/jwt_keys/rotate", func(w http.ResponseWriter, r *http.Request) {
		f.rotate(t)
		writeData(w, map[string]any{})
	})
	mux.HandleFunc("/v1/transit/sign/jwt_keys", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input      string `json:"input"`
			KeyVersion int    `json:"key_version"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		input, err := base64.StdEncoding.DecodeString(body.Input)
		require.NoError(t, err)

		f.mu.Lock()
		key := f.keys[body.KeyVersion-1]
		f.mu.Unlock()
		digest := sha256.Sum256(input)
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
		require.NoError(t, err)
		writeData(w, map[string]any{
			"signature": "vault:v" + strconv.Itoa(body.KeyVersion) + ":" + base64.RawURLEncoding.EncodeToString(sig),
		})
	})
	return mux
}

func writeData(w http.ResponseWriter, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func newTransitSigner(t *testing.T) (*TransitSigner, *fakeTransit) {
	t.Helper()
	fake := &fakeTransit{}
	fake.rotate(t)
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	v, err := protected.NewVaultClient(config.VaultConfig{Address: srv.URL, Token: "root", Timeout: 5 * time.Second})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewTransitSigner(v, redis.NewCacheWrapper(rdb, time.Minute), "jwt_keys"), fake
}

func newClaims(now time.Time) *jwt.AccessClaims {
	return jwt.NewAccessClaims(gofakeit.UUID(), "https://sso.local", "c1", "u1",
		[]string{"read"}, now, now.Add(time.Hour))
}

func TestTransitSigner_SignVerify(t *testing.T) {
	ctx := context.Background()
	signer, _ := newTransitSigner(t)

	now := time.Now().Truncate(time.Second)
	token, err := signer.Sign(ctx, newClaims(now))
	require.NoError(t, err)

	claims, err := jwt.NewVerifier(signer).Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "c1", claims.ClientID())
}

func TestTransitSigner_RotationKeepsOldTokensValid(t *testing.T) {
	ctx := context.Background()
	signer, _ := newTransitSigner(t)
	verifier := jwt.NewVerifier(signer)

	now := time.Now().Truncate(time.Second)
	before, err := signer.Sign(ctx, newClaims(now))
	require.NoError(t, err)

	require.NoError(t, signer.RotateKey(ctx))
	version, err := signer.LatestKeyVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	after, err := signer.Sign(ctx, newClaims(now))
	require.NoError(t, err)

	keys, err := signer.PublicKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, keys.Len())

	_, err = verifier.Verify(ctx, before)
	assert.NoError(t, err)
	_, err = verifier.Verify(ctx, after)
	assert.NoError(t, err)
}

func TestTransitSigner_PublicKeysCached(t *testing.T) {
	ctx := context.Background()
	signer, fake := newTransitSigner(t)

	_, err := signer.PublicKeys(ctx)
	require.NoError(t, err)
	fake.mu.Lock()
	reads := fake.reads
	fake.mu.Unlock()

	set, err := signer.PublicKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, reads, fake.reads)
}
