// Package vault signs access tokens with a Vault transit key that never leaves Vault.
package vault

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"

	"ssoengine/internal/lib/jwt"
	"ssoengine/internal/storage"
	"ssoengine/internal/storage/protected"
	"ssoengine/internal/storage/redis"
)

const (
	publicKeysCacheKey        = "jwk:pk"
	latestKeyVersionsCacheKey = "jwk:latest_version"
)

// TransitSigner implements jwt.Signer on top of the transit secrets engine.
// The kid of every token is the transit key version that signed it.
type TransitSigner struct {
	v       *protected.Vault
	cache   *redis.CacheWrapper
	keyName string
}

var _ jwt.Signer = (*TransitSigner)(nil)

// NewTransitSigner creates a signer for the transit key keyName; cache may be disabled
func NewTransitSigner(client *protected.Vault, cache *redis.CacheWrapper, keyName string) *TransitSigner {
	return &TransitSigner{v: client, cache: cache, keyName: keyName}
}

// LatestKeyVersion returns the version new tokens are signed with
func (s *TransitSigner) LatestKeyVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.cache.Get(ctx, latestKeyVersionsCacheKey, &version); err == nil {
		return version, nil
	}

	data, err := s.readKey(ctx)
	if err != nil {
		return 0, err
	}
	raw, ok := data["latest_version"]
	if !ok {
		return 0, fmt.Errorf("latest_version field missing")
	}
	version, err = toInt(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid version format: %w", err)
	}
	_ = s.cache.Set(ctx, latestKeyVersionsCacheKey, version)
	return version, nil
}

// Sign builds the JWS signing input locally and lets Vault produce the RS256 signature
func (s *TransitSigner) Sign(ctx context.Context, claims *jwt.AccessClaims) (string, error) {
	const op = "vault.TransitSigner.Sign"

	version, err := s.LatestKeyVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	token := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	token.Header["kid"] = strconv.Itoa(version)
	signingInput, err := token.SigningString()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	resp, err := s.v.Client.Write(ctx, "transit/sign/"+s.keyName, map[string]any{
		"input":                base64.StdEncoding.EncodeToString([]byte(signingInput)),
		"key_version":          version,
		"hash_algorithm":       "sha2-256",
		"signature_algorithm":  "pkcs1v15",
		"marshaling_algorithm": "jws",
	})
	if err != nil {
		return "", fmt.Errorf("%s: vault signing failed: %w", op, err)
	}
	if resp == nil || resp.Data == nil {
		return "", fmt.Errorf("%s: empty response from vault", op)
	}
	signature, ok := resp.Data["signature"].(string)
	if !ok {
		return "", fmt.Errorf("%s: signature missing in response", op)
	}
	// strip "vault:v<N>:" prefix
	if i := strings.LastIndex(signature, ":"); i >= 0 {
		signature = signature[i+1:]
	}
	return signingInput + "." + signature, nil
}

// RotateKey creates a new key version; old versions keep verifying
func (s *TransitSigner) RotateKey(ctx context.Context) error {
	if _, err := s.v.Client.Write(ctx, "transit/keys/"+s.keyName+"/rotate", nil); err != nil {
		return fmt.Errorf("key rotation failed: %w", err)
	}
	err := s.cache.Invalidate(ctx, latestKeyVersionsCacheKey, publicKeysCacheKey)
	if err != nil && !errors.Is(err, storage.InfoCacheDisabled) {
		return err
	}
	return nil
}

// PublicKeys returns every key version as a JWK set
func (s *TransitSigner) PublicKeys(ctx context.Context) (jwk.Set, error) {
	var cached json.RawMessage
	if err := s.cache.Get(ctx, publicKeysCacheKey, &cached); err == nil {
		if set, err := jwk.Parse(cached); err == nil {
			return set, nil
		}
	}

	data, err := s.readKey(ctx)
	if err != nil {
		return nil, err
	}
	versions, ok := data["keys"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("keys missing in response")
	}
	set := jwk.NewSet()
	for ver, keyData := range versions {
		entry, ok := keyData.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected key entry for version %s", ver)
		}
		pemKey, ok := entry["public_key"].(string)
		if !ok {
			return nil, fmt.Errorf("public_key missing for version %s", ver)
		}
		key, err := convertPemToJwk(pemKey, ver)
		if err != nil {
			return nil, fmt.Errorf("failed to convert public key: %w", err)
		}
		set.Add(key)
	}

	if raw, err := json.Marshal(set); err == nil {
		_ = s.cache.Set(ctx, publicKeysCacheKey, json.RawMessage(raw))
	}
	return set, nil
}

func (s *TransitSigner) readKey(ctx context.Context) (map[string]any, error) {
	resp, err := s.v.Client.Read(ctx, "transit/keys/"+s.keyName)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("empty response from vault")
	}
	return resp.Data, nil
}

func convertPemToJwk(pemKey string, ver string) (jwk.Key, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("invalid public key format")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	key, err := jwk.New(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK: %w", err)
	}
	_ = key.Set(jwk.KeyIDKey, ver)
	_ = key.Set(jwk.AlgorithmKey, jwa.RS256)
	_ = key.Set(jwk.KeyUsageKey, "sig")
	return key, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}
