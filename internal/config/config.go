package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"ssoengine/internal/services/oauth"
)

type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Storage  StorageConfig  `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Signing  SigningConfig  `yaml:"signing"`
	Seed     SeedConfig     `yaml:"seed"`
}

type HTTPConfig struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// UserHeader carries the user id set by the authenticating proxy in front of /authorize
	UserHeader string `yaml:"user_header" env-default:"X-Authenticated-User"`
}

type OAuthConfig struct {
	Issuer                string                   `yaml:"issuer" env:"OAUTH_ISSUER"`
	Grants                []string                 `yaml:"grants"`
	AccessTokenTTL        time.Duration            `yaml:"access_token_ttl" env-default:"1h"`
	RefreshTokenTTL       time.Duration            `yaml:"refresh_token_ttl" env-default:"720h"`
	AuthCodeTTL           time.Duration            `yaml:"auth_code_ttl" env-default:"10m"`
	DeviceCodeTTL         time.Duration            `yaml:"device_code_ttl" env-default:"10m"`
	AccessTokenTTLByGrant map[string]time.Duration `yaml:"access_token_ttl_by_grant"`
	DevicePollInterval    time.Duration            `yaml:"device_poll_interval" env-default:"5s"`
	VerificationURI       string                   `yaml:"verification_uri" env-default:"/device"`
	DefaultScopes         []string                 `yaml:"default_scopes"`
	// AllowPublicWithoutPKCE lets public clients skip the code challenge
	AllowPublicWithoutPKCE bool `yaml:"allow_public_clients_without_pkce"`
	IdentifierRetries      int  `yaml:"identifier_retries" env-default:"10"`
	// EncryptionKey is the base64 encoded 32 byte key sealing codes and refresh tokens
	EncryptionKey string `yaml:"encryption_key" env:"OAUTH_ENCRYPTION_KEY" env-required:"true"`
}

// StorageConfig selects repository implementations
type StorageConfig struct {
	// Driver is "memory" or "postgres" and backs clients, scopes and users
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
	// Tokens is "memory", "postgres" or "redis" and backs tokens and codes
	Tokens string `yaml:"tokens" env:"STORAGE_TOKENS" env-default:"memory"`
	// UseCache puts redis in front of postgres client and scope lookups
	UseCache        bool          `yaml:"use_cache"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env-default:"1m"`
}

type PostgresConfig struct {
	ConnString string `yaml:"conn_string" env:"DATABASE_URL"`
}

type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"5m"`
}

// SigningConfig selects where the access token signing key lives
type SigningConfig struct {
	// Provider is "local" (PEM file or ephemeral key) or "vault" (transit engine)
	Provider       string      `yaml:"provider" env:"SIGNING_PROVIDER" env-default:"local"`
	PrivateKeyPath string      `yaml:"private_key_path" env:"SIGNING_KEY_PATH"`
	Vault          VaultConfig `yaml:"vault"`
}

type VaultConfig struct {
	Address      string        `yaml:"address" env:"VAULT_ADDR" env-default:"http://vault:8200"`
	Token        string        `yaml:"token" env:"VAULT_TOKEN"`
	RoleIDPath   string        `yaml:"role_id_path" env-default:"./secrets/role_id.txt"`
	SecretIDPath string        `yaml:"secret_id_path" env-default:"./secrets/secret_id.txt"`
	KeyName      string        `yaml:"key_name" env-default:"jwt_keys"`
	Timeout      time.Duration `yaml:"timeout" env-default:"30s"`
	KeysCacheTTL time.Duration `yaml:"keys_cache_ttl" env-default:"5m"`
}

// SeedConfig lists records loaded into storage at startup
type SeedConfig struct {
	Clients []SeedClient `yaml:"clients"`
	Scopes  []SeedScope  `yaml:"scopes"`
	Users   []SeedUser   `yaml:"users"`
}

type SeedClient struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Secret       string   `yaml:"secret"`
	RedirectURIs []string `yaml:"redirect_uris"`
	Grants       []string `yaml:"grants"`
}

type SeedScope struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
}

type SeedUser struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Scopes   []string `yaml:"scopes"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}
	return MustLoadPath(path)
}

func MustLoadPath(path string) *Config {
	cfg, err := LoadPath(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadPath reads .env (if present), then the yaml file, then environment overrides
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config path does not exist: %s", path)
	}

	// a missing .env is fine, values may come from the real environment
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Engine builds the immutable engine configuration
func (c *Config) Engine() oauth.Config {
	cfg := oauth.Config{
		Issuer:                               c.OAuth.Issuer,
		AccessTokenTTL:                       c.OAuth.AccessTokenTTL,
		RefreshTokenTTL:                      c.OAuth.RefreshTokenTTL,
		AuthCodeTTL:                          c.OAuth.AuthCodeTTL,
		DeviceCodeTTL:                        c.OAuth.DeviceCodeTTL,
		DevicePollInterval:                   c.OAuth.DevicePollInterval,
		VerificationURI:                      c.OAuth.VerificationURI,
		DefaultScopes:                        c.OAuth.DefaultScopes,
		RequireCodeChallengeForPublicClients: !c.OAuth.AllowPublicWithoutPKCE,
		IdentifierRetries:                    c.OAuth.IdentifierRetries,
		AccessTokenTTLByGrant:                make(map[oauth.GrantType]time.Duration, len(c.OAuth.AccessTokenTTLByGrant)),
	}
	if len(c.OAuth.Grants) == 0 {
		cfg.Grants = oauth.DefaultConfig().Grants
	}
	for _, g := range c.OAuth.Grants {
		cfg.Grants = append(cfg.Grants, oauth.GrantType(g))
	}
	for g, ttl := range c.OAuth.AccessTokenTTLByGrant {
		cfg.AccessTokenTTLByGrant[oauth.GrantType(g)] = ttl
	}
	return cfg
}

// Priority: flag > env > default
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
