// Package config loads the gateway's trust configuration from an optional
// YAML file with environment-variable overrides. The resulting Config is
// read-only after startup and shared by all requests.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TeleportSection configures validation of inbound Teleport assertions.
type TeleportSection struct {
	// JWKSURL is the identity source's public key-set endpoint.
	JWKSURL string `yaml:"jwks_url"`

	// ValidationEnabled controls inbound signature/expiry checking.
	// Disabling it is a development mode and is logged loudly at startup.
	ValidationEnabled bool `yaml:"validation_enabled"`

	// IdentityClaim is the canonical inbound claim carrying the username.
	// Teleport emits "username"; some deployments emit "user_name".
	// Exactly one name is honored per deployment.
	IdentityClaim string `yaml:"identity_claim"`

	// RolesClaim names the inbound role-list claim carried forward as
	// "teleport_roles" in minted tokens.
	RolesClaim string `yaml:"roles_claim"`

	// JWKSCacheSeconds bounds how often the remote key set is refetched.
	JWKSCacheSeconds int64 `yaml:"jwks_cache_seconds"`
}

// Config is the process-wide gateway configuration.
type Config struct {
	// ListenAddr is the public listener (proxy + well-known endpoints).
	ListenAddr string `yaml:"listen_addr"`

	// MetadataAddr is the health/readiness/metrics listener.
	MetadataAddr string `yaml:"metadata_addr"`

	// UpstreamURL is the backend all translated requests are forwarded to.
	UpstreamURL string `yaml:"upstream_url"`

	Teleport TeleportSection `yaml:"teleport"`

	// Issuer is the issuer URL embedded in minted tokens and advertised
	// by the discovery document.
	Issuer string `yaml:"issuer"`

	// Audience is minted as a single-element aud list.
	Audience string `yaml:"audience"`

	// TokenTTLSeconds is the minted token lifetime.
	TokenTTLSeconds int64 `yaml:"token_ttl_seconds"`

	// SigningKeyFile points at a PEM-encoded RSA private key. Empty means
	// an ephemeral key is generated at startup (not for production).
	SigningKeyFile string `yaml:"signing_key_file"`

	// SPIFFESocket enables secret-less mTLS serving via the Workload API.
	SPIFFESocket string `yaml:"spiffe_socket"`

	// TLSCertFile/TLSKeyFile enable static-cert TLS when SPIFFESocket is
	// unset. When both TLS modes are unset the gateway serves plain HTTP
	// (typical behind an ingress).
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	// Debug enables verbose request/response diagnostics and the
	// /test/echo endpoint.
	Debug bool `yaml:"debug"`
}

// Load reads the YAML file at path (if non-empty), applies environment
// overrides, fills defaults, and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Teleport: TeleportSection{ValidationEnabled: true},
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.ListenAddr, "LISTEN_ADDR")
	setStr(&c.MetadataAddr, "METADATA_LISTEN_ADDR")
	setStr(&c.UpstreamURL, "UPSTREAM_URL")
	setStr(&c.Teleport.JWKSURL, "TELEPORT_JWKS_URL")
	c.Teleport.ValidationEnabled = envBool("TELEPORT_VALIDATION_ENABLED", c.Teleport.ValidationEnabled)
	setStr(&c.Teleport.IdentityClaim, "TELEPORT_IDENTITY_CLAIM")
	setStr(&c.Teleport.RolesClaim, "TELEPORT_ROLES_CLAIM")
	c.Teleport.JWKSCacheSeconds = envInt64("TELEPORT_JWKS_CACHE_SECONDS", c.Teleport.JWKSCacheSeconds)
	setStr(&c.Issuer, "GATEWAY_ISSUER")
	setStr(&c.Audience, "GATEWAY_AUDIENCE")
	c.TokenTTLSeconds = envInt64("GATEWAY_TOKEN_TTL_SECONDS", c.TokenTTLSeconds)
	setStr(&c.SigningKeyFile, "GATEWAY_SIGNING_KEY_FILE")
	setStr(&c.SPIFFESocket, "SPIFFE_ENDPOINT_SOCKET")
	setStr(&c.TLSCertFile, "TLS_CERT_FILE")
	setStr(&c.TLSKeyFile, "TLS_KEY_FILE")
	c.Debug = envBool("GATEWAY_DEBUG", c.Debug)
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MetadataAddr == "" {
		c.MetadataAddr = ":9090"
	}
	if c.Teleport.IdentityClaim == "" {
		c.Teleport.IdentityClaim = "username"
	}
	if c.Teleport.RolesClaim == "" {
		c.Teleport.RolesClaim = "roles"
	}
	if c.Teleport.JWKSCacheSeconds <= 0 {
		c.Teleport.JWKSCacheSeconds = 300
	}
	if c.TokenTTLSeconds <= 0 {
		c.TokenTTLSeconds = 3600
	}
}

// Validate rejects configurations the gateway cannot serve traffic with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return fmt.Errorf("upstream_url is required")
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream_url %q is not an absolute URL", c.UpstreamURL)
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("issuer is required")
	}
	if strings.TrimSpace(c.Audience) == "" {
		return fmt.Errorf("audience is required")
	}
	if c.Teleport.ValidationEnabled && strings.TrimSpace(c.Teleport.JWKSURL) == "" {
		return fmt.Errorf("teleport.jwks_url is required when validation is enabled")
	}
	return nil
}

// TokenTTL returns the minted token lifetime as a duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

// JWKSCacheTTL returns the remote key-set cache lifetime.
func (c *Config) JWKSCacheTTL() time.Duration {
	return time.Duration(c.Teleport.JWKSCacheSeconds) * time.Second
}

func setStr(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func envInt64(name string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	var out int64
	_, err := fmt.Sscanf(v, "%d", &out)
	if err != nil {
		return def
	}
	return out
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}
