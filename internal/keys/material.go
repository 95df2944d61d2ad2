// Package keys holds the gateway's signing key material and exposes it as
// a public JSON Web Key Set for the well-known endpoints.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
)

// SigningAlg is the only algorithm the gateway mints with. The discovery
// document advertises exactly this value.
const SigningAlg = "RS256"

// Material is the gateway's asymmetric signing key plus its stable key
// identifier. It is created once at startup and read-only afterwards.
type Material struct {
	kid  string
	priv *rsa.PrivateKey
}

// Generate creates ephemeral RSA material. Tokens minted with it become
// unverifiable after a restart, so this is a development convenience.
func Generate() (*Material, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	return fromPrivate(priv)
}

// FromPEM loads RSA material from a PKCS#8 or PKCS#1 PEM block.
func FromPEM(pemBytes []byte) (*Material, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("failed to decode PEM")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA private key: %T", key)
		}
		return fromPrivate(priv)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return fromPrivate(priv)
}

// FromFile loads RSA material from a PEM file.
func FromFile(path string) (*Material, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	return FromPEM(b)
}

func fromPrivate(priv *rsa.PrivateKey) (*Material, error) {
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid RSA key: %w", err)
	}
	kid, err := kidForPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Material{kid: kid, priv: priv}, nil
}

// kidForPublicKey derives a stable identifier from the PKIX encoding of
// the public key, so the same key always publishes under the same kid.
func kidForPublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// Kid returns the key identifier carried in minted token headers.
func (m *Material) Kid() string { return m.kid }

// Signer returns the private key used for minting.
func (m *Material) Signer() *rsa.PrivateKey { return m.priv }

// Public returns the verification key.
func (m *Material) Public() *rsa.PublicKey { return &m.priv.PublicKey }

// PublicKeySet returns the JWKS document served at /.well-known/jwks.json.
func (m *Material) PublicKeySet() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       &m.priv.PublicKey,
				KeyID:     m.kid,
				Use:       "sig",
				Algorithm: SigningAlg,
			},
		},
	}
}
