package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agentcore-gateway/internal/keys"
)

// Scope is the fixed capability string embedded in every minted token.
const Scope = "mcp:invoke mcp:tools"

// authSource marks the provenance of the translated identity.
const authSource = "teleport"

// Minter builds and signs outbound AgentCore tokens. It is safe for
// concurrent use; all fields are read-only after construction.
type Minter struct {
	material *keys.Material
	issuer   string
	audience string
	ttl      time.Duration

	now func() time.Time
}

// NewMinter wires a minter to the gateway's key material and trust
// configuration.
func NewMinter(material *keys.Material, issuer, audience string, ttl time.Duration) *Minter {
	return &Minter{
		material: material,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Mint signs a token asserting subject with the gateway's current key.
// The subject is carried as sub and additionally under username and
// user_name for backend compatibility. Extra claims from the mapper are
// merged but can never shadow the claims minted here, so a hostile
// inbound claim set cannot substitute the identity.
func (m *Minter) Mint(subject string, extra ClaimSet) (string, error) {
	now := m.now().UTC()

	claims := jwt.MapClaims{
		"iss":         m.issuer,
		"sub":         subject,
		"aud":         []string{m.audience},
		"iat":         jwt.NewNumericDate(now),
		"exp":         jwt.NewNumericDate(now.Add(m.ttl)),
		"scope":       Scope,
		"username":    subject,
		"user_name":   subject,
		"auth_source": authSource,
	}
	for name, value := range extra {
		if _, reserved := claims[name]; reserved {
			continue
		}
		claims[name] = value
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = m.material.Kid()
	signed, err := tok.SignedString(m.material.Signer())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
