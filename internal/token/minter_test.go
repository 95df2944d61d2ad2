package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agentcore-gateway/internal/keys"
)

func testMinter(t *testing.T, ttl time.Duration) (*Minter, *keys.Material) {
	t.Helper()
	material, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate material: %v", err)
	}
	return NewMinter(material, "https://gateway.example.com", "agentcore", ttl), material
}

func parseMinted(t *testing.T, raw string, material *keys.Material) (jwt.MapClaims, *jwt.Token) {
	t.Helper()
	claims := jwt.MapClaims{}
	// Signature check only: some tests pin the clock, so time claims are
	// asserted explicitly instead.
	tok, err := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation()).ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		return material.Public(), nil
	})
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	return claims, tok
}

func TestMint_Claims(t *testing.T) {
	m, material := testMinter(t, time.Hour)
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	raw, err := m.Mint("alice", ClaimSet{"teleport_roles": []string{"admin", "viewer"}})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	claims, tok := parseMinted(t, raw, material)

	if kid, _ := tok.Header["kid"].(string); kid != material.Kid() {
		t.Errorf("header kid = %q, want %q", kid, material.Kid())
	}
	if claims["iss"] != "https://gateway.example.com" {
		t.Errorf("iss = %v", claims["iss"])
	}
	for _, name := range []string{"sub", "username", "user_name"} {
		if claims[name] != "alice" {
			t.Errorf("%s = %v, want alice", name, claims[name])
		}
	}
	aud, ok := claims["aud"].([]interface{})
	if !ok || len(aud) != 1 || aud[0] != "agentcore" {
		t.Errorf("aud = %v, want single-element [agentcore]", claims["aud"])
	}
	if claims["scope"] != Scope {
		t.Errorf("scope = %v, want %q", claims["scope"], Scope)
	}
	if claims["auth_source"] != "teleport" {
		t.Errorf("auth_source = %v", claims["auth_source"])
	}

	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	if iat != 1700000000 {
		t.Errorf("iat = %d", iat)
	}
	if exp-iat != 3600 {
		t.Errorf("exp-iat = %d, want 3600", exp-iat)
	}

	roles, ok := claims["teleport_roles"].([]interface{})
	if !ok || len(roles) != 2 || roles[0] != "admin" || roles[1] != "viewer" {
		t.Errorf("teleport_roles = %v", claims["teleport_roles"])
	}
}

func TestMint_ExtraClaimsCannotShadowIdentity(t *testing.T) {
	m, material := testMinter(t, time.Hour)

	raw, err := m.Mint("alice", ClaimSet{
		"sub":         "mallory",
		"username":    "mallory",
		"user_name":   "mallory",
		"iss":         "https://evil.example.com",
		"auth_source": "forged",
		"custom":      "kept",
	})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	claims, _ := parseMinted(t, raw, material)

	for _, name := range []string{"sub", "username", "user_name"} {
		if claims[name] != "alice" {
			t.Errorf("%s = %v, identity must not be substitutable", name, claims[name])
		}
	}
	if claims["iss"] != "https://gateway.example.com" {
		t.Errorf("iss = %v", claims["iss"])
	}
	if claims["auth_source"] != "teleport" {
		t.Errorf("auth_source = %v", claims["auth_source"])
	}
	if claims["custom"] != "kept" {
		t.Errorf("non-reserved extra claim should survive, got %v", claims["custom"])
	}
}

func TestMint_VerifiesAgainstPublishedKeySet(t *testing.T) {
	m, material := testMinter(t, time.Hour)

	raw, err := m.Mint("alice", nil)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	set := material.PublicKeySet()
	claims := jwt.MapClaims{}
	_, err = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})).ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		kid, _ := tok.Header["kid"].(string)
		for _, k := range set.Keys {
			if k.KeyID == kid {
				return k.Key, nil
			}
		}
		t.Fatalf("kid %q not present in published key set", kid)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("round-trip against published key set failed: %v", err)
	}
}
