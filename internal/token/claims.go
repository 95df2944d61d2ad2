// Package token implements the gateway's token-transformation core:
// validating inbound Teleport assertions, mapping their claims, and
// minting the outbound AgentCore tokens the backend trusts.
package token

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Error kinds distinguished internally for diagnostics. At the HTTP
// boundary they all collapse to a single unauthorized response.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrKeyResolution    = errors.New("signing key resolution failed")
	ErrMissingIdentity  = errors.New("missing identity claim")
)

// ClaimSet is a typed accessor layer over a decoded claim payload.
// Required claims are checked at the mapping boundary instead of being
// pulled out of an untyped map downstream.
type ClaimSet map[string]interface{}

// String returns the named claim if it is a non-empty string.
func (c ClaimSet) String(name string) (string, bool) {
	v, ok := c[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// StringList returns the named claim as a string list. A bare string is
// treated as a single-element list, matching how JWT audience-style
// claims are commonly encoded.
func (c ClaimSet) StringList(name string) ([]string, bool) {
	v, ok := c[name]
	if !ok {
		return nil, false
	}
	switch vv := v.(type) {
	case string:
		return []string{vv}, true
	case []string:
		return vv, true
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func claimSetFrom(m jwt.MapClaims) ClaimSet {
	out := make(ClaimSet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
