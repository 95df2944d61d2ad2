// Package wellknown serves the key-publishing endpoints that make minted
// tokens independently verifiable: the public JWKS and a minimal OIDC
// discovery document.
package wellknown

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"agentcore-gateway/internal/keys"
)

// Handler exposes the gateway's public key material. Both endpoints are
// unauthenticated, idempotent, and reflect the in-memory material
// directly, so no restart is needed for them to agree with minting.
type Handler struct {
	material *keys.Material
	issuer   string
}

// New builds the well-known handler for the given issuer URL.
func New(material *keys.Material, issuer string) *Handler {
	return &Handler{material: material, issuer: strings.TrimRight(issuer, "/")}
}

// Mount registers the endpoints on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/.well-known/jwks.json", h.JWKS)
	r.Get("/.well-known/openid-configuration", h.OpenIDConfiguration)
}

// JWKS serves the gateway's public key set.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.material.PublicKeySet())
}

// discoveryDocument is the issuer metadata served to verifiers. No token
// endpoint and no grant types are advertised: the gateway has no token
// issuance flow, and advertising one would invite verifiers to attempt
// unsupported flows.
type discoveryDocument struct {
	Issuer                string   `json:"issuer"`
	JWKSURI               string   `json:"jwks_uri"`
	IDTokenSigningAlgs    []string `json:"id_token_signing_alg_values_supported"`
	SubjectTypesSupported []string `json:"subject_types_supported"`
}

// OpenIDConfiguration serves the discovery document.
func (h *Handler) OpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, discoveryDocument{
		Issuer:                h.issuer,
		JWKSURI:               h.issuer + "/.well-known/jwks.json",
		IDTokenSigningAlgs:    []string{keys.SigningAlg},
		SubjectTypesSupported: []string{"public"},
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
