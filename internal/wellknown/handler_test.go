package wellknown

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"agentcore-gateway/internal/keys"
)

func testRouter(t *testing.T) (chi.Router, *keys.Material) {
	t.Helper()
	material, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate material: %v", err)
	}
	r := chi.NewRouter()
	New(material, "https://gateway.example.com").Mount(r)
	return r, material
}

func get(t *testing.T, r chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestJWKSEndpoint(t *testing.T) {
	r, material := testRouter(t)

	rec := get(t, r, "/.well-known/jwks.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var doc struct {
		Keys []map[string]interface{} `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode JWKS: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(doc.Keys))
	}
	k := doc.Keys[0]
	want := map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": material.Kid(),
	}
	for field, wantV := range want {
		if k[field] != wantV {
			t.Errorf("%s = %v, want %s", field, k[field], wantV)
		}
	}
	for _, field := range []string{"n", "e"} {
		if s, _ := k[field].(string); s == "" {
			t.Errorf("key missing RSA component %q", field)
		}
	}
}

func TestOpenIDConfiguration(t *testing.T) {
	r, _ := testRouter(t)

	rec := get(t, r, "/.well-known/openid-configuration")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode discovery document: %v", err)
	}
	if doc["issuer"] != "https://gateway.example.com" {
		t.Errorf("issuer = %v", doc["issuer"])
	}
	if doc["jwks_uri"] != "https://gateway.example.com/.well-known/jwks.json" {
		t.Errorf("jwks_uri = %v", doc["jwks_uri"])
	}
	algs, _ := doc["id_token_signing_alg_values_supported"].([]interface{})
	if len(algs) != 1 || algs[0] != "RS256" {
		t.Errorf("signing algs = %v, want exactly [RS256]", doc["id_token_signing_alg_values_supported"])
	}
	subs, _ := doc["subject_types_supported"].([]interface{})
	if len(subs) != 1 || subs[0] != "public" {
		t.Errorf("subject_types_supported = %v", doc["subject_types_supported"])
	}

	// No token-issuance flow exists, so none may be advertised.
	for _, forbidden := range []string{"token_endpoint", "grant_types_supported", "response_types_supported"} {
		if _, ok := doc[forbidden]; ok {
			t.Errorf("discovery document must not advertise %q", forbidden)
		}
	}
}

func TestDiscovery_Idempotent(t *testing.T) {
	r, _ := testRouter(t)

	for _, path := range []string{"/.well-known/jwks.json", "/.well-known/openid-configuration"} {
		first := get(t, r, path).Body.Bytes()
		second := get(t, r, path).Body.Bytes()
		if !bytes.Equal(first, second) {
			t.Errorf("%s output changed between identical calls", path)
		}
	}
}

func TestTrailingSlashIssuerNormalized(t *testing.T) {
	material, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate material: %v", err)
	}
	r := chi.NewRouter()
	New(material, "https://gateway.example.com/").Mount(r)

	var doc map[string]interface{}
	rec := get(t, r, "/.well-known/openid-configuration")
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["jwks_uri"] != "https://gateway.example.com/.well-known/jwks.json" {
		t.Errorf("jwks_uri = %v", doc["jwks_uri"])
	}
}
