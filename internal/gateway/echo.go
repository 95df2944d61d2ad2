package gateway

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// EchoHandler reports which header carried the inbound assertion and its
// decoded payload. It is a debugging aid for verifying header wiring
// between Teleport, ingress, and the gateway; it is only registered when
// debug mode is on.
func EchoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{}

		raw, source := locateAssertion(r.Header)
		if raw == "" {
			resp["error"] = "no JWT found in assertion or Authorization headers"
			writeJSON(w, http.StatusOK, resp)
			return
		}
		resp["jwt_source"] = source
		resp["jwt_token"] = raw

		parts := strings.Split(raw, ".")
		if len(parts) >= 2 {
			payload, err := base64.RawURLEncoding.DecodeString(parts[1])
			if err != nil {
				resp["jwt_decode_error"] = err.Error()
			} else {
				resp["jwt_payload_decoded"] = string(payload)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
