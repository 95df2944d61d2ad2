// Package gateway implements the per-request translation pipeline: locate
// the inbound Teleport assertion, validate it, remap its claims, mint an
// AgentCore token, and hand the rewritten request to the reverse proxy.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"agentcore-gateway/internal/token"
)

// Inbound assertion header variants. Ingress controllers may lowercase or
// strip the X- prefix, so both spellings are honored and both stripped on
// the way out.
const (
	assertionHeader     = "X-Teleport-Jwt-Assertion"
	assertionHeaderAlt  = "Teleport-Jwt-Assertion"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	requestIDHeader     = "X-Request-ID"
)

var translationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_translations_total",
		Help: "Total number of requests handled by the translation pipeline.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(translationsTotal)
}

// AuditEvent is one line of the translation audit stream, encoded as JSON
// to stdout. Internal error kinds appear here only; the HTTP response
// never carries them.
type AuditEvent struct {
	Timestamp   time.Time `json:"ts"`
	RequestID   string    `json:"request_id,omitempty"`
	Outcome     string    `json:"outcome"` // translated|passthrough|unauthorized
	Reason      string    `json:"reason,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	TokenSource string    `json:"token_source,omitempty"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
}

func audit(ev AuditEvent) {
	_ = json.NewEncoder(os.Stdout).Encode(ev)
}

// Translator is the pipeline handler. It holds no per-request state and
// is safe to run concurrently for independent requests.
type Translator struct {
	validator     *token.Validator
	minter        *token.Minter
	identityClaim string
	rolesClaim    string
	next          http.Handler
	debug         bool
}

// NewTranslator wires the pipeline in front of next (the reverse proxy).
func NewTranslator(validator *token.Validator, minter *token.Minter, identityClaim, rolesClaim string, next http.Handler, debug bool) *Translator {
	return &Translator{
		validator:     validator,
		minter:        minter,
		identityClaim: identityClaim,
		rolesClaim:    rolesClaim,
		next:          next,
		debug:         debug,
	}
}

// locateAssertion finds the inbound token, preferring the Teleport
// assertion headers over a standard bearer Authorization header.
func locateAssertion(h http.Header) (raw, source string) {
	if v := strings.TrimSpace(h.Get(assertionHeader)); v != "" {
		return v, assertionHeader
	}
	if v := strings.TrimSpace(h.Get(assertionHeaderAlt)); v != "" {
		return v, assertionHeaderAlt
	}
	auth := h.Get(authorizationHeader)
	if strings.HasPrefix(auth, bearerPrefix) {
		if v := strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix)); v != "" {
			return v, authorizationHeader
		}
	}
	return "", ""
}

func (t *Translator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	reqID := r.Header.Get(requestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}

	if t.debug {
		log.Printf("DEBUG: %s %s", r.Method, r.URL)
		for name, values := range r.Header {
			for _, v := range values {
				log.Printf("DEBUG:   %s: %s", name, v)
			}
		}
	}

	raw, source := locateAssertion(r.Header)
	if raw == "" {
		// Pass-through: routes that carry no assertion need no
		// translation. Whether they require auth is the backend's call.
		translationsTotal.WithLabelValues("passthrough").Inc()
		t.next.ServeHTTP(w, r)
		return
	}

	claims, err := t.validator.Validate(r.Context(), raw)
	if err != nil {
		t.unauthorized(w, r, start, reqID, source, "validate: "+err.Error())
		return
	}

	subject, extra, err := token.Map(claims, t.identityClaim, t.rolesClaim)
	if err != nil {
		t.unauthorized(w, r, start, reqID, source, "map: "+err.Error())
		return
	}

	minted, err := t.minter.Mint(subject, extra)
	if err != nil {
		t.unauthorized(w, r, start, reqID, source, "mint: "+err.Error())
		return
	}

	// Exactly one outbound credential: the original assertion headers in
	// every known spelling are removed before the minted token is set.
	r.Header.Del(assertionHeader)
	r.Header.Del(assertionHeaderAlt)
	r.Header.Del(authorizationHeader)
	r.Header.Set(authorizationHeader, bearerPrefix+minted)

	audit(AuditEvent{
		Timestamp:   start,
		RequestID:   reqID,
		Outcome:     "translated",
		Subject:     subject,
		TokenSource: source,
		Method:      r.Method,
		Path:        r.URL.Path,
	})
	translationsTotal.WithLabelValues("translated").Inc()
	t.next.ServeHTTP(w, r)
}

// unauthorized collapses every validation and mapping failure to a single
// response so validation internals never leak to the caller.
func (t *Translator) unauthorized(w http.ResponseWriter, r *http.Request, start time.Time, reqID, source, reason string) {
	audit(AuditEvent{
		Timestamp:   start,
		RequestID:   reqID,
		Outcome:     "unauthorized",
		Reason:      reason,
		TokenSource: source,
		Method:      r.Method,
		Path:        r.URL.Path,
	})
	translationsTotal.WithLabelValues("unauthorized").Inc()
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
