// Package jwks fetches and caches the identity source's public key set so
// inbound assertion signatures can be verified by key identifier.
package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var remoteFetchesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_jwks_fetches_total",
		Help: "Total number of remote key-set fetch attempts.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(remoteFetchesTotal)
}

const fetchTimeout = 1500 * time.Millisecond

// ErrKeyNotFound is returned when a key identifier cannot be resolved even
// after a refresh of the remote set.
var ErrKeyNotFound = errors.New("kid not found in remote key set")

// Cache holds the most recently fetched remote key set, keyed by kid.
// Concurrent refreshes are safely racing: the newest successful fetch
// wins and stale entries are replaced, never corrupted.
type Cache struct {
	url      string
	http     *http.Client
	cacheTTL time.Duration

	mu        sync.RWMutex
	keysByKID map[string]interface{}
	lastFetch time.Time

	misses *missStore
}

// NewCache creates a resolver for the given key-set URI. cacheTTL bounds
// how often the remote endpoint is re-fetched.
func NewCache(url string, httpClient *http.Client, cacheTTL time.Duration) *Cache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	return &Cache{
		url:       url,
		http:      httpClient,
		cacheTTL:  cacheTTL,
		keysByKID: map[string]interface{}{},
		misses:    newMissStore(30 * time.Second),
	}
}

// Refresh fetches the remote key set and replaces the cached map.
func (c *Cache) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		remoteFetchesTotal.WithLabelValues("error").Inc()
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		remoteFetchesTotal.WithLabelValues("error").Inc()
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		remoteFetchesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("jwks status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		remoteFetchesTotal.WithLabelValues("error").Inc()
		return err
	}
	keys := map[string]interface{}{}
	for _, k := range set.Keys {
		if k.Key == nil {
			continue
		}
		kid := strings.TrimSpace(k.KeyID)
		if kid == "" {
			continue
		}
		keys[kid] = k.Key
	}
	if len(keys) == 0 {
		remoteFetchesTotal.WithLabelValues("error").Inc()
		return errors.New("jwks contained no usable keys")
	}
	c.mu.Lock()
	c.keysByKID = keys
	c.lastFetch = time.Now().UTC()
	c.mu.Unlock()
	remoteFetchesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Key resolves a verification key by kid. A cache hit within the TTL is
// served directly. On a miss or a stale cache the remote set is refreshed
// under a bounded timeout; if the refresh fails a previously cached key is
// served stale rather than failing the request. A kid that a fresh set
// still does not contain is remembered briefly so repeated presentations
// of the same unknown kid do not trigger a fetch storm.
func (c *Cache) Key(ctx context.Context, kid string) (interface{}, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, errors.New("missing kid")
	}

	c.mu.RLock()
	key, ok := c.keysByKID[kid]
	last := c.lastFetch
	ttl := c.cacheTTL
	c.mu.RUnlock()

	if ok && ttl > 0 && time.Since(last) < ttl {
		return key, nil
	}
	if !ok && c.misses.recent(kid, time.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	ctx2, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	if err := c.Refresh(ctx2); err != nil {
		if ok {
			// Serve stale key if we had it.
			return key, nil
		}
		return nil, fmt.Errorf("jwks refresh failed: %w", err)
	}

	c.mu.RLock()
	key, ok = c.keysByKID[kid]
	c.mu.RUnlock()
	if !ok {
		c.misses.mark(kid, time.Now())
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// Primed reports whether at least one successful fetch has happened.
func (c *Cache) Primed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.lastFetch.IsZero()
}
