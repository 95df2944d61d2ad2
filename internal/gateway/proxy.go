package gateway

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// NewUpstreamProxy builds the single-host reverse proxy the pipeline
// hands translated requests to. The Host header is rewritten to the
// upstream's host so the backend does not see the gateway's hostname.
// WebSocket upgrades are handled by httputil.ReverseProxy itself.
func NewUpstreamProxy(target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		// Client disconnects land here too; forwarding aborts without
		// side effects since minting already completed in memory.
		if r.Context().Err() != nil {
			return
		}
		log.Printf("proxy error for %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return proxy
}
