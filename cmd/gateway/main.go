// Command gateway runs the Teleport → AgentCore identity-translation
// gateway: it validates inbound Teleport JWT assertions, mints AgentCore
// tokens signed with its own key, forwards requests to the configured
// backend, and publishes its public keys for verification.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"

	"agentcore-gateway/internal/config"
	"agentcore-gateway/internal/gateway"
	"agentcore-gateway/internal/jwks"
	"agentcore-gateway/internal/keys"
	"agentcore-gateway/internal/token"
	"agentcore-gateway/internal/wellknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("GATEWAY_CONFIG"), "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration invalid: %v", err)
	}

	material, err := loadMaterial(cfg)
	if err != nil {
		// Unusable key material must never serve traffic.
		log.Fatalf("signing key material: %v", err)
	}
	log.Printf("signing key ready (kid=%s, alg=%s)", material.Kid(), keys.SigningAlg)

	httpClient := &http.Client{Timeout: 1500 * time.Millisecond}

	var validator *token.Validator
	var remote *jwks.Cache
	if cfg.Teleport.ValidationEnabled {
		remote = jwks.NewCache(cfg.Teleport.JWKSURL, httpClient, cfg.JWKSCacheTTL())
		validator = token.NewValidator(remote)
		log.Printf("inbound validation ENABLED (jwks=%s, cache=%s)", cfg.Teleport.JWKSURL, cfg.JWKSCacheTTL())

		// Prime the cache so the first request does not pay for the
		// fetch. A failure here degrades, it does not abort: the remote
		// source may simply not be up yet.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := remote.Refresh(ctx); err != nil {
			log.Printf("WARN: initial jwks fetch failed, will retry on demand: %v", err)
		}
		cancel()
	} else {
		validator = token.NewInsecureValidator()
		log.Printf("WARN: inbound validation DISABLED; assertions are parsed without signature or expiry checks (dev-only)")
	}

	minter := token.NewMinter(material, cfg.Issuer, cfg.Audience, cfg.TokenTTL())

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		log.Fatalf("invalid upstream_url %q: %v", cfg.UpstreamURL, err)
	}
	proxy := gateway.NewUpstreamProxy(upstream)
	translator := gateway.NewTranslator(validator, minter, cfg.Teleport.IdentityClaim, cfg.Teleport.RolesClaim, proxy, cfg.Debug)

	public := chi.NewRouter()
	wellknown.New(material, cfg.Issuer).Mount(public)
	if cfg.Debug {
		public.Get("/test/echo", gateway.EchoHandler())
	}
	public.Handle("/*", translator)

	metadata := chi.NewRouter()
	metadata.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	metadata.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if remote != nil && !remote.Primed() {
			ctx, cancel := context.WithTimeout(r.Context(), 1200*time.Millisecond)
			defer cancel()
			if err := remote.Refresh(ctx); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ready\n"))
	})
	metadata.Handle("/metrics", promhttp.Handler())

	gatewayServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           public,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metadataServer := &http.Server{
		Addr:              cfg.MetadataAddr,
		Handler:           metadata,
		ReadHeaderTimeout: 5 * time.Second,
	}

	certFile, keyFile := cfg.TLSCertFile, cfg.TLSKeyFile
	serveTLS := certFile != "" && keyFile != ""

	if cfg.SPIFFESocket != "" {
		// Secret-less mode: the server identity comes from the SPIFFE
		// Workload API and Teleport-side clients authenticate over mTLS.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		source, err := workloadapi.NewX509Source(ctx, workloadapi.WithClientOptions(workloadapi.WithAddr(cfg.SPIFFESocket)))
		if err != nil {
			log.Fatalf("failed to create X509Source: %v", err)
		}
		defer source.Close()

		gatewayServer.TLSConfig = tlsconfig.MTLSServerConfig(source, source, tlsconfig.AuthorizeAny())
		gatewayServer.TLSConfig.MinVersion = tls.VersionTLS12
		certFile, keyFile = "", ""
		serveTLS = true
	}

	errCh := make(chan error, 2)

	go func() {
		log.Printf("metadata endpoints listening on %s", cfg.MetadataAddr)
		errCh <- metadataServer.ListenAndServe()
	}()
	go func() {
		log.Printf("gateway listening on %s -> %s", cfg.ListenAddr, upstream)
		if serveTLS {
			errCh <- gatewayServer.ListenAndServeTLS(certFile, keyFile)
		} else {
			errCh <- gatewayServer.ListenAndServe()
		}
	}()

	log.Fatal(<-errCh)
}

func loadMaterial(cfg *config.Config) (*keys.Material, error) {
	if cfg.SigningKeyFile != "" {
		return keys.FromFile(cfg.SigningKeyFile)
	}
	log.Printf("WARN: signing_key_file not set; generating ephemeral key (NOT for production)")
	return keys.Generate()
}
