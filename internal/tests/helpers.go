package tests

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/A6-9V/sw-proxy/internal/config"
	"github.com/A6-9V/sw-proxy/internal/proxy"
)

// upstream is a test origin that can be taken offline
type upstream struct {
	*httptest.Server
	offline atomic.Bool
	version atomic.Int32
	hits    atomic.Int32
}

// fixture_upstream creates a test upstream server. While offline it drops every connection.
func fixture_upstream() *upstream {
	u := &upstream{}
	u.version.Store(1)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		if u.offline.Load() {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		u.hits.Add(1)

		switch requ.URL.Path {
		case "/offline.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<h1>Offline</h1>"))
		case "/missing":
			http.NotFound(w, requ)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprintf(w, `{"message": "Hello from upstream", "path": "%s", "version": %d}`, requ.URL.Path, u.version.Load())
		}
	}))
	return u
}

// fixture_config creates a test config for origin with a disk cache in tempDir
func fixture_config(origin, tempDir string) *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0}, // Will be set by test server
		Origin: origin,
		Cache: config.CacheConfig{
			Backend: config.BackendDisk,
			Folder:  tempDir,
		},
	}
	cfg.SetDefaults()
	return cfg
}

// fixture_proxy creates a booted proxy server with the given config and returns the server, test server, and HTTP client
func fixture_proxy(cfg *config.Config) (*proxy.Server, *httptest.Server, *http.Client, error) {
	proxyServer, err := proxy.New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := proxyServer.Boot(ctx); err != nil {
		_ = proxyServer.Close()
		return nil, nil, nil, err
	}

	// Create test proxy HTTP server using goproxy
	proxyTestServer := httptest.NewServer(proxyServer.GetProxy())

	// Create HTTP client that uses our proxy
	proxyURL, _ := url.Parse(proxyTestServer.URL)
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
		Timeout: 10 * time.Second,
	}

	return proxyServer, proxyTestServer, client, nil
}
