package proxy

import (
	"net"
	"net/http"
	"net/url"
)

// targetURL returns the absolute URL a proxied request is addressed to
func targetURL(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}

	// Reconstruct URL from Host header
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	u := *r.URL
	u.Scheme = scheme
	u.Host = r.Host
	return &u
}

// hostPort splits a CONNECT target, defaulting to port 443
func hostPort(host string) (string, string) {
	h, p, err := net.SplitHostPort(host)
	if err != nil {
		return host, "443"
	}
	return h, p
}
