package proxy

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/elazarl/goproxy"

	"github.com/A6-9V/sw-proxy/internal/worker"
)

// Rule decides whether a proxied request is handed to the worker
type Rule interface {
	Match(requ *http.Request) bool
}

// OriginRule matches requests addressed to the worker origin
type OriginRule struct {
	Origin *url.URL
}

// Match checks if a request targets the origin
func (r *OriginRule) Match(requ *http.Request) bool {
	return worker.SameOrigin(r.Origin, targetURL(requ))
}

// MatchConnect checks if a CONNECT target is the origin host. Only an HTTPS
// origin is reached through CONNECT.
func (r *OriginRule) MatchConnect(host string) bool {
	if r.Origin == nil || !strings.EqualFold(r.Origin.Scheme, "https") {
		return false
	}
	h, p := hostPort(host)
	port := r.Origin.Port()
	if port == "" {
		port = "443"
	}
	return strings.EqualFold(h, r.Origin.Hostname()) && p == port
}

// condition adapts a rule for goproxy request handlers
func condition(rule Rule) goproxy.ReqConditionFunc {
	return func(requ *http.Request, ctx *goproxy.ProxyCtx) bool {
		return rule.Match(requ)
	}
}
