package worker

import (
	"net/url"
	"strings"
)

// Classification decides which strategy serves a request
type Classification int

const (
	CrossOrigin Classification = iota
	SameOriginAPI
	SameOriginStatic
)

func (c Classification) String() string {
	switch c {
	case SameOriginAPI:
		return "same-origin-api"
	case SameOriginStatic:
		return "same-origin-static"
	default:
		return "cross-origin"
	}
}

// Classify maps a request URL to its classification. Requests outside origin are
// cross-origin; same-origin URLs containing apiSegment anywhere are API calls.
func Classify(origin *url.URL, apiSegment string, u *url.URL) Classification {
	if !SameOrigin(origin, u) {
		return CrossOrigin
	}
	if strings.Contains(u.String(), apiSegment) {
		return SameOriginAPI
	}
	return SameOriginStatic
}

// SameOrigin compares scheme, host and effective port
func SameOrigin(origin, u *url.URL) bool {
	if origin == nil || u == nil {
		return false
	}
	if !strings.EqualFold(origin.Scheme, u.Scheme) {
		return false
	}
	return strings.EqualFold(origin.Hostname(), u.Hostname()) && effectivePort(origin) == effectivePort(u)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	default:
		return "80"
	}
}
