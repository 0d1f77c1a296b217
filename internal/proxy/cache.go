package proxy

import (
	"errors"
	"net/http"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/A6-9V/sw-proxy/internal/worker"
)

// X-Cache values by response source
var cacheHeaders = map[worker.Source]string{
	worker.SourceNetwork: "MISS",
	worker.SourceCache:   "HIT",
	worker.SourceOffline: "OFFLINE",
}

// handleFetch hands a same-origin request to the worker as a fetch event.
// A nil response lets goproxy forward the request itself.
func (s *Server) handleFetch(requ *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	requ.URL = targetURL(requ)

	pending := s.dispatcher.Dispatch(requ.Context(), worker.Event{Type: worker.EventFetch, Request: requ})
	res, err := pending.Wait(requ.Context())
	if err != nil {
		if errors.Is(err, worker.ErrNoMatch) {
			logrus.Warnf("No response for %s: %v", requ.URL, err)
			return requ, goproxy.NewResponse(requ, goproxy.ContentTypeText, http.StatusBadGateway, "Network unavailable and no cached response")
		}
		logrus.Errorf("Fetch of %s failed: %v", requ.URL, err)
		return requ, goproxy.NewResponse(requ, goproxy.ContentTypeText, http.StatusInternalServerError, err.Error())
	}

	if res == nil {
		logrus.Debugf("Not intercepted: %s %s", requ.Method, requ.URL)
		return requ, nil
	}

	resp := res.Response
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set("X-Cache", cacheHeaders[res.Source])
	resp.Request = requ

	logrus.Infof("%s %s -> %d (%s)", requ.Method, requ.URL, resp.StatusCode, res.Source)
	return requ, resp
}
