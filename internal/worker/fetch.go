package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/A6-9V/sw-proxy/internal/cache/httpcache"
	"github.com/A6-9V/sw-proxy/internal/metrics"
)

// Source tells where an intercepted response came from
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceOffline Source = "offline"
)

const offlineBody = "Offline"

// FetchResult is the response supplied for an intercepted request
type FetchResult struct {
	Response *http.Response
	Source   Source
}

// Fetch intercepts req. A nil result means the request is not intercepted and
// goes to the network untouched. req must carry an absolute URL.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*FetchResult, error) {
	if w.State() != StateActivated {
		return nil, nil
	}

	switch Classify(w.opts.Origin, w.opts.APISegment, req.URL) {
	case SameOriginAPI:
		return w.networkFirst(ctx, req)
	case SameOriginStatic:
		return w.cacheFirst(ctx, req)
	default:
		metrics.FetchTotal.WithLabelValues("passthrough", string(SourceNetwork)).Inc()
		return nil, nil
	}
}

func (w *Worker) networkFirst(ctx context.Context, req *http.Request) (*FetchResult, error) {
	resp, err := w.network.Fetch(ctx, req)
	if err == nil {
		w.storeRuntime(req, resp)
		metrics.FetchTotal.WithLabelValues("network-first", string(SourceNetwork)).Inc()
		return &FetchResult{Response: resp, Source: SourceNetwork}, nil
	}
	logrus.Debugf("Network request for %s failed, falling back to cache: %v", req.URL, err)

	cached, merr := httpcache.Match(w.storage, req)
	if merr != nil {
		logrus.Warnf("Cache lookup for %s failed: %v", req.URL, merr)
	}
	if cached != nil {
		metrics.FetchTotal.WithLabelValues("network-first", string(SourceCache)).Inc()
		return &FetchResult{Response: cached, Source: SourceCache}, nil
	}

	metrics.FetchTotal.WithLabelValues("network-first", "error").Inc()
	return nil, fmt.Errorf("%w: %s: %w", ErrNoMatch, req.URL, err)
}

func (w *Worker) cacheFirst(ctx context.Context, req *http.Request) (*FetchResult, error) {
	cached, err := httpcache.Match(w.storage, req)
	if err != nil {
		logrus.Warnf("Cache lookup for %s failed: %v", req.URL, err)
	}
	if cached != nil {
		w.revalidate(ctx, req)
		metrics.FetchTotal.WithLabelValues("cache-first", string(SourceCache)).Inc()
		return &FetchResult{Response: cached, Source: SourceCache}, nil
	}

	resp, err := w.network.Fetch(ctx, req)
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			w.storeRuntime(req, resp)
		}
		metrics.FetchTotal.WithLabelValues("cache-first", string(SourceNetwork)).Inc()
		return &FetchResult{Response: resp, Source: SourceNetwork}, nil
	}
	logrus.Debugf("Network request for %s failed, serving offline page: %v", req.URL, err)

	metrics.FetchTotal.WithLabelValues("cache-first", string(SourceOffline)).Inc()
	return &FetchResult{Response: w.offline(req), Source: SourceOffline}, nil
}

// revalidate refreshes the runtime copy of req in the background. The caller
// already has a response, so every failure is dropped.
func (w *Worker) revalidate(ctx context.Context, req *http.Request) {
	bg := context.WithoutCancel(ctx)
	clone := req.Clone(bg)
	// The inbound body belongs to the caller; GET requests carry none
	clone.Body = http.NoBody
	clone.ContentLength = 0

	w.detach(func() {
		resp, err := w.network.Fetch(bg, clone)
		if err != nil {
			logrus.Debugf("Revalidation of %s failed: %v", clone.URL, err)
			metrics.RevalidationsTotal.WithLabelValues("failed").Inc()
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if err := w.putRuntime(clone, resp); err != nil {
			logrus.Debugf("Revalidation of %s not stored: %v", clone.URL, err)
			metrics.RevalidationsTotal.WithLabelValues("failed").Inc()
			return
		}
		metrics.RevalidationsTotal.WithLabelValues("stored").Inc()
	})
}

// storeRuntime stores a copy of resp in the runtime partition without delaying
// the caller. resp stays readable.
func (w *Worker) storeRuntime(req *http.Request, resp *http.Response) {
	if !httpcache.Cacheable(req) {
		return
	}
	key, err := httpcache.GenerateKey(req)
	if err != nil {
		logrus.Debugf("Not storing %s: %v", req.URL, err)
		return
	}
	data, err := httpcache.Serialize(resp)
	if err != nil {
		logrus.Debugf("Not storing %s: %v", req.URL, err)
		return
	}

	w.detach(func() {
		partition, err := w.storage.Open(w.opts.RuntimeName)
		if err == nil {
			err = httpcache.New(partition).SetRaw(key, data)
		}
		if err != nil {
			logrus.Debugf("Failed to store %s in %s: %v", key, w.opts.RuntimeName, err)
		}
	})
}

func (w *Worker) putRuntime(req *http.Request, resp *http.Response) error {
	if !httpcache.Cacheable(req) {
		return fmt.Errorf("cannot cache %s request", req.Method)
	}
	partition, err := w.storage.Open(w.opts.RuntimeName)
	if err != nil {
		return err
	}
	return httpcache.New(partition).SetReq(req, resp)
}

// offline returns the cached offline page, or a minimal text response when none is cached
func (w *Worker) offline(req *http.Request) *http.Response {
	if w.opts.OfflinePage != "" {
		if page, err := w.offlinePage(req); err != nil {
			logrus.Warnf("Failed to read offline page: %v", err)
		} else if page != nil {
			return page
		}
	}

	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	header.Set("Content-Length", strconv.Itoa(len(offlineBody)))
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(offlineBody))),
		ContentLength: int64(len(offlineBody)),
		Request:       req,
	}
}

func (w *Worker) offlinePage(req *http.Request) (*http.Response, error) {
	ref, err := url.Parse(w.opts.OfflinePage)
	if err != nil {
		return nil, err
	}
	page, err := http.NewRequestWithContext(req.Context(), http.MethodGet, w.opts.Origin.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpcache.Match(w.storage, page)
	if err != nil || resp == nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}
