package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/A6-9V/sw-proxy/internal/cache/httpcache"
)

type precached struct {
	key  string
	data []byte
}

// Install fetches every manifest entry and stores them in the precache partition.
// Nothing is written unless every entry was fetched successfully; on success the
// worker asks to activate without waiting.
//
// An activated worker keeps intercepting while it reinstalls, and stays activated
// when the reinstall fails. A worker that is not activated yet installs from
// storage when the network fails but the precache partition already holds the
// whole manifest.
func (w *Worker) Install(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	serving := w.State() == StateActivated
	logrus.Info("Installing...")
	if !serving {
		w.setState(StateInstalling)
	}

	entries, err := w.fetchManifest(ctx)
	if err == nil {
		err = w.storePrecache(entries)
	}
	if err != nil {
		return w.installFailed(err, serving)
	}

	if !serving {
		w.setState(StateInstalled)
	}
	w.skipWaiting.Store(true)
	logrus.Infof("Installation complete, precached %d assets in %s", len(entries), w.opts.PrecacheName)
	return nil
}

func (w *Worker) installFailed(cause error, serving bool) error {
	err := fmt.Errorf("%w: %w", ErrInstallFailed, cause)

	if serving {
		logrus.Warnf("Reinstallation failed, the active worker keeps serving: %v", cause)
		return err
	}

	complete, cerr := w.precacheComplete()
	if cerr != nil {
		logrus.Warnf("Failed to check the stored precache: %v", cerr)
	}
	if complete {
		w.setState(StateInstalled)
		w.skipWaiting.Store(true)
		logrus.Warnf("Installation failed, resuming from %s: %v", w.opts.PrecacheName, cause)
		return nil
	}

	w.setState(StateRedundant)
	logrus.Errorf("Installation failed: %v", cause)
	return err
}

// precacheComplete reports whether the precache partition holds every manifest entry
func (w *Worker) precacheComplete() (bool, error) {
	partition, err := w.storage.Get(w.opts.PrecacheName)
	if err != nil || partition == nil {
		return false, err
	}

	for _, asset := range w.opts.Precache {
		req, err := w.precacheRequest(context.Background(), asset)
		if err != nil {
			return false, err
		}
		key, err := httpcache.GenerateKey(req)
		if err != nil {
			return false, err
		}
		data, err := partition.Get(key)
		if err != nil || data == nil {
			return false, err
		}
	}
	return true, nil
}

func (w *Worker) fetchManifest(ctx context.Context) ([]precached, error) {
	entries := make([]precached, len(w.opts.Precache))

	g, gctx := errgroup.WithContext(ctx)
	for i, asset := range w.opts.Precache {
		g.Go(func() error {
			entry, err := w.fetchAsset(gctx, asset)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (w *Worker) fetchAsset(ctx context.Context, asset string) (precached, error) {
	req, err := w.precacheRequest(ctx, asset)
	if err != nil {
		return precached{}, err
	}

	resp, err := w.network.Fetch(ctx, req)
	if err != nil {
		return precached{}, fmt.Errorf("failed to fetch %s: %w", asset, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return precached{}, fmt.Errorf("failed to fetch %s: status %d", asset, resp.StatusCode)
	}

	key, err := httpcache.GenerateKey(req)
	if err != nil {
		return precached{}, err
	}
	data, err := httpcache.Serialize(resp)
	if err != nil {
		return precached{}, fmt.Errorf("failed to read %s: %w", asset, err)
	}

	logrus.Debugf("Precache fetched %s -> %d", asset, resp.StatusCode)
	return precached{key: key, data: data}, nil
}

func (w *Worker) precacheRequest(ctx context.Context, asset string) (*http.Request, error) {
	ref, err := url.Parse(asset)
	if err != nil {
		return nil, fmt.Errorf("invalid precache entry %q: %w", asset, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.opts.Origin.ResolveReference(ref).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", asset, err)
	}
	return req, nil
}

// storePrecache writes every entry, restoring the previous partition content if a write fails
func (w *Worker) storePrecache(entries []precached) error {
	partition, err := w.storage.Open(w.opts.PrecacheName)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.opts.PrecacheName, err)
	}

	type previous struct {
		key  string
		data []byte
	}
	var written []previous

	for _, entry := range entries {
		old, err := partition.Get(entry.key)
		if err == nil {
			err = partition.Set(entry.key, entry.data)
		}
		if err != nil {
			for i := len(written) - 1; i >= 0; i-- {
				prev := written[i]
				if prev.data == nil {
					_, _ = partition.Delete(prev.key)
				} else {
					_ = partition.Set(prev.key, prev.data)
				}
			}
			return fmt.Errorf("failed to store %s: %w", entry.key, err)
		}
		written = append(written, previous{key: entry.key, data: old})
	}
	return nil
}
