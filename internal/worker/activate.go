package worker

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/A6-9V/sw-proxy/internal/metrics"
)

// Activate deletes every partition that is not current, then takes control of all client pages
func (w *Worker) Activate(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	return w.activateLocked(ctx)
}

func (w *Worker) activateLocked(ctx context.Context) error {
	switch w.State() {
	case StateActivated:
		return nil
	case StateInstalled:
	default:
		return fmt.Errorf("%w: state is %s", ErrNotInstalled, w.State())
	}

	logrus.Info("Activating...")
	w.setState(StateActivating)

	names, err := w.storage.Names()
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	for _, name := range names {
		if name == w.opts.PrecacheName || name == w.opts.RuntimeName {
			continue
		}
		if err := ctx.Err(); err != nil {
			w.setState(StateInstalled)
			return err
		}
		logrus.Infof("Deleting old cache: %s", name)
		if _, err := w.storage.Delete(name); err != nil {
			w.setState(StateInstalled)
			return fmt.Errorf("failed to delete old cache %s: %w", name, err)
		}
		metrics.PartitionsPurged.Inc()
	}

	claimed := w.clients.Claim()
	w.setState(StateActivated)
	logrus.Infof("Activation complete, controlling %d client(s)", claimed)
	return nil
}

// SkipWaiting asks to activate without waiting. A worker already installed and
// waiting activates immediately.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.skipWaiting.Store(true)
	if w.State() != StateInstalled {
		return nil
	}
	return w.activateLocked(ctx)
}
