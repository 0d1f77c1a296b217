package worker

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/A6-9V/sw-proxy/internal/cache"
	"github.com/A6-9V/sw-proxy/internal/metrics"
)

// Command channel message types
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageCacheStats  = "CACHE_STATS"
	MessageClearCache  = "CLEAR_CACHE"

	replyCacheStats   = "CACHE_STATS_RESPONSE"
	replyCacheCleared = "CACHE_CLEARED"

	unknownCommand = "unknown"
)

// Message is a command sent by a client page
type Message struct {
	Type string `json:"type"`
}

// Port receives the reply to a message
type Port interface {
	PostMessage(v any) error
}

// PortFunc adapts a function to a Port
type PortFunc func(v any) error

func (f PortFunc) PostMessage(v any) error {
	return f(v)
}

type CacheStatsResponse struct {
	Type string       `json:"type"`
	Data []cache.Stat `json:"data"`
}

type CacheClearedResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

// HandleMessage runs a command. The reply, if any, is posted to port when one is supplied.
// Unknown message types are ignored.
func (w *Worker) HandleMessage(ctx context.Context, msg Message, port Port) error {
	metrics.CommandsTotal.WithLabelValues(commandLabel(msg.Type)).Inc()

	switch msg.Type {
	case MessageSkipWaiting:
		return w.SkipWaiting(ctx)

	case MessageCacheStats:
		stats, err := cache.Stats(w.storage)
		if err != nil {
			return fmt.Errorf("failed to compute cache stats: %w", err)
		}
		return reply(port, CacheStatsResponse{Type: replyCacheStats, Data: stats})

	case MessageClearCache:
		if err := w.clearCache(); err != nil {
			return err
		}
		return reply(port, CacheClearedResponse{Type: replyCacheCleared, Success: true})

	default:
		logrus.Warnf("Ignoring unknown message type %q", msg.Type)
		return nil
	}
}

// commandLabel keeps the metric label set bounded whatever clients send
func commandLabel(t string) string {
	switch t {
	case MessageSkipWaiting, MessageCacheStats, MessageClearCache:
		return t
	default:
		return unknownCommand
	}
}

// clearCache deletes every partition, the current ones included
func (w *Worker) clearCache() error {
	names, err := w.storage.Names()
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}
	for _, name := range names {
		if _, err := w.storage.Delete(name); err != nil {
			return fmt.Errorf("failed to delete %s: %w", name, err)
		}
	}
	logrus.Infof("Cleared %d cache partition(s)", len(names))
	return nil
}

func reply(port Port, v any) error {
	if port == nil {
		return nil
	}
	if err := port.PostMessage(v); err != nil {
		return fmt.Errorf("failed to post reply: %w", err)
	}
	return nil
}
