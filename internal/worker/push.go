package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/A6-9V/sw-proxy/internal/clients"
	"github.com/A6-9V/sw-proxy/internal/metrics"
	"github.com/A6-9V/sw-proxy/internal/notification"
)

// HandlePush shows a notification whose body is the push payload, or the default
// body when the payload is empty. The fixed tag makes a new push replace the previous one.
func (w *Worker) HandlePush(ctx context.Context, payload []byte) error {
	opts := w.opts.Notification

	body := opts.DefaultBody
	if len(payload) > 0 {
		body = string(payload)
	}

	err := w.notifier.Show(ctx, notification.Notification{
		Title:              opts.Title,
		Body:               body,
		Icon:               opts.Icon,
		Badge:              opts.Badge,
		Vibrate:            opts.Vibrate,
		Tag:                opts.Tag,
		RequireInteraction: opts.RequireInteraction,
	})
	if err != nil {
		return fmt.Errorf("failed to show notification: %w", err)
	}
	metrics.NotificationsShown.Inc()
	return nil
}

// HandleNotificationClick closes the notification and brings a client page to the application root
func (w *Worker) HandleNotificationClick(ctx context.Context, tag string) error {
	if tag == "" {
		tag = w.opts.Notification.Tag
	}
	w.notifier.Close(tag)

	target := w.opts.Notification.OpenURL
	if target == "" {
		target = "/"
	}
	err := w.clients.OpenWindow(ctx, target)
	if errors.Is(err, clients.ErrNoClient) {
		logrus.Info("No client page to open after notification click")
		return nil
	}
	return err
}
