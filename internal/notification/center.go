// Package notification displays push notifications and tracks the ones still open.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/sirupsen/logrus"
)

// Notification is a displayed notification
type Notification struct {
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Icon               string    `json:"icon,omitempty"`
	Badge              string    `json:"badge,omitempty"`
	Vibrate            []int     `json:"vibrate,omitempty"`
	Tag                string    `json:"tag,omitempty"`
	RequireInteraction bool      `json:"requireInteraction"`
	ShownAt            time.Time `json:"shownAt"`
}

// Sender delivers a message to external services
type Sender interface {
	Send(message string, params *types.Params) []error
}

// Center shows notifications. A notification replaces any open one with the same tag.
type Center struct {
	mu     sync.Mutex
	open   map[string]Notification
	order  []string
	sender Sender
}

// NewCenter creates a center delivering through the given shoutrrr URLs.
// Without URLs notifications are only tracked and logged.
func NewCenter(urls []string) (*Center, error) {
	if len(urls) == 0 {
		return NewCenterWithSender(nil), nil
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification sender: %w", err)
	}
	return NewCenterWithSender(sender), nil
}

// NewCenterWithSender creates a center using sender, which may be nil
func NewCenterWithSender(sender Sender) *Center {
	return &Center{
		open:   make(map[string]Notification),
		sender: sender,
	}
}

// Show displays n, replacing an open notification with the same tag
func (c *Center) Show(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.ShownAt.IsZero() {
		n.ShownAt = time.Now()
	}

	key := n.Tag
	if key == "" {
		key = uuid.NewString()
	}

	c.mu.Lock()
	if _, replaced := c.open[key]; replaced {
		logrus.Debugf("Replacing notification with tag %s", key)
		c.removeLocked(key)
	}
	c.open[key] = n
	c.order = append(c.order, key)
	c.mu.Unlock()

	logrus.Infof("Notification: %s - %s", n.Title, n.Body)

	if c.sender == nil {
		return nil
	}
	if errs := c.sender.Send(n.Body, params(n)); len(errs) > 0 {
		return fmt.Errorf("failed to deliver notification: %w", errors.Join(errs...))
	}
	return nil
}

// Close closes the open notification with tag, reporting whether one was open
func (c *Center) Close(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.open[tag]; !ok {
		return false
	}
	c.removeLocked(tag)
	return true
}

// Active returns the open notifications, oldest first
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := make([]Notification, 0, len(c.order))
	for _, key := range c.order {
		active = append(active, c.open[key])
	}
	return active
}

func (c *Center) removeLocked(key string) {
	delete(c.open, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func params(n Notification) *types.Params {
	p := types.Params{"title": n.Title}
	if n.Icon != "" {
		p["icon"] = n.Icon
	}
	if n.Tag != "" {
		p["tags"] = n.Tag
	}
	if len(n.Vibrate) > 0 {
		pattern := make([]string, len(n.Vibrate))
		for i, v := range n.Vibrate {
			pattern[i] = strconv.Itoa(v)
		}
		p["vibrate"] = strings.Join(pattern, ",")
	}
	return &p
}
