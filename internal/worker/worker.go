// Package worker implements the caching interceptor: the install, activate,
// fetch, message and push handlers that run between client pages and the network.
//
// The worker keeps no data in memory across events. Everything it serves lives in
// the cache storage, so a new process resumes from whatever the storage holds.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/A6-9V/sw-proxy/internal/cache"
	"github.com/A6-9V/sw-proxy/internal/config"
	"github.com/A6-9V/sw-proxy/internal/notification"
)

var (
	ErrInstallFailed = errors.New("installation failed")
	ErrNotInstalled  = errors.New("worker is not installed")
	ErrNoMatch       = errors.New("network failed and no cached response matched")
	ErrUnknownEvent  = errors.New("unknown event")
)

// Notifier displays notifications
type Notifier interface {
	Show(ctx context.Context, n notification.Notification) error
	Close(tag string) bool
}

// Clients controls the connected client pages
type Clients interface {
	Claim() int
	OpenWindow(ctx context.Context, url string) error
}

// NotificationOptions is the fixed metadata of push notifications
type NotificationOptions struct {
	Title              string
	DefaultBody        string
	Icon               string
	Badge              string
	Vibrate            []int
	Tag                string
	RequireInteraction bool
	OpenURL            string
}

// Options configures the interception policy
type Options struct {
	Origin       *url.URL
	PrecacheName string
	RuntimeName  string
	APISegment   string
	Precache     []string
	OfflinePage  string
	Notification NotificationOptions
}

// OptionsFromConfig builds the worker options from the application configuration
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	origin, err := cfg.OriginURL()
	if err != nil {
		return Options{}, fmt.Errorf("invalid origin: %w", err)
	}

	n := cfg.Notifications
	return Options{
		Origin:       origin,
		PrecacheName: cfg.Cache.PrecacheName,
		RuntimeName:  cfg.Cache.RuntimeName,
		APISegment:   cfg.Worker.APISegment,
		Precache:     append([]string(nil), cfg.Worker.Precache...),
		OfflinePage:  cfg.Worker.OfflinePage,
		Notification: NotificationOptions{
			Title:              n.Title,
			DefaultBody:        n.DefaultBody,
			Icon:               n.Icon,
			Badge:              n.Badge,
			Vibrate:            append([]int(nil), n.Vibrate...),
			Tag:                n.Tag,
			RequireInteraction: n.RequireInteraction,
			OpenURL:            n.OpenURL,
		},
	}, nil
}

// Deps are the platform services the worker runs on
type Deps struct {
	Storage  cache.Storage
	Network  Network
	Notifier Notifier
	Clients  Clients
}

// Worker is one worker instance
type Worker struct {
	opts     Options
	storage  cache.Storage
	network  Network
	notifier Notifier
	clients  Clients

	state       atomic.Int32
	skipWaiting atomic.Bool
	lifecycle   sync.Mutex

	// detached cache writes and revalidations
	background sync.WaitGroup
}

// New creates a worker in the parsed state. Missing notifier and clients are replaced by no-ops.
func New(opts Options, deps Deps) *Worker {
	w := &Worker{
		opts:     opts,
		storage:  deps.Storage,
		network:  deps.Network,
		notifier: deps.Notifier,
		clients:  deps.Clients,
	}
	if w.notifier == nil {
		w.notifier = notification.NewCenterWithSender(nil)
	}
	if w.clients == nil {
		w.clients = noClients{}
	}
	return w
}

// State returns the lifecycle state
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// SkipWaitingRequested reports whether the worker asked to activate without waiting
func (w *Worker) SkipWaitingRequested() bool {
	return w.skipWaiting.Load()
}

// Options returns the interception policy
func (w *Worker) Options() Options {
	return w.opts
}

// Storage returns the cache storage the worker serves from
func (w *Worker) Storage() cache.Storage {
	return w.storage
}

// Settle waits for every detached background task to finish
func (w *Worker) Settle() {
	w.background.Wait()
}

func (w *Worker) detach(task func()) {
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		task()
	}()
}

type noClients struct{}

func (noClients) Claim() int { return 0 }

func (noClients) OpenWindow(context.Context, string) error { return nil }
