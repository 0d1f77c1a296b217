package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/A6-9V/sw-proxy/internal/cache"
	"github.com/A6-9V/sw-proxy/internal/clients"
	"github.com/A6-9V/sw-proxy/internal/config"
	"github.com/A6-9V/sw-proxy/internal/notification"
	"github.com/A6-9V/sw-proxy/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Server hosts the worker behind an HTTP(S) forward proxy
type Server struct {
	config     *config.Config
	origin     *url.URL
	rule       *OriginRule
	storage    cache.Storage
	worker     *worker.Worker
	dispatcher *worker.Dispatcher
	clients    *clients.Registry
	notifier   *notification.Center
	certs      *certStore
	proxy      *goproxy.ProxyHttpServer
}

// New creates a new proxy server and the worker it hosts
func New(cfg *config.Config) (*Server, error) {
	opts, err := worker.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.GetNetworkTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid network timeout: %w", err)
	}

	storage, err := cache.NewStorage(&cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache storage: %w", err)
	}

	notifier, err := notification.NewCenter(cfg.Notifications.URLs)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Logger = logrus.StandardLogger()
	proxy.Verbose = logrus.IsLevelEnabled(logrus.TraceLevel)

	s := &Server{
		config:   cfg,
		origin:   opts.Origin,
		rule:     &OriginRule{Origin: opts.Origin},
		storage:  storage,
		clients:  clients.NewRegistry(),
		notifier: notifier,
		certs:    newCertStore(),
		proxy:    proxy,
	}
	s.worker = worker.New(opts, worker.Deps{
		Storage:  storage,
		Network:  worker.NewHTTPNetwork(proxy.Tr, timeout),
		Notifier: notifier,
		Clients:  s.clients,
	})
	s.dispatcher = worker.NewDispatcher(s.worker)

	if err := s.setupHTTPSProxyHandler(); err != nil {
		_ = storage.Close()
		return nil, err
	}
	s.setupHTTPProxyHandler()
	s.proxy.NonproxyHandler = s.controlRoutes()

	return s, nil
}

func (s *Server) setupHTTPProxyHandler() {
	// Cross-origin requests match no handler and are forwarded untouched
	s.proxy.OnRequest(condition(s.rule)).DoFunc(s.handleFetch)
}

// Boot runs the install event, then activates when the worker asked to skip waiting.
// An activated worker keeps serving when the install fails. A fresh worker
// resumes from a complete stored precache, otherwise it turns redundant and
// requests pass through.
func (s *Server) Boot(ctx context.Context) error {
	_, err := s.dispatcher.Dispatch(ctx, worker.Event{Type: worker.EventInstall}).Wait(ctx)
	if err != nil {
		return err
	}
	logrus.Infof("Worker %s for %s", s.worker.State(), s.origin)
	return nil
}

// Start boots the worker and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if err := s.Boot(ctx); err != nil {
		logrus.Errorf("Worker not installed, proxying without interception: %v", err)
	}

	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.proxy,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	logrus.Infof("Starting worker proxy on port %d", s.config.Server.Port)
	logrus.Infof("Origin: %s", s.origin)
	logrus.Infof("Cache backend: %s (%s, %s)", s.config.Cache.Backend, s.config.Cache.PrecacheName, s.config.Cache.RuntimeName)

	errs := make(chan error, 2)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	if addr := s.config.Server.HTTPS.TransparentAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("failed to listen for https connections: %w", err)
		}
		logrus.Infof("Transparent HTTPS listener on %s", addr)
		go func() {
			errs <- s.ServeTransparentHTTPS(ctx, ln)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logrus.Warnf("Shutdown: %v", serr)
	}
	s.worker.Settle()

	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// Close releases the cache storage. Pending cache writes are awaited first.
func (s *Server) Close() error {
	s.worker.Settle()
	return s.storage.Close()
}

// GetProxy returns the underlying goproxy server (exported for testing)
func (s *Server) GetProxy() *goproxy.ProxyHttpServer {
	return s.proxy
}

// Worker returns the hosted worker
func (s *Server) Worker() *worker.Worker {
	return s.worker
}

// Dispatcher returns the event dispatcher of the hosted worker
func (s *Server) Dispatcher() *worker.Dispatcher {
	return s.dispatcher
}
