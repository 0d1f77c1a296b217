package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/A6-9V/sw-proxy/internal/cache"
	"github.com/A6-9V/sw-proxy/internal/clients"
	"github.com/A6-9V/sw-proxy/internal/worker"
)

// ControlPrefix is where the control surface is mounted on the proxy port
const ControlPrefix = "/__sw"

const maxPushPayload = 4 << 10

// StateResponse describes the hosted worker
type StateResponse struct {
	State       string         `json:"state"`
	SkipWaiting bool           `json:"skip_waiting"`
	Origin      string         `json:"origin"`
	Partitions  []cache.Stat   `json:"partitions"`
	Clients     []clients.Info `json:"clients"`
	Certs       int            `json:"certificates"`
}

// controlRoutes serves requests sent to the proxy itself rather than through it
func (s *Server) controlRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route(ControlPrefix, func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Get("/state", s.getState)
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/clients", s.clients.Handler(s.onClientMessage))
		r.Post("/install", s.postInstall)
		r.Post("/message", s.postMessage)
		r.Post("/push", s.postPush)
		r.Post("/notificationclick", s.postNotificationClick)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "This is a proxy server. Point your client at it to reach "+s.origin.String(), http.StatusNotFound)
	})
	return r
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	stats, err := cache.Stats(s.storage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{
		State:       s.worker.State().String(),
		SkipWaiting: s.worker.SkipWaitingRequested(),
		Origin:      s.origin.String(),
		Partitions:  stats,
		Clients:     s.clients.List(),
		Certs:       s.certs.Len(),
	})
}

// postInstall re-registers the worker: install, then activate when skipping waiting
func (s *Server) postInstall(w http.ResponseWriter, r *http.Request) {
	if err := s.Boot(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	s.getState(w, r)
}

// postMessage runs a command. The reply, if any, is the response body.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var msg worker.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		mu    sync.Mutex
		reply any
	)
	port := worker.PortFunc(func(v any) error {
		mu.Lock()
		defer mu.Unlock()
		reply = v
		return nil
	})

	if _, err := s.dispatch(r.Context(), worker.Event{Type: worker.EventMessage, Message: msg, Port: port}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	mu.Lock()
	defer mu.Unlock()
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) postPush(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPushPayload))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.dispatch(r.Context(), worker.Event{Type: worker.EventPush, Payload: payload}); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) postNotificationClick(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if _, err := s.dispatch(r.Context(), worker.Event{Type: worker.EventNotificationClick, Tag: tag}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// onClientMessage handles commands sent over a client page connection, replying on the same connection
func (s *Server) onClientMessage(ctx context.Context, client *clients.Client, data []byte) {
	var msg worker.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logrus.Warnf("Invalid message from client %s: %v", client.ID, err)
		return
	}
	if _, err := s.dispatch(ctx, worker.Event{Type: worker.EventMessage, Message: msg, Port: client}); err != nil {
		logrus.Errorf("Message %s from client %s failed: %v", msg.Type, client.ID, err)
	}
}

func (s *Server) dispatch(ctx context.Context, ev worker.Event) (*worker.FetchResult, error) {
	return s.dispatcher.Dispatch(ctx, ev).Wait(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if errors.Is(err, context.Canceled) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
