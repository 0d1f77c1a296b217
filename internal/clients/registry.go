// Package clients tracks the client pages connected to the worker over websocket.
// A connected page is both a message source and the reply port for its messages.
package clients

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrNoClient is returned when a window has to be focused but no page is connected
var ErrNoClient = errors.New("no client page connected")

// Navigate is posted to a page to focus it on a URL
type Navigate struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Client is one connected page
type Client struct {
	ID         string
	URL        string
	conn       *websocket.Conn
	writeMu    sync.Mutex
	controlled atomic.Bool
}

// PostMessage sends v to the page as JSON
func (c *Client) PostMessage(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Controlled reports whether the worker controls this page
func (c *Client) Controlled() bool {
	return c.controlled.Load()
}

// Info describes a connected page
type Info struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Controlled bool   `json:"controlled"`
}

// MessageHandler receives every message a page sends
type MessageHandler func(ctx context.Context, client *Client, data []byte)

// Registry holds the connected pages in connection order
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	order    []string
	claimed  bool
	upgrader websocket.Upgrader
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			// Any page may connect; the command channel is unauthenticated.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler upgrades the request and serves the page until it disconnects
func (r *Registry) Handler(onMessage MessageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			logrus.Errorf("Failed to upgrade client connection: %v", err)
			return
		}

		client := r.add(conn, req.URL.Query().Get("url"))
		defer r.remove(client.ID)
		defer func() { _ = conn.Close() }()

		logrus.Debugf("Client %s connected (controlled=%t)", client.ID, client.Controlled())

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logrus.Debugf("Client %s read error: %v", client.ID, err)
				}
				return
			}
			onMessage(req.Context(), client, data)
		}
	}
}

func (r *Registry) add(conn *websocket.Conn, url string) *Client {
	client := &Client{ID: uuid.NewString(), URL: url, conn: conn}

	r.mu.Lock()
	defer r.mu.Unlock()
	client.controlled.Store(r.claimed)
	r.clients[client.ID] = client
	r.order = append(r.order, client.ID)
	return client
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	logrus.Debugf("Client %s disconnected", id)
}

// Claim takes control of every connected page and of pages connecting later.
// It returns the number of pages claimed now.
func (r *Registry) Claim() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed = true
	for _, c := range r.clients {
		c.controlled.Store(true)
	}
	return len(r.clients)
}

// List describes the connected pages
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		c := r.clients[id]
		infos = append(infos, Info{ID: c.ID, URL: c.URL, Controlled: c.Controlled()})
	}
	return infos
}

// OpenWindow focuses the first connected page on url.
// A server cannot open a browser window, so without a page it returns ErrNoClient.
func (r *Registry) OpenWindow(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	var target *Client
	if len(r.order) > 0 {
		target = r.clients[r.order[0]]
	}
	r.mu.RUnlock()

	if target == nil {
		return ErrNoClient
	}
	return target.PostMessage(Navigate{Type: "NAVIGATE", URL: url})
}
