package clients

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoReply struct {
	Type string `json:"type"`
	From string `json:"from"`
}

func dial(t *testing.T, server *httptest.Server, page string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?url=" + page
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, r *Registry, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.List()) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestRegistryMessagesReplyOnSamePage(t *testing.T) {
	registry := NewRegistry()
	server := httptest.NewServer(registry.Handler(func(ctx context.Context, client *Client, data []byte) {
		_ = client.PostMessage(echoReply{Type: string(data), From: client.ID})
	}))
	defer server.Close()

	conn := dial(t, server, "/dashboard/index.html")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("PING")))

	var reply echoReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "PING", reply.Type)
	assert.NotEmpty(t, reply.From)

	infos := registry.List()
	require.Len(t, infos, 1)
	assert.Equal(t, reply.From, infos[0].ID)
	assert.Equal(t, "/dashboard/index.html", infos[0].URL)
}

func TestRegistryClaim(t *testing.T) {
	registry := NewRegistry()
	server := httptest.NewServer(registry.Handler(func(context.Context, *Client, []byte) {}))
	defer server.Close()

	dial(t, server, "/")
	waitForClients(t, registry, 1)
	assert.False(t, registry.List()[0].Controlled)

	assert.Equal(t, 1, registry.Claim())
	assert.True(t, registry.List()[0].Controlled)

	// pages connecting after the claim are controlled immediately
	dial(t, server, "/index.html")
	waitForClients(t, registry, 2)
	assert.True(t, registry.List()[1].Controlled)
}

func TestRegistryOpenWindow(t *testing.T) {
	registry := NewRegistry()
	assert.ErrorIs(t, registry.OpenWindow(context.Background(), "/"), ErrNoClient)

	server := httptest.NewServer(registry.Handler(func(context.Context, *Client, []byte) {}))
	defer server.Close()

	conn := dial(t, server, "/dashboard/index.html")
	waitForClients(t, registry, 1)

	require.NoError(t, registry.OpenWindow(context.Background(), "/"))

	var msg Navigate
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, Navigate{Type: "NAVIGATE", URL: "/"}, msg)
}

func TestRegistryRemovesDisconnectedPages(t *testing.T) {
	registry := NewRegistry()
	server := httptest.NewServer(registry.Handler(func(context.Context, *Client, []byte) {}))
	defer server.Close()

	conn := dial(t, server, "/")
	waitForClients(t, registry, 1)

	require.NoError(t, conn.Close())
	waitForClients(t, registry, 0)
}
