package proxy

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A6-9V/sw-proxy/internal/config"
	"github.com/A6-9V/sw-proxy/internal/worker"
)

func testConfig(origin string) *config.Config {
	cfg := &config.Config{
		Origin: origin,
		Cache:  config.CacheConfig{Backend: config.BackendMemory},
	}
	cfg.SetDefaults()
	return cfg
}

func newTestServer(t *testing.T, origin string) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(testConfig(origin))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ts := httptest.NewServer(s.GetProxy())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestNew(t *testing.T) {
	s, err := New(testConfig("http://localhost:3000"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	assert.Equal(t, worker.StateParsed, s.Worker().State())
	assert.Equal(t, "mql5-automation-v1", s.Worker().Options().PrecacheName)
}

func TestNewInvalidConfig(t *testing.T) {
	_, err := New(testConfig("localhost:3000"))
	assert.Error(t, err)

	cfg := testConfig("http://localhost:3000")
	cfg.Worker.NetworkTimeout = "soon"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = testConfig("http://localhost:3000")
	cfg.Server.HTTPS.CACertFile = "/nonexistent/ca.pem"
	cfg.Server.HTTPS.CAKeyFile = "/nonexistent/ca.key"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestOriginRuleMatch(t *testing.T) {
	origin, err := url.Parse("http://localhost:3000")
	require.NoError(t, err)
	rule := &OriginRule{Origin: origin}

	tests := []struct {
		name      string
		targetURL string
		host      string
		want      bool
	}{
		{
			name:      "absolute same origin",
			targetURL: "http://localhost:3000/api/x",
			want:      true,
		},
		{
			name:      "relative URL resolved with Host",
			targetURL: "/logo.png",
			host:      "localhost:3000",
			want:      true,
		},
		{
			name:      "different port",
			targetURL: "http://localhost:8000/api/x",
			want:      false,
		},
		{
			name:      "different host",
			targetURL: "http://cdn.example.com/lib.js",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.targetURL)
			if err != nil {
				t.Fatalf("Failed to parse URL %s: %v", tt.targetURL, err)
			}

			requ := &http.Request{
				URL:    u,
				Host:   tt.host,
				Method: http.MethodGet,
			}

			got := rule.Match(requ)
			if got != tt.want {
				t.Errorf("OriginRule.Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOriginRuleMatchConnect(t *testing.T) {
	https, err := url.Parse("https://app.example.com")
	require.NoError(t, err)
	plain, err := url.Parse("http://app.example.com")
	require.NoError(t, err)

	assert.True(t, (&OriginRule{Origin: https}).MatchConnect("app.example.com:443"))
	assert.True(t, (&OriginRule{Origin: https}).MatchConnect("APP.example.com"))
	assert.False(t, (&OriginRule{Origin: https}).MatchConnect("app.example.com:8443"))
	assert.False(t, (&OriginRule{Origin: https}).MatchConnect("cdn.example.com:443"))
	assert.False(t, (&OriginRule{Origin: plain}).MatchConnect("app.example.com:443"))
}

func TestControlHealth(t *testing.T) {
	_, ts := newTestServer(t, "http://localhost:3000")

	resp, err := http.Get(ts.URL + ControlPrefix + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestControlMessage(t *testing.T) {
	s, ts := newTestServer(t, "http://localhost:3000")
	p, err := s.storage.Open("mql5-automation-v1")
	require.NoError(t, err)
	require.NoError(t, p.Set("localhost_3000/GET.bin", []byte("x")))

	post := func(body string) *http.Response {
		resp, err := http.Post(ts.URL+ControlPrefix+"/message", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := post(`{"type":"CACHE_STATS"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats worker.CacheStatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, "CACHE_STATS_RESPONSE", stats.Type)
	require.Len(t, stats.Data, 1)
	assert.Equal(t, 1, stats.Data[0].Size)

	resp = post(`{"type":"CLEAR_CACHE"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"type":"CACHE_CLEARED","success":true}`, string(body))

	resp = post(`{"type":"CACHE_STATS"}`)
	body, _ = io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"type":"CACHE_STATS_RESPONSE","data":[]}`, string(body))

	resp = post(`{"type":"SKIP_WAITING"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = post(`not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestControlPushAndState(t *testing.T) {
	s, ts := newTestServer(t, "http://localhost:3000")

	resp, err := http.Post(ts.URL+ControlPrefix+"/push", "text/plain", strings.NewReader("Order filled"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	active := s.notifier.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Order filled", active[0].Body)

	resp, err = http.Post(ts.URL+ControlPrefix+"/notificationclick", "text/plain", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, s.notifier.Active())

	resp, err = http.Get(ts.URL + ControlPrefix + "/state")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var state StateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, "parsed", state.State)
	assert.Equal(t, "http://localhost:3000", state.Origin)
	assert.Empty(t, state.Clients)
}

func TestControlUnknownPath(t *testing.T) {
	_, ts := newTestServer(t, "http://localhost:3000")

	resp, err := http.Get(ts.URL + "/somewhere")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTargetURL(t *testing.T) {
	requ := httptest.NewRequest(http.MethodGet, "/dashboard/index.html?tab=orders", nil)
	requ.Host = "localhost:3000"
	assert.Equal(t, "http://localhost:3000/dashboard/index.html?tab=orders", targetURL(requ).String())

	abs, err := http.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	require.NoError(t, err)
	assert.Same(t, abs.URL, targetURL(abs))
}

func TestDumbResponseWriterDropsConnectAnswer(t *testing.T) {
	client, server := net.Pipe()
	defer func() { _ = client.Close() }()

	w := &dumbResponseWriter{Conn: server}
	go func() {
		_, _ = w.Write([]byte("HTTP/1.0 200 OK\r\n\r\n"))
		_, _ = w.Write([]byte("hello"))
		_ = server.Close()
	}()

	got, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestControlClientChannel(t *testing.T) {
	s, ts := newTestServer(t, "http://localhost:3000")
	_, err := s.storage.Open("mql5-runtime-v1")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + ControlPrefix + "/clients?url=/dashboard/"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteJSON(worker.Message{Type: worker.MessageCacheStats}))

	var reply worker.CacheStatsResponse
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "CACHE_STATS_RESPONSE", reply.Type)
	require.Len(t, reply.Data, 1)
	assert.Equal(t, "mql5-runtime-v1", reply.Data[0].Name)

	clients := s.clients.List()
	require.Len(t, clients, 1)
	assert.Equal(t, "/dashboard/", clients[0].URL)
}
