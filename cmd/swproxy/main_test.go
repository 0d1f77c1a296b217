package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A6-9V/sw-proxy/internal/config"
)

func TestSetupLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	setupLogging(config.LogConfig{Level: "debug", JSON: true})
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	setupLogging(config.LogConfig{Level: "bogus"})
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}

func TestControlURL(t *testing.T) {
	defer func() { remoteOptions = RemoteOptions{}; globalOptions = GlobalOptions{} }()

	remoteOptions.Server = "http://10.0.0.2:9000/"
	got, err := controlURL("/message")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:9000/__sw/message", got)

	remoteOptions.Server = ""
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("origin: http://localhost:3000\nserver:\n  port: 8181\ncache:\n  backend: memory\n"), 0644))
	globalOptions.ConfigPath = path

	got, err = controlURL("/push")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8181/__sw/push", got)
}

func TestRunMessage(t *testing.T) {
	defer func() { remoteOptions = RemoteOptions{} }()

	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/__sw/message", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		received = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	remoteOptions.Server = srv.URL
	require.NoError(t, runMessage(context.Background(), "SKIP_WAITING"))
	assert.JSONEq(t, `{"type":"SKIP_WAITING"}`, received)
}

func TestRunPushServerError(t *testing.T) {
	defer func() { remoteOptions = RemoteOptions{} }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"delivery failed"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	remoteOptions.Server = srv.URL
	err := runPush(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery failed")
}
