package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "test_config.yaml")

	configContent := `
server:
  port: 9999
origin: "http://app.local:3000"
cache:
  backend: "memory"
  version: "v2"
worker:
  api_segment: "/rest/"
  precache: ["/", "/app.js"]
notifications:
  tag: "alerts"
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	// Test loading the config
	config, err := Load(configFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if config.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", config.Server.Port)
	}

	if config.Cache.PrecacheName != "mql5-automation-v2" {
		t.Errorf("Expected precache name 'mql5-automation-v2', got '%s'", config.Cache.PrecacheName)
	}

	if config.Cache.RuntimeName != "mql5-runtime-v2" {
		t.Errorf("Expected runtime name 'mql5-runtime-v2', got '%s'", config.Cache.RuntimeName)
	}

	if config.Worker.APISegment != "/rest/" {
		t.Errorf("Expected API segment '/rest/', got '%s'", config.Worker.APISegment)
	}

	if len(config.Worker.Precache) != 2 {
		t.Errorf("Expected 2 precache entries, got %d", len(config.Worker.Precache))
	}

	if config.Notifications.Tag != "alerts" {
		t.Errorf("Expected tag 'alerts', got '%s'", config.Notifications.Tag)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("origin: http://localhost:3000\n"), 0644))

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendDisk, cfg.Cache.Backend)
	assert.Equal(t, "mql5-automation-v1", cfg.Cache.PrecacheName)
	assert.Equal(t, "mql5-runtime-v1", cfg.Cache.RuntimeName)
	assert.Equal(t, "/api/", cfg.Worker.APISegment)
	assert.Equal(t, DefaultPrecache, cfg.Worker.Precache)
	assert.Equal(t, "/offline.html", cfg.Worker.OfflinePage)
	assert.Equal(t, "MQL5 Trading Automation", cfg.Notifications.Title)
	assert.Equal(t, "New trading notification", cfg.Notifications.DefaultBody)
	assert.Equal(t, []int{200, 100, 200}, cfg.Notifications.Vibrate)
	assert.Equal(t, "trading-notification", cfg.Notifications.Tag)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("origin: http://localhost:3000\nserver:\n  port: 9000\n"), 0644))

	t.Setenv("SWPROXY_SERVER_PORT", "9100")
	t.Setenv("SWPROXY_CACHE_BACKEND", "sqlite")
	t.Setenv("SWPROXY_WORKER_PRECACHE", "/,/offline.html")

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, []string{"/", "/offline.html"}, cfg.Worker.Precache)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func validConfig() Config {
	cfg := Config{
		Origin: "http://localhost:3000",
		Cache:  CacheConfig{Folder: "/tmp/cache"},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: true,
		},
		{
			name:    "missing origin",
			mutate:  func(c *Config) { c.Origin = "" },
			wantErr: true,
		},
		{
			name:    "origin with path",
			mutate:  func(c *Config) { c.Origin = "http://localhost:3000/app" },
			wantErr: true,
		},
		{
			name:    "origin with bad scheme",
			mutate:  func(c *Config) { c.Origin = "ftp://localhost" },
			wantErr: true,
		},
		{
			name:    "invalid backend",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			wantErr: true,
		},
		{
			name:    "disk backend without folder",
			mutate:  func(c *Config) { c.Cache.Folder = "" },
			wantErr: true,
		},
		{
			name: "memory backend without folder",
			mutate: func(c *Config) {
				c.Cache.Backend = BackendMemory
				c.Cache.Folder = ""
			},
			wantErr: false,
		},
		{
			name:    "same partition names",
			mutate:  func(c *Config) { c.Cache.RuntimeName = c.Cache.PrecacheName },
			wantErr: true,
		},
		{
			name:    "relative precache entry",
			mutate:  func(c *Config) { c.Worker.Precache = []string{"index.html"} },
			wantErr: true,
		},
		{
			name:    "invalid network timeout",
			mutate:  func(c *Config) { c.Worker.NetworkTimeout = "soon" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetNetworkTimeout(t *testing.T) {
	config := Config{
		Worker: WorkerConfig{NetworkTimeout: "1m30s"},
	}

	timeout, err := config.GetNetworkTimeout()
	if err != nil {
		t.Fatalf("GetNetworkTimeout() error = %v", err)
	}

	expected := time.Minute + 30*time.Second
	if timeout != expected {
		t.Errorf("GetNetworkTimeout() = %v, want %v", timeout, expected)
	}

	config.Worker.NetworkTimeout = ""
	timeout, err = config.GetNetworkTimeout()
	require.NoError(t, err)
	assert.Zero(t, timeout)
}
