package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "SWPROXY_"

// Storage backends
const (
	BackendDisk   = "disk"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// DefaultPrecache is the manifest stored at install time when none is configured
var DefaultPrecache = []string{
	"/",
	"/index.html",
	"/dashboard/index.html",
	"/manifest.json",
	"/sw-inspector.html",
	"/offline.html",
}

// Config represents the application configuration
type Config struct {
	Server        ServerConfig       `yaml:"server" envPrefix:"SERVER_"`
	Origin        string             `yaml:"origin" env:"ORIGIN"`
	Cache         CacheConfig        `yaml:"cache" envPrefix:"CACHE_"`
	Worker        WorkerConfig       `yaml:"worker" envPrefix:"WORKER_"`
	Notifications NotificationConfig `yaml:"notifications" envPrefix:"NOTIFICATIONS_"`
	Log           LogConfig          `yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port  int         `yaml:"port" env:"PORT"`
	HTTPS HTTPSConfig `yaml:"https" envPrefix:"HTTPS_"`
}

// HTTPSConfig configures interception of an HTTPS origin
type HTTPSConfig struct {
	CACertFile string `yaml:"ca_cert_file" env:"CA_CERT_FILE"`
	CAKeyFile  string `yaml:"ca_key_file" env:"CA_KEY_FILE"`
	// Address of an optional transparent (SNI based) HTTPS listener
	TransparentAddr string `yaml:"transparent_addr" env:"TRANSPARENT_ADDR"`
}

// CacheConfig contains cache partition configuration
type CacheConfig struct {
	Backend      string `yaml:"backend" env:"BACKEND"`
	Folder       string `yaml:"folder" env:"FOLDER"`
	Prefix       string `yaml:"prefix" env:"PREFIX"`
	Version      string `yaml:"version" env:"VERSION"`
	PrecacheName string `yaml:"precache_name" env:"PRECACHE_NAME"`
	RuntimeName  string `yaml:"runtime_name" env:"RUNTIME_NAME"`
}

// WorkerConfig contains the request interception policy
type WorkerConfig struct {
	APISegment     string   `yaml:"api_segment" env:"API_SEGMENT"`
	Precache       []string `yaml:"precache" env:"PRECACHE" envSeparator:","`
	OfflinePage    string   `yaml:"offline_page" env:"OFFLINE_PAGE"`
	NetworkTimeout string   `yaml:"network_timeout" env:"NETWORK_TIMEOUT"`
}

// NotificationConfig describes how push messages are displayed
type NotificationConfig struct {
	Title              string   `yaml:"title" env:"TITLE"`
	DefaultBody        string   `yaml:"default_body" env:"DEFAULT_BODY"`
	Icon               string   `yaml:"icon" env:"ICON"`
	Badge              string   `yaml:"badge" env:"BADGE"`
	Vibrate            []int    `yaml:"vibrate" env:"VIBRATE" envSeparator:","`
	Tag                string   `yaml:"tag" env:"TAG"`
	RequireInteraction bool     `yaml:"require_interaction" env:"REQUIRE_INTERACTION"`
	URLs               []string `yaml:"urls" env:"URLS" envSeparator:" "`
	OpenURL            string   `yaml:"open_url" env:"OPEN_URL"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// Load loads configuration from a YAML file, then applies environment overrides
func Load(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}

	config.SetDefaults()
	return &config, nil
}

// SetDefaults fills every unset field with its default value
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendDisk
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "mql5-automation"
	}
	if c.Cache.Version == "" {
		c.Cache.Version = "v1"
	}
	if c.Cache.PrecacheName == "" {
		c.Cache.PrecacheName = c.Cache.Prefix + "-" + c.Cache.Version
	}
	if c.Cache.RuntimeName == "" {
		c.Cache.RuntimeName = "mql5-runtime-" + c.Cache.Version
	}

	if c.Worker.APISegment == "" {
		c.Worker.APISegment = "/api/"
	}
	if c.Worker.Precache == nil {
		c.Worker.Precache = append([]string(nil), DefaultPrecache...)
	}
	if c.Worker.OfflinePage == "" {
		c.Worker.OfflinePage = "/offline.html"
	}

	n := &c.Notifications
	if n.Title == "" {
		n.Title = "MQL5 Trading Automation"
	}
	if n.DefaultBody == "" {
		n.DefaultBody = "New trading notification"
	}
	if n.Icon == "" {
		n.Icon = "/icons/icon-192x192.png"
	}
	if n.Badge == "" {
		n.Badge = "/icons/icon-72x72.png"
	}
	if n.Vibrate == nil {
		n.Vibrate = []int{200, 100, 200}
	}
	if n.Tag == "" {
		n.Tag = "trading-notification"
	}
	if n.OpenURL == "" {
		n.OpenURL = "/"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// OriginURL parses the worker origin
func (c *Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(strings.TrimSuffix(c.Origin, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("origin scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("origin host is required")
	}
	if u.Path != "" || u.RawQuery != "" {
		return nil, fmt.Errorf("origin must not contain a path or query: %s", c.Origin)
	}
	return u, nil
}

// GetNetworkTimeout parses the network timeout. Zero means no timeout.
func (c *Config) GetNetworkTimeout() (time.Duration, error) {
	if c.Worker.NetworkTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Worker.NetworkTimeout)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	if _, err := c.OriginURL(); err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}

	switch c.Cache.Backend {
	case BackendDisk, BackendSQLite:
		if c.Cache.Folder == "" {
			return fmt.Errorf("cache folder is required for the %s backend", c.Cache.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("cache backend must be 'disk', 'memory' or 'sqlite', got: %s", c.Cache.Backend)
	}

	if c.Cache.PrecacheName == "" || c.Cache.RuntimeName == "" {
		return fmt.Errorf("cache partition names are required")
	}
	if c.Cache.PrecacheName == c.Cache.RuntimeName {
		return fmt.Errorf("precache and runtime partitions must have different names, got: %s", c.Cache.PrecacheName)
	}

	if c.Worker.APISegment == "" {
		return fmt.Errorf("worker API segment is required")
	}
	for _, asset := range c.Worker.Precache {
		if !strings.HasPrefix(asset, "/") {
			return fmt.Errorf("precache entries must be absolute paths, got: %s", asset)
		}
	}

	if _, err := c.GetNetworkTimeout(); err != nil {
		return fmt.Errorf("invalid network timeout format: %w", err)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return nil
}
