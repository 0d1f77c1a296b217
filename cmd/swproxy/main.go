package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/A6-9V/sw-proxy/internal/config"
)

var version = "0.1.0"

// GlobalOptions hold the flags shared by every command
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string
}

var globalOptions GlobalOptions

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "swproxy",
	Short: "Offline caching worker for a web application",
	Long: `
swproxy hosts an offline caching worker in front of a web application. Point a
browser (or any HTTP client) at it as a proxy: requests to the application origin
are served network-first (API) or cache-first (static assets), everything else is
forwarded untouched.
`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
		os.Exit(0)
	},
}

func init() {
	f := cmdRoot.PersistentFlags()
	f.StringVarP(&globalOptions.ConfigPath, "config", "c", "configs/config.yaml", "configuration `file`")
	f.StringVar(&globalOptions.LogLevel, "log-level", "", "log level, overrides the configuration")
}

// loadConfig loads and validates the configuration, then sets up logging from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalOptions.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if globalOptions.LogLevel != "" {
		cfg.Log.Level = globalOptions.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmdRoot.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
