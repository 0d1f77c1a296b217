package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/A6-9V/sw-proxy/internal/cache"
	"github.com/A6-9V/sw-proxy/internal/proxy"
)

var cmdInstall = &cobra.Command{
	Use:   "install",
	Short: "Precache the application and exit",
	Long: `
The "install" command fetches the precache manifest into the configured cache
storage and deletes the partitions of previous versions, without serving.
The partition sizes are printed as JSON.

EXIT STATUS
===========

Exit status is 0 if every manifest entry was stored, and non-zero otherwise.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd.Context())
	},
}

func init() {
	cmdRoot.AddCommand(cmdInstall)
}

func runInstall(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	server, err := proxy.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = server.Close() }()

	if err := server.Boot(ctx); err != nil {
		return err
	}

	stats, err := cache.Stats(server.Worker().Storage())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
