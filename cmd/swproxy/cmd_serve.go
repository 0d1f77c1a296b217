package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/A6-9V/sw-proxy/internal/proxy"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker proxy",
	Long: `
The "serve" command installs and activates the worker, then serves proxy and
control requests until interrupted.

EXIT STATUS
===========

Exit status is 0 if the server stopped cleanly, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	cmdRoot.AddCommand(cmdServe)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	server, err := proxy.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			logrus.Warnf("Failed to close cache storage: %v", err)
		}
	}()

	return server.Start(ctx)
}
