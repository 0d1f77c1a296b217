package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/A6-9V/sw-proxy/internal/proxy"
	"github.com/A6-9V/sw-proxy/internal/worker"
)

var cmdMessage = &cobra.Command{
	Use:   "message SKIP_WAITING|CACHE_STATS|CLEAR_CACHE",
	Short: "Send a command to a running worker",
	Long: `
The "message" command sends a command to the worker of a running server and
prints the reply, if any.

EXIT STATUS
===========

Exit status is 0 if the command was accepted, and non-zero if there was any error.
`,
	Args:              cobra.ExactArgs(1),
	ValidArgs:         []string{worker.MessageSkipWaiting, worker.MessageCacheStats, worker.MessageClearCache},
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMessage(cmd.Context(), strings.ToUpper(args[0]))
	},
}

// RemoteOptions select the running server
type RemoteOptions struct {
	Server string
}

var remoteOptions RemoteOptions

func init() {
	cmdRoot.AddCommand(cmdMessage)
	cmdMessage.Flags().StringVar(&remoteOptions.Server, "server", "", "server `url` (default: http://localhost:<configured port>)")
}

// controlURL returns the URL of a control endpoint of the running server
func controlURL(path string) (string, error) {
	base := remoteOptions.Server
	if base == "" {
		cfg, err := loadConfig()
		if err != nil {
			return "", err
		}
		base = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	return strings.TrimSuffix(base, "/") + proxy.ControlPrefix + path, nil
}

// post sends body to a control endpoint and copies the reply to stdout
func post(ctx context.Context, path, contentType string, body io.Reader) error {
	target, err := controlURL(path)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func runMessage(ctx context.Context, msgType string) error {
	data, err := json.Marshal(worker.Message{Type: msgType})
	if err != nil {
		return err
	}
	return post(ctx, "/message", "application/json", strings.NewReader(string(data)))
}
