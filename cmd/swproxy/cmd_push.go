package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

var cmdPush = &cobra.Command{
	Use:   "push [body]",
	Short: "Send a push message to a running worker",
	Long: `
The "push" command delivers a push message to the worker of a running server,
which shows it as a notification. Without a body the default text is shown.

EXIT STATUS
===========

Exit status is 0 if the notification was shown, and non-zero if there was any error.
`,
	Args:              cobra.MaximumNArgs(1),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := ""
		if len(args) > 0 {
			body = args[0]
		}
		return runPush(cmd.Context(), body)
	},
}

func init() {
	cmdRoot.AddCommand(cmdPush)
	cmdPush.Flags().StringVar(&remoteOptions.Server, "server", "", "server `url` (default: http://localhost:<configured port>)")
}

func runPush(ctx context.Context, body string) error {
	return post(ctx, "/push", "text/plain", strings.NewReader(body))
}
