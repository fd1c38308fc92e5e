package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"casetrack/internal/api"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	var since int64
	var follow bool
	var interval time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"toasts"},
		Short:   "Show recent task notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				cursor := since
				printed := false
				for {
					resp, err := client.Notifications(cmd.Context(), cursor)
					if err != nil {
						if follow && errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
					if jsonOutput && !follow {
						return writeJSON(cmd, resp)
					}
					for _, n := range resp.Items {
						if jsonOutput {
							if err := writeJSON(cmd, n); err != nil {
								return err
							}
						} else {
							fmt.Fprintln(out, renderNotificationLine(n, colorize))
						}
						printed = true
					}
					if resp.Next > cursor {
						cursor = resp.Next
					}
					if !follow {
						if !printed && !jsonOutput {
							fmt.Fprintln(out, "No notifications")
						}
						return nil
					}
					select {
					case <-cmd.Context().Done():
						return nil
					case <-time.After(interval):
					}
				}
			})
		},
	}

	cmd.Flags().Int64Var(&since, "since", 0, "Only show notifications after this sequence number")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new notifications")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval with --follow")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
