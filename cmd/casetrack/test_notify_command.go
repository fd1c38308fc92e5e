package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"casetrack/internal/api"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through every configured sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.TestNotification(cmd.Context())
				if err != nil {
					if api.StatusCode(err) == http.StatusBadGateway {
						return fmt.Errorf("test notification failed: %w", err)
					}
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case resp.Message != "":
					fmt.Fprintln(out, resp.Message)
				case resp.Sent:
					fmt.Fprintln(out, "Test notification sent")
				default:
					fmt.Fprintln(out, "Notification not sent")
				}
				if len(resp.Sinks) > 0 {
					fmt.Fprintf(out, "Sinks: %s\n", strings.Join(resp.Sinks, ", "))
				}
				return nil
			})
		},
	}
}
