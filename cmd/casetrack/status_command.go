package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"casetrack/internal/api"
	"casetrack/internal/config"
	"casetrack/internal/preflight"
	"casetrack/internal/tasks"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status, task counts, and preflight checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.newClient()
			if err != nil {
				return err
			}

			var status *api.DaemonStatus
			if skipChecks {
				status, err = client.Status(cmd.Context())
			} else {
				status, err = client.StatusWithChecks(cmd.Context())
			}
			if errors.Is(err, api.ErrDaemonUnavailable) {
				status, err = offlineStatus(cmd, cfg, !skipChecks)
			}
			if err != nil {
				return wrapDaemonError(err, ctx.daemonURL())
			}

			if jsonOutput {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status, ctx.daemonURL(), shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&skipChecks, "no-checks", false, "Skip preflight checks")
	return cmd
}

// offlineStatus assembles what can be known without the daemon: local counts
// and preflight results.
func offlineStatus(cmd *cobra.Command, cfg *config.Config, withChecks bool) (*api.DaemonStatus, error) {
	store, err := tasks.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	defer store.Close()

	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return nil, err
	}
	status := &api.DaemonStatus{
		DatabasePath: store.Path(),
		LockFilePath: cfg.LockPath(),
		LogPath:      cfg.LogPath(),
		BackendURL:   cfg.Backend.BaseURL,
		Counts:       api.MergeStats(stats),
	}
	if withChecks {
		status.Checks = api.FromChecks(preflight.RunAll(cmd.Context(), cfg))
	}
	return status, nil
}

func renderStatus(out io.Writer, status *api.DaemonStatus, url string, colorize bool) {
	for _, line := range renderSectionHeader("casetrack", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		detail := fmt.Sprintf("running (pid %d, session %s)", status.PID, status.SessionID)
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, detail, colorize))
		fmt.Fprintln(out, renderStatusLine("API", statusInfo, url, colorize))
		fmt.Fprintln(out, renderStatusLine("Active pollers", statusInfo, fmt.Sprint(status.ActivePollers), colorize))
		sinks := "none"
		if len(status.Sinks) > 0 {
			sinks = strings.Join(status.Sinks, ", ")
		}
		fmt.Fprintln(out, renderStatusLine("Notification sinks", statusInfo, sinks, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Backend", statusInfo, dash(status.BackendURL), colorize))
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Log", statusInfo, status.LogPath, colorize))

	states := tasks.AllStates()
	order := make([]string, 0, len(states))
	for _, s := range states {
		order = append(order, string(s))
	}
	renderCounts(out, status.Counts, order)

	if len(status.Checks) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Preflight", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, check := range status.Checks {
		fmt.Fprintln(out, renderCheckLine(check, colorize))
	}
}
