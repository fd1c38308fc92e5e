package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"casetrack/internal/daemonctl"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 10 * time.Second
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.newClient()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, ctx.launchOptions(), startWaitTimeout)
			if err != nil {
				return wrapDaemonError(err, ctx.daemonURL())
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.newClient()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(cmd.Context(), client, cfg.PIDPath(), stopGracePeriod)
			out := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in %s; killed pid %d\n", stopGracePeriod, result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	startCmd := newStartCommand(ctx)
	stopCmd := newStopCommand(ctx)
	return &cobra.Command{
		Use:   "restart",
		Short: "Stop the daemon if running, then start it",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopCmd.SetOut(cmd.OutOrStdout())
			startCmd.SetOut(cmd.OutOrStdout())
			stopCmd.SetContext(cmd.Context())
			startCmd.SetContext(cmd.Context())
			if err := stopCmd.RunE(stopCmd, nil); err != nil {
				return err
			}
			return startCmd.RunE(startCmd, nil)
		},
	}
}

func (c *commandContext) launchOptions() daemonctl.LaunchOptions {
	var opts daemonctl.LaunchOptions
	if c.configFlag != nil {
		opts.ConfigPath = strings.TrimSpace(*c.configFlag)
	}
	return opts
}
