package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"casetrack/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var raw bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			emit := func(batch []string) {
				for _, line := range batch {
					if raw {
						fmt.Fprintln(out, line)
						continue
					}
					entry, _ := logs.ParseEntry(line)
					fmt.Fprintln(out, logs.Format(entry))
				}
			}

			result, err := logs.Tail(cmd.Context(), cfg.LogPath(), logs.TailOptions{
				Offset: -1,
				Limit:  lines,
				Filter: filter,
			})
			if err != nil {
				return err
			}
			emit(result.Lines)
			if !follow {
				return nil
			}

			offset := result.Offset
			for {
				result, err := logs.Tail(cmd.Context(), cfg.LogPath(), logs.TailOptions{
					Offset: offset,
					Follow: true,
					Wait:   5 * time.Second,
					Filter: filter,
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					return err
				}
				emit(result.Lines)
				offset = result.Offset
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON records as written")
	cmd.Flags().StringVar(&filter.TaskID, "task", "", "Only entries for this task id")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only entries from this component")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}
