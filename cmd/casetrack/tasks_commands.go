package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"casetrack/internal/api"
	"casetrack/internal/taskaccess"
	"casetrack/internal/tasks"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Inspect and manage tracked tasks",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))
	tasksCmd.AddCommand(newTasksTrackCommand(ctx))
	tasksCmd.AddCommand(newTasksRemoveCommand(ctx))
	tasksCmd.AddCommand(newTasksRetryCommand(ctx))
	tasksCmd.AddCommand(newTasksClearCommand(ctx))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var states []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tracked tasks grouped by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, state := range states {
				if _, ok := tasks.ParseState(state); !ok {
					return fmt.Errorf("unknown state %q (valid: %s)", state, stateNames())
				}
			}
			return ctx.withTasks(cmd, func(access taskaccess.Access) error {
				list, err := access.List(cmd.Context(), states)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, list)
				}
				renderTaskGroups(cmd.OutOrStdout(), list, shouldColorize(cmd.OutOrStdout()), time.Now())
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by state (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(cmd, func(access taskaccess.Access) error {
				task, err := access.Describe(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, task)
				}
				renderTaskDetail(cmd.OutOrStdout(), task, shouldColorize(cmd.OutOrStdout()), time.Now())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newTasksTrackCommand(ctx *commandContext) *cobra.Command {
	var taskCtx api.TaskContext

	cmd := &cobra.Command{
		Use:   "track <id>",
		Short: "Track an existing backend task id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.TrackTask(cmd.Context(), api.TrackRequest{
					ID:      strings.TrimSpace(args[0]),
					Context: taskCtx,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Added {
					fmt.Fprintf(out, "Tracking %s (%s)\n", resp.Task.ID, resp.Task.State)
				} else {
					fmt.Fprintf(out, "Already tracking %s (%s)\n", resp.Task.ID, resp.Task.State)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&taskCtx.Category, "category", "", "Task category, e.g. evidence_analysis")
	cmd.Flags().StringVar(&taskCtx.Title, "title", "", "Display title")
	cmd.Flags().StringVar(&taskCtx.Description, "description", "", "Display description")
	cmd.Flags().StringVar(&taskCtx.CaseID, "case", "", "Case id the task belongs to")
	cmd.Flags().StringVar(&taskCtx.Target, "target", "", "Navigation target shown when the task finishes")
	return cmd
}

func newTasksRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>...",
		Aliases: []string{"rm"},
		Short:   "Stop tracking tasks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(cmd, func(access taskaccess.Access) error {
				out := cmd.OutOrStdout()
				var missing []string
				for _, id := range args {
					removed, err := access.Remove(cmd.Context(), id)
					if err != nil && !errors.Is(err, tasks.ErrNotFound) {
						return err
					}
					if !removed {
						missing = append(missing, id)
						continue
					}
					fmt.Fprintf(out, "Removed %s\n", id)
				}
				if len(missing) > 0 {
					return fmt.Errorf("%w: %s", tasks.ErrNotFound, strings.Join(missing, ", "))
				}
				return nil
			})
		},
	}
}

func newTasksRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Re-queue failed or cancelled tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(cmd, func(access taskaccess.Access) error {
				out := cmd.OutOrStdout()
				var errs []error
				for _, id := range args {
					task, err := access.Retry(cmd.Context(), id)
					switch {
					case errors.Is(err, tasks.ErrNotFound):
						fmt.Fprintf(out, "%s: not found\n", id)
						errs = append(errs, err)
					case errors.Is(err, tasks.ErrNotRetryable):
						fmt.Fprintf(out, "%s: not failed or cancelled\n", id)
						errs = append(errs, err)
					case err != nil:
						return err
					default:
						fmt.Fprintf(out, "Retrying %s (%s)\n", task.ID, task.State)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newTasksClearCommand(ctx *commandContext) *cobra.Command {
	var completedOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove tracked tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(cmd, func(access taskaccess.Access) error {
				removed, err := access.Clear(cmd.Context(), completedOnly)
				if err != nil {
					return err
				}
				scope := "tasks"
				if completedOnly {
					scope = "finished tasks"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s\n", removed, scope)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&completedOnly, "completed", false, "Only clear finished tasks")
	return cmd
}

func stateNames() string {
	states := tasks.AllStates()
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
