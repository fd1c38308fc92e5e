package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"casetrack/internal/api"
	"casetrack/internal/notifications"
	"casetrack/internal/submit"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit work to the backend and track the resulting tasks",
	}

	submitCmd.AddCommand(newSubmitCategoryCommand(ctx, "evidence", submit.CategoryEvidenceAnalysis))
	submitCmd.AddCommand(newSubmitCategoryCommand(ctx, "association", submit.CategoryAssociationEvidenceAnalysis))
	submitCmd.AddCommand(newSubmitCategoryCommand(ctx, "cards", submit.CategoryCardCasting))

	return submitCmd
}

func newSubmitCategoryCommand(ctx *commandContext, use string, category submit.Category) *cobra.Command {
	var caseID string
	var evidence []string
	var jsonOutput bool

	label := notifications.CategoryLabel(string(category))
	cmd := &cobra.Command{
		Use:   use + " [evidence-id...]",
		Short: "Start " + strings.ToLower(label),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(caseID) == "" {
				return fmt.Errorf("--case is required")
			}
			req := api.SubmitRequest{
				CaseID:      caseID,
				EvidenceIDs: append(append([]string(nil), evidence...), args...),
			}
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Submit(cmd.Context(), string(category), req)
				if err != nil {
					return fmt.Errorf("%s submission failed: %w", label, err)
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				switch len(resp.TaskIDs) {
				case 0:
					fmt.Fprintf(out, "%s accepted; the backend returned no task ids\n", label)
				case 1:
					fmt.Fprintf(out, "%s started: %s\n", label, resp.TaskIDs[0])
				default:
					fmt.Fprintf(out, "%s started %d tasks:\n", label, len(resp.TaskIDs))
					for _, id := range resp.TaskIDs {
						fmt.Fprintf(out, "  %s\n", id)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "Case id (required)")
	cmd.Flags().StringSliceVarP(&evidence, "evidence", "e", nil, "Evidence id (repeatable, or pass as arguments)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
