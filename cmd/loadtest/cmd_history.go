package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"virkum-respond/internal/repository"

	"github.com/spf13/cobra"
)

func newHistoryCmd(env *cliEnv) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := env.database(cmd.Context())
			if err != nil {
				return err
			}
			tests, err := repository.NewPgTestRepository(db.Pool, env.log).List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if len(tests) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TEST\tSTARTED\tEMAILS\tCONCURRENCY\tOK\tFAILED\tSENT\tGRADE\tCOMPANIES")
			for _, t := range tests {
				emails := fmt.Sprintf("%d/%d", t.TotalRequests, t.NumEmails)
				if t.Cancelled {
					emails += " (cancelled)"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
					t.TestID,
					t.StartedAt.Local().Format("2006-01-02 15:04"),
					emails,
					t.ConcurrencyLevel,
					t.SuccessCount,
					t.FailureCount,
					t.SentCount,
					formatGrade(t.AvgReplyGrade),
					joinLimited(t.Companies, 3),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs to show")
	return cmd
}

func joinLimited(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s +%d", strings.Join(items[:n], ", "), len(items)-n)
}
