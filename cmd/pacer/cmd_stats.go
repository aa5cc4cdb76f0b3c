package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newOverviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "overview",
		Aliases: []string{"stats"},
		Short:   "Show practice statistics across all topics",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			overview, err := c.Overview(ctx)
			if err != nil {
				return fmt.Errorf("get overview: %w", err)
			}
			if ok, err := printJSON(cmd, overview); ok {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Practice Overview")
			fmt.Fprintln(out, strings.Repeat("─", 50))
			fmt.Fprintf(out, "Topics tracked:     %d\n", overview.TopicsTracked)
			fmt.Fprintf(out, "Strategies ready:   %d\n", overview.StrategiesReady)
			fmt.Fprintf(out, "Total attempts:     %d\n", overview.TotalAttempts)
			fmt.Fprintf(out, "Total time:         %s\n", overview.TotalTimeSpent)
			fmt.Fprintf(out, "Average success:    %s %.0f%%\n",
				renderProgressBar(overview.AverageSuccessRate, 20), overview.AverageSuccessRate*100)

			if len(overview.MostPracticedTopics) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Most practiced:")
				for _, t := range overview.MostPracticedTopics {
					fmt.Fprintf(out, "  %-20s %3d attempts  %s %3.0f%%  L%d  %s\n",
						t.Topic, t.Attempts, renderProgressBar(t.SuccessRate, 10), t.SuccessRate*100, t.Difficulty, t.Trend)
				}
			}

			if len(overview.DueForReview) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Due for review: %s\n", strings.Join(overview.DueForReview, ", "))
			}
			return nil
		},
	}
}
