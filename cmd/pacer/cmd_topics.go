package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pacer/internal/client"
	"github.com/felixgeelhaar/pacer/internal/domain"
)

func newRecordCommand() *cobra.Command {
	var (
		minutes       float64
		failed        bool
		relatedTopics []string
		prerequisites []string
	)

	cmd := &cobra.Command{
		Use:   "record <topic>",
		Short: "Record a practice attempt",
		Long: `Record a practice attempt for a topic.

Examples:
  pacer record algebra --minutes 25
  pacer record calculus --minutes 40 --failed --prereq algebra`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			res, err := c.RecordAttempt(ctx, args[0], client.Attempt{
				TimeSpent:     minutes * 60,
				Success:       !failed,
				RelatedTopics: relatedTopics,
				Prerequisites: prerequisites,
			})
			if err != nil {
				return fmt.Errorf("record attempt: %w", err)
			}
			if ok, err := printJSON(cmd, res); ok {
				return err
			}

			out := cmd.OutOrStdout()
			m := res.Metrics
			fmt.Fprintf(out, "✓ Recorded attempt %d for %s\n", m.Attempts, res.Topic)
			fmt.Fprintf(out, "  Success rate: %s %.0f%%\n", renderProgressBar(m.SuccessRate, 20), m.SuccessRate*100)
			fmt.Fprintf(out, "  Difficulty:   %.1f\n", m.Difficulty)
			fmt.Fprintln(out)
			printStrategy(out, res.Topic, res.Strategy, res.Insights)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&minutes, "minutes", "m", 0, "Time spent in minutes")
	cmd.Flags().BoolVar(&failed, "failed", false, "Mark the attempt as unsuccessful")
	cmd.Flags().StringSliceVar(&relatedTopics, "related", nil, "Related topics")
	cmd.Flags().StringSliceVar(&prerequisites, "prereq", nil, "Prerequisite topics")
	_ = cmd.MarkFlagRequired("minutes")

	return cmd
}

func newRecommendCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "recommend <topic>",
		Aliases: []string{"rec"},
		Short:   "Show the study strategy for a topic",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			recs, err := c.Recommendations(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get recommendations: %w", err)
			}
			if ok, err := printJSON(cmd, recs); ok {
				return err
			}

			printStrategy(cmd.OutOrStdout(), args[0], recs.Strategy, recs.Insights)
			return nil
		},
	}
}

func newTopicsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List tracked topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			topics, err := c.Topics(ctx)
			if err != nil {
				return fmt.Errorf("list topics: %w", err)
			}
			if ok, err := printJSON(cmd, topics); ok {
				return err
			}

			out := cmd.OutOrStdout()
			if len(topics) == 0 {
				fmt.Fprintln(out, "No topics tracked yet. Record an attempt with 'pacer record <topic> --minutes N'.")
				return nil
			}
			for _, t := range topics {
				fmt.Fprintln(out, t)
			}
			return nil
		},
	}

	cmd.AddCommand(newTopicShowCommand())
	cmd.AddCommand(newPrereqsCommand())
	return cmd
}

func newTopicShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <topic>",
		Short: "Show a topic's learning metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			detail, err := c.Topic(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get topic: %w", err)
			}
			if ok, err := printJSON(cmd, detail); ok {
				return err
			}

			out := cmd.OutOrStdout()
			p := detail.Pattern
			m := p.Metrics
			fmt.Fprintf(out, "Topic: %s\n", p.TopicID)
			fmt.Fprintln(out, strings.Repeat("─", 40))
			fmt.Fprintf(out, "Attempts:      %d\n", m.Attempts)
			fmt.Fprintf(out, "Time spent:    %s\n", seconds(m.TimeSpent))
			fmt.Fprintf(out, "Avg session:   %s\n", seconds(m.AverageSessionTime))
			fmt.Fprintf(out, "Success rate:  %s %.0f%%\n", renderProgressBar(m.SuccessRate, 20), m.SuccessRate*100)
			fmt.Fprintf(out, "Consistency:   %s %.0f%%\n", renderProgressBar(m.ConsistencyScore, 20), m.ConsistencyScore*100)
			fmt.Fprintf(out, "Retention:     %s %.0f%%\n", renderProgressBar(m.RetentionScore, 20), m.RetentionScore*100)
			fmt.Fprintf(out, "Difficulty:    %.1f\n", m.Difficulty)
			fmt.Fprintf(out, "Streak:        %d days\n", m.StreakDays)
			if !m.LastAttempt.IsZero() {
				fmt.Fprintf(out, "Last attempt:  %s\n", m.LastAttempt.Local().Format("2006-01-02 15:04"))
			}
			if len(p.Prerequisites) > 0 {
				fmt.Fprintf(out, "Prerequisites: %s\n", strings.Join(p.Prerequisites, ", "))
			}
			if len(p.RelatedTopics) > 0 {
				fmt.Fprintf(out, "Related:       %s\n", strings.Join(p.RelatedTopics, ", "))
			}
			return nil
		},
	}
}

func newPrereqsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prereqs <topic>",
		Short: "List prerequisites a topic still lacks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			missing, err := c.MissingPrerequisites(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get prerequisites: %w", err)
			}
			if ok, err := printJSON(cmd, missing); ok {
				return err
			}

			out := cmd.OutOrStdout()
			if len(missing) == 0 {
				fmt.Fprintf(out, "✓ All prerequisites of %s are in place\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "%s still needs:\n", args[0])
			for _, p := range missing {
				fmt.Fprintf(out, "  • %s\n", p)
			}
			return nil
		},
	}
}

func printStrategy(out io.Writer, topic string, st *domain.AdaptiveStrategy, insights []domain.LearningInsight) {
	if st == nil {
		fmt.Fprintf(out, "No strategy for %s yet. Keep recording attempts.\n", topic)
	} else {
		fmt.Fprintf(out, "Strategy for %s\n", topic)
		fmt.Fprintf(out, "  Session:     %s (range %s to %s)\n", seconds(st.RecommendedTimePerSession),
			seconds(st.AlternativeStrategies.TimePerSession[0]), seconds(st.AlternativeStrategies.TimePerSession[1]))
		fmt.Fprintf(out, "  Attempts:    %d\n", st.RecommendedAttempts)
		fmt.Fprintf(out, "  Difficulty:  %d (range %d to %d)\n", st.SuggestedDifficulty,
			st.AlternativeStrategies.Difficulty[0], st.AlternativeStrategies.Difficulty[1])
		fmt.Fprintf(out, "  Next review: %s\n", st.NextReviewDate.Local().Format("2006-01-02"))
		fmt.Fprintf(out, "  Confidence:  %s %.0f%%\n", renderProgressBar(st.ConfidenceScore, 20), st.ConfidenceScore*100)
		if !st.PrerequisitesCompleted {
			fmt.Fprintln(out, "  ⚠ Some prerequisites are not complete")
		}
	}

	if len(insights) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Insights:")
	for _, in := range insights {
		fmt.Fprintf(out, "  %s %s\n", insightIcon(in.Type), in.Message)
		if in.Recommendation != "" {
			fmt.Fprintf(out, "    → %s\n", in.Recommendation)
		}
	}
}

func insightIcon(t domain.InsightType) string {
	switch t {
	case domain.InsightSuccess:
		return "✓"
	case domain.InsightWarning:
		return "⚠"
	default:
		return "•"
	}
}

// seconds renders a duration given in seconds
func seconds(s float64) string {
	return (time.Duration(s) * time.Second).Round(time.Second).String()
}
