package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pacer/internal/domain"
)

func newSequenceCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "sequence [topic...]",
		Short: "Order topics into a study sequence without saving it",
		Long: `Order topics into a study sequence using recorded performance.

Topics come from arguments or from a YAML/JSON file listing
{id, title, subtopics} entries.

Examples:
  pacer sequence arithmetic algebra calculus
  pacer sequence --file curriculum.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			topics, err := roadmapTopics(args, file)
			if err != nil {
				return err
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			result, err := c.Sequence(ctx, topics)
			if err != nil {
				return fmt.Errorf("sequence roadmap: %w", err)
			}
			if ok, err := printJSON(cmd, result); ok {
				return err
			}

			out := cmd.OutOrStdout()
			printTopicOrder(out, result.Topics)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Fitness %.3f after %d generations", result.Fitness, result.Generations)
			if result.StoppedEarly {
				fmt.Fprint(out, " (converged)")
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file of topics")
	return cmd
}

func newRoadmapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roadmap",
		Short: "Manage saved roadmaps",
	}

	cmd.AddCommand(newRoadmapCreateCommand())
	cmd.AddCommand(newRoadmapListCommand())
	cmd.AddCommand(newRoadmapShowCommand())
	cmd.AddCommand(newRoadmapResequenceCommand())
	return cmd
}

func newRoadmapCreateCommand() *cobra.Command {
	var (
		title string
		file  string
	)

	cmd := &cobra.Command{
		Use:   "create [topic...]",
		Short: "Sequence topics and save the roadmap",
		RunE: func(cmd *cobra.Command, args []string) error {
			topics, err := roadmapTopics(args, file)
			if err != nil {
				return err
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			rm, err := c.CreateRoadmap(ctx, title, topics)
			if err != nil {
				return fmt.Errorf("create roadmap: %w", err)
			}
			if ok, err := printJSON(cmd, rm); ok {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created roadmap %s\n\n", rm.ID)
			printRoadmap(cmd.OutOrStdout(), rm)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Roadmap title (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file of topics")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newRoadmapListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved roadmaps",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			roadmaps, err := c.Roadmaps(ctx)
			if err != nil {
				return fmt.Errorf("list roadmaps: %w", err)
			}
			if ok, err := printJSON(cmd, roadmaps); ok {
				return err
			}

			out := cmd.OutOrStdout()
			if len(roadmaps) == 0 {
				fmt.Fprintln(out, "No roadmaps saved yet.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-24s  %6s  %s\n", "ID", "TITLE", "TOPICS", "UPDATED")
			for _, rm := range roadmaps {
				fmt.Fprintf(out, "%-36s  %-24s  %6d  %s\n",
					rm.ID, truncate(rm.Title, 24), len(rm.Topics), rm.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newRoadmapShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved roadmap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid roadmap id: %w", err)
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			rm, err := c.Roadmap(ctx, id)
			if err != nil {
				return fmt.Errorf("get roadmap: %w", err)
			}
			if ok, err := printJSON(cmd, rm); ok {
				return err
			}

			printRoadmap(cmd.OutOrStdout(), rm)
			return nil
		},
	}
}

func newRoadmapResequenceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resequence <id>",
		Short: "Reorder a saved roadmap against current performance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid roadmap id: %w", err)
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()

			c := newClient()
			if err := requireDaemon(ctx, c); err != nil {
				return err
			}

			rm, err := c.Resequence(ctx, id)
			if err != nil {
				return fmt.Errorf("resequence roadmap: %w", err)
			}
			if ok, err := printJSON(cmd, rm); ok {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Roadmap resequenced")
			fmt.Fprintln(cmd.OutOrStdout())
			printRoadmap(cmd.OutOrStdout(), rm)
			return nil
		},
	}
}

// roadmapTopics builds topics from a file when given, else from bare ids
func roadmapTopics(args []string, file string) ([]domain.RoadmapTopic, error) {
	if file != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("pass topics as arguments or with --file, not both")
		}
		return loadTopicsFile(file)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no topics given")
	}

	topics := make([]domain.RoadmapTopic, len(args))
	for i, id := range args {
		topics[i] = domain.RoadmapTopic{ID: id, Title: id}
	}
	return topics, nil
}

// loadTopicsFile reads a topic list. JSON parses as YAML.
func loadTopicsFile(path string) ([]domain.RoadmapTopic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}

	var topics []domain.RoadmapTopic
	if err := yaml.Unmarshal(data, &topics); err != nil {
		// Also accept {topics: [...]}
		var wrapped struct {
			Topics []domain.RoadmapTopic `yaml:"topics"`
		}
		if werr := yaml.Unmarshal(data, &wrapped); werr != nil {
			return nil, fmt.Errorf("parse topics file: %w", err)
		}
		topics = wrapped.Topics
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("topics file %s lists no topics", path)
	}
	for i := range topics {
		if topics[i].Title == "" {
			topics[i].Title = topics[i].ID
		}
	}
	return topics, nil
}

func printRoadmap(out io.Writer, rm *domain.Roadmap) {
	fmt.Fprintf(out, "%s\n", rm.Title)
	fmt.Fprintln(out, strings.Repeat("─", 50))
	printTopicOrder(out, rm.Topics)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Fitness %.3f after %d generations, updated %s\n",
		rm.Fitness, rm.Generations, rm.UpdatedAt.Local().Format("2006-01-02 15:04"))
}

func printTopicOrder(out io.Writer, topics []domain.RoadmapTopic) {
	for i, t := range topics {
		mark := " "
		if t.Completed() {
			mark = "✓"
		}
		line := fmt.Sprintf("%2d. %s %s", i+1, mark, t.Title)
		if t.Title != t.ID {
			line += fmt.Sprintf(" (%s)", t.ID)
		}
		if len(t.Subtopics) > 0 {
			line += fmt.Sprintf("  %s", renderProgressBar(t.Progress(), 10))
		}
		fmt.Fprintln(out, line)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
