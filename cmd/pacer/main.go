package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pacer/internal/client"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFile = "pacerd.pid"

var (
	serverURL    string
	outputFormat string
	timeout      time.Duration
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pacer",
		Short: "Pacer - adaptive practice scheduling",
		Long: `pacer records practice attempts, recommends how to study each topic,
and orders roadmaps so weak topics do not block the ones after them.

Most commands talk to the pacerd daemon (start it with 'pacer start').`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getDefaultServer(), "pacerd URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Request timeout")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newStopCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newLogsCommand())
	rootCmd.AddCommand(newRecordCommand())
	rootCmd.AddCommand(newRecommendCommand())
	rootCmd.AddCommand(newTopicsCommand())
	rootCmd.AddCommand(newOverviewCommand())
	rootCmd.AddCommand(newSequenceCommand())
	rootCmd.AddCommand(newRoadmapCommand())
	rootCmd.AddCommand(newMCPCommand())

	return rootCmd
}

func getDefaultServer() string {
	if server := os.Getenv("PACER_SERVER"); server != "" {
		return server
	}
	return client.DefaultBaseURL
}

func newClient() *client.Client {
	return client.New(serverURL)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// requireDaemon fails fast with a hint when pacerd is not reachable
func requireDaemon(ctx context.Context, c *client.Client) error {
	if !c.Healthy(ctx) {
		return fmt.Errorf("daemon not running at %s (run 'pacer start' first)", c.BaseURL())
	}
	return nil
}

// printJSON writes v as indented JSON. It reports whether JSON output was
// requested, so callers can skip their table rendering.
func printJSON(cmd *cobra.Command, v any) (bool, error) {
	if outputFormat != "json" {
		return false, nil
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
