package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/pacer/internal/config"
)

func newInitCommand() *cobra.Command {
	var (
		driver  string
		secrets config.SecretsConfig
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up ~/.pacer for first-time use",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Pacer - First-Time Setup")
			fmt.Fprintln(out, "========================")
			fmt.Fprintln(out)

			fmt.Fprint(out, "Creating ~/.pacer directory structure... ")
			pacerDir, err := config.EnsurePacerDir()
			if err != nil {
				return fmt.Errorf("create directories: %w", err)
			}
			fmt.Fprintln(out, "✓")

			configPath := filepath.Join(pacerDir, "config.yaml")
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				fmt.Fprint(out, "Creating default configuration... ")
				cfg := config.DefaultLocalConfig()
				if driver != "" {
					cfg.Storage.Driver = driver
				}
				cfg.Storage.PostgresURL = secrets.PostgresURL
				cfg.Queue.URL = secrets.AMQPURL
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := config.SaveLocalConfig(cfg); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
				fmt.Fprintln(out, "✓")
			} else {
				fmt.Fprintln(out, "Configuration already exists ✓")
			}

			if secrets != (config.SecretsConfig{}) {
				fmt.Fprint(out, "Saving connection secrets... ")
				if err := config.SaveSecrets(secrets); err != nil {
					return fmt.Errorf("save secrets: %w", err)
				}
				fmt.Fprintln(out, "✓")
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. pacer start                          # Start the daemon")
			fmt.Fprintln(out, "  2. pacer record <topic> --minutes 20    # Record practice")
			fmt.Fprintln(out, "  3. pacer recommend <topic>              # Get a strategy")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "For editor integration, configure an MCP client to run 'pacer mcp'.")
			return nil
		},
	}

	cmd.Flags().StringVar(&driver, "storage", "", "Storage driver: local, sqlite, postgres")
	cmd.Flags().StringVar(&secrets.PostgresURL, "postgres-url", "", "PostgreSQL connection string")
	cmd.Flags().StringVar(&secrets.AMQPURL, "amqp-url", "", "RabbitMQ connection string")
	cmd.Flags().StringVar(&secrets.RedisPassword, "redis-password", "", "Redis password")
	return cmd
}

func newConfigCommand() *cobra.Command {
	var effective bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		Long: `Show the local configuration from ~/.pacer/config.yaml with
environment overrides applied. With --effective, ask the running
daemon for the configuration it was started with.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var v any
			if effective {
				ctx, cancel := requestContext(cmd)
				defer cancel()

				c := newClient()
				if err := requireDaemon(ctx, c); err != nil {
					return err
				}
				cfg, err := c.Config(ctx)
				if err != nil {
					return fmt.Errorf("get config: %w", err)
				}
				v = cfg
			} else {
				cfg, err := config.LoadLocalConfig()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				v = cfg
			}

			if ok, err := printJSON(cmd, v); ok {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(v); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&effective, "effective", false, "Show the running daemon's configuration")
	return cmd
}
