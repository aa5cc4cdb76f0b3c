package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/felixgeelhaar/pacer/internal/mcp"
)

func newMCPCommand() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve pacer tools over the Model Context Protocol",
		Long: `Serve pacer tools to MCP clients. Tools call the pacer daemon,
so start it first with 'pacer start'.

Uses stdio unless --http is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			if err := requireDaemon(cmd.Context(), c); err != nil {
				return err
			}

			srv := mcpserver.NewServer(mcpserver.Config{
				Backend: c,
				Version: Version,
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			if httpAddr != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on %s\n", httpAddr)
				return srv.ServeHTTP(ctx, httpAddr)
			}
			return srv.ServeStdio(ctx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve over HTTP on this address instead of stdio")
	return cmd
}
