package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/preceptor"
	"github.com/aretw0/preceptor/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the tutor as an MCP Server, so agents can drive a session
through the advance_session tool and fetch the case report and persona
through generate_artifacts and get_artifacts.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		// Logs must never reach stdout: it carries the JSON-RPC stream.
		logger, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		log.SetOutput(os.Stderr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := mcp.NewServer(a.engine,
			mcp.WithFinalizer(a.finalizer),
			mcp.WithLogger(logger),
			mcp.WithVersion(preceptor.Version),
		)

		switch transport {
		case "stdio":
			logger.Info("starting MCP server", "transport", transport)
			return srv.ServeStdio()
		case "sse":
			logger.Info("starting MCP server", "transport", transport, "port", port)
			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("MCP server stopped")
			return nil
		}
		return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
