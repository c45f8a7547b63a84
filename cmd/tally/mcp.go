package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/aretw0/tally/pkg/adapters/http"
	"github.com/aretw0/tally/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts tally as an MCP Server.
Every action becomes an MCP tool, and the "chat" tool runs a full assistant turn.

Supported Transports:
- stdio (default): Uses Standard Input/Output, acting as user.user_id.
- sse: Uses Server-Sent Events over HTTP, identifying callers like "serve" does.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "", "Public base URL announced to SSE clients (defaults to http://localhost<addr>)")
}

func runMCP(cmd *cobra.Command, _ []string) error {
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := c.Config()
	logger := c.Logger()
	transport, _ := cmd.Flags().GetString("transport")

	opts := []mcp.Option{mcp.WithLogger(logger)}
	switch transport {
	case "stdio":
		opts = append(opts, mcp.WithIdentity(cfg.User))
	case "sse":
		opts = append(opts, mcp.WithAuthenticator(httpadapter.NewAuthenticator(cfg.HTTP.Tokens, cfg.HTTP.IdentityHeader)))
	default:
		return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
	}

	srv, err := mcp.NewServer(c.Assistant(), opts...)
	if err != nil {
		return err
	}

	if transport == "stdio" {
		// Ensure logs don't corrupt JSON-RPC on Stdout
		log.SetOutput(os.Stderr)
		logger.Info("Starting tally MCP Server (Stdio)", "user_id", cfg.User.UserID)
		return srv.ServeStdio()
	}

	addr, _ := cmd.Flags().GetString("addr")
	baseURL, _ := cmd.Flags().GetString("base-url")
	if baseURL == "" {
		baseURL = "http://localhost" + addr
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ServeSSE(ctx, addr, baseURL); err != nil {
		return err
	}
	logger.Info("MCP Server stopped gracefully")
	return nil
}
