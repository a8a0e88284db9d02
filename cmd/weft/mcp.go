package main

import (
	"context"
	"fmt"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts a program as an MCP Server.
Agents can invoke its operations and inspect or kill its sessions as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("program")
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		program, err := programs().Program(name)
		if err != nil {
			return err
		}
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		rt, err := cli.NewRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		itp, err := rt.NewInterpreter(program)
		if err != nil {
			return err
		}
		if err := itp.Start(ctx); err != nil {
			return err
		}
		defer itp.Shutdown(context.WithoutCancel(ctx))

		srv := mcp.NewServer(itp, program, mcp.WithTimeout(cfg.HTTP.Timeout), mcp.WithLogger(logger))
		switch transport {
		case "stdio":
			logger.Info("Starting MCP Server (Stdio)", "program", program.Name)
			return srv.ServeStdio()
		case "sse":
			addr := fmt.Sprintf(":%d", port)
			logger.Info("Starting MCP Server (SSE)", "program", program.Name, "port", port)
			return srv.ServeSSE(ctx, addr, fmt.Sprintf("http://localhost:%d", port))
		}
		return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringP("program", "p", "calculator", "Registered program to serve")
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
}
