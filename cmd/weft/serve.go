package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/demo"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/spf13/cobra"
)

// programs lists what serve can run.
func programs() *registry.Registry {
	r := registry.NewRegistry()
	demo.Register(r)
	return r
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a program over HTTP and websockets",
	Long: `Starts an interpreter for the chosen program and exposes its operations as
a JSON API, a websocket endpoint and, when configured, Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("program")
		addr, _ := cmd.Flags().GetString("addr")

		program, err := programs().Program(name)
		if err != nil {
			return fmt.Errorf("%w (available: %v)", err, programs().Names())
		}
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.HTTP.Addr = addr
		}

		if tui.IsTerminal(os.Stderr) {
			tui.PrintBanner(os.Stderr, weft.Version)
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		rt, err := cli.NewRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := cli.Serve(ctx, rt, program); err != nil {
			return err
		}
		if sig := ctx.Signal(); sig != nil {
			logger.Info("Stopped by signal", "signal", sig.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("program", "p", "calculator", "Registered program to serve")
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides http.addr)")
}
