package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft runs process-calculus services with correlated sessions",
	Long: `Weft interprets programs built from communication processes: inputs,
outputs, choices and parallel branches. Every inbound message is routed to
the session waiting for it, and session state is kept in memory, Redis or
a bbolt file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML or JSON configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// setup loads the configuration and the logger every command shares.
func setup(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := cli.NewLogger(cfg, debug)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}
