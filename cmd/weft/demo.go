package main

import (
	"context"

	"github.com/aretw0/weft/internal/cli"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo [name]...",
	Short: "Play the sample conversations",
	Long: `Runs the calculator, counter and booking programs in process and prints
each exchange. Sessions are written to the configured store, so they can be
listed afterwards with "weft session ls".`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		return cli.RunDemo(ctx, rt, args, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
