package main

import (
	"fmt"
	"os"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe [program]",
	Short: "Describe the interface and process tree of a program",
	Long: `Prints the operations a program exposes and a Mermaid graph of its process
tree. Output is rendered for the terminal unless --raw is set or stdout is
not a terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		program, err := programs().Program(args[0])
		if err != nil {
			return fmt.Errorf("%w (available: %v)", err, programs().Names())
		}
		raw, _ := cmd.Flags().GetBool("raw")

		var render func(string) (string, error)
		if !raw && cmd.OutOrStdout() == os.Stdout && tui.IsTerminal(os.Stdout) {
			if render, err = tui.NewRenderer(); err != nil {
				return err
			}
		}
		return cli.Describe(cmd.OutOrStdout(), program, render)
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph [program]",
	Short: "Print the Mermaid graph of a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		program, err := programs().Program(args[0])
		if err != nil {
			return fmt.Errorf("%w (available: %v)", err, programs().Names())
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(program, nil))
		return err
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(graphCmd)
	describeCmd.Flags().Bool("raw", false, "Print plain markdown")
}
