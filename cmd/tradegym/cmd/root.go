package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradegym",
	Short: "A reinforcement-learning environment for trading one instrument",
	Long: `Tradegym replays historical bars as a trading environment for
reinforcement-learning agents.

It provides tools for:
  - Running episodes with random, rule-based or ONNX agents
  - Rotating between several datasets
  - Recording trades and episode results to SQLite or CSV
  - Saving episodes for the visual renderer
  - Preprocessing raw OHLCV files into feature columns

Complete documentation is available at https://github.com/rustyeddy/tradegym`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
