package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

const (
	checkMark = "✓"
	crossMark = "✗"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hookstudio",
	Short: "Short-form video hook and script generator",
	Long: `Hook Script Studio generates hooks, scripts, B-roll ideas and CTAs for
short-form video. Anonymous callers get a small number of free runs tracked
in a signed cookie; usage analytics land in a counter store.

Quick start:
  hookstudio serve      # Start the HTTP server
  hookstudio validate   # Validate configuration

Operations:
  hookstudio counters   # Inspect or bump analytics counters
  hookstudio token      # Encode or decode usage tokens`,
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
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "hookstudio.yaml", "config file path (environment only when missing)")
}
