package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags
var version = "dev"

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "claude-refine",
		Short: "Claude Refine - Iterative code generation and improvement",
		Long: `Claude Refine generates code with an LLM CLI and then refines it
through review/fix rounds: specialized reviewer agents surface issues,
a fixer agent addresses the urgent ones, and every round is recorded
in a local SQLite ledger.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
