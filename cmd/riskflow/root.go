package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "riskflow",
	Short: "Graph-based transaction risk analysis engine",
	Long: "Riskflow compiles a declarative analysis graph and executes transaction\n" +
		"payloads through it: parallel risk analyzers, a weighted decision\n" +
		"aggregator, and a finalized response envelope.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML runtime config")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
