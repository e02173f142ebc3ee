// Package cmd implements the dlscd CLI commands using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile   string
	storeBackend string
	sqlitePath   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dlscd",
	Short: "Distributed log-split coordinator",
	Long: `dlscd recovers a failed storage node's write-ahead logs by farming
per-file split work out to a worker fleet through a coordination store,
tracking each file as a task in a watchable, version-guarded namespace.`,
	Version: "0.1.0",
}

// Execute adds all child commands to rootCmd and runs it. Called once
// from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (optional; env vars with DLSC_ prefix always apply)")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "",
		"coordination-store backend override: memory|sqlite")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "",
		"sqlite backend database path override")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(inspectCmd)
}

func exitWithError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
