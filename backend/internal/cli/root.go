// Package cli implements the sharednote command line: the server and a few
// tools for inspecting operation logs.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sharednote/backend/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sharednote",
	Short: "Collaborative plain-text editing server",
	Long: `sharednote serves shared plain-text documents. Edits are kept in an
append-only operation log, one user at a time holds a document's edit lock,
and every accepted edit is pushed to the document's subscribers.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to sharednoteConfig.yaml (default: search ./backend/config, ./config, .)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(tokenCmd)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}
	return cfg
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
