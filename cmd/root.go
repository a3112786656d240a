// Package cmd implements the jobwright command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akashpal/jobwright/internal/config"
	"github.com/akashpal/jobwright/internal/logging"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "jobwright",
	Short: "AI-assisted job application agent",
	Long: `jobwright applies to job postings on your behalf.

Point it at a posting URL and it drives a real browser through the portal's
application flow: signing in when a login wall appears, matching the form's
fields to your profile, uploading your resume, and submitting. Everything it
learns about a portal is remembered, so the next application on the same
site is faster and needs fewer AI calls.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. It exits 1 on any command error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: search upward for .jobwright/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initLogging() {
	if err := logging.Initialize("."); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging unavailable: %v\n", err)
	}
	if verbose {
		logging.GetLogger().SetLevel(logging.DEBUG)
	}
	logging.RedirectStandardLog()
}

// loadConfig loads and validates configuration for the running command.
// explicitPath (a positional config argument) takes precedence over --config.
func loadConfig(explicitPath string) (*config.Config, error) {
	path := explicitPath
	if path == "" {
		path = configPath
	}
	return config.NewLoader("").Load(path)
}
