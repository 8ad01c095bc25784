// Package commands implements the CLI command structure using Cobra.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/roraos/roraos-go/cli/config"
)

var (
	// Global flags
	cfgFile    string
	model      string
	jsonOutput bool
	verbose    bool

	// Loaded configuration
	cfg *config.Config
)

// defaultModel is used when neither the flag nor the config names one.
const defaultModel = "gpt-4o"

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "roraos",
	Short: "RoraOS - chat API command-line client",
	Long: `RoraOS is a command-line client for the RoraOS chat API.

Use it to chat with models one-shot or interactively, manage API keys,
and run a local HTTP proxy.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.roraos/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model ID (e.g. gpt-4o)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

// initConfig reads in config file and sets defaults.
func initConfig() error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	var err error
	cfg, err = config.LoadConfig(path)
	if err != nil {
		return err
	}

	// Apply config defaults if flags not set
	if model == "" && cfg.DefaultModel != "" {
		model = cfg.DefaultModel
	}
	if model == "" {
		model = defaultModel
	}

	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}

// GetModel returns the effective model ID (flag or config default).
func GetModel() string {
	return model
}

// IsJSONOutput returns true if JSON output is enabled.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsVerbose returns true if verbose output is enabled.
func IsVerbose() bool {
	return verbose
}
