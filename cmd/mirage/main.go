// Package main is the entry point for the Mirage avatar runtime.
// Mirage drives a 3D avatar from a generation service: streamed or batched
// responses become synchronized speech, lip-sync and body motion.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Hausmaster333/MirageGen/internal/config"
	"github.com/Hausmaster333/MirageGen/internal/logging"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool

	cfg    *config.Config
	logs   *logging.Logger
	logger zerolog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mirage",
		Short: "Mirage - real-time avatar motion and speech playback",
		Long: `Mirage plays generated responses on a 3D avatar: speech audio in order,
lip-sync morph weights, and body motion blended over idle and thinking loops.

Interactive session:  mirage run
One-shot streamed:    mirage ask "Tell me a joke"
One-shot batched:     mirage chat "Tell me a joke"
Preset library:       mirage presets list`,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.mirage/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Mirage v%s\n", version)
		},
	})

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(presetsCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and starts logging for every command.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = logging.LevelDebug
	}
	logs, err = logging.New(&logCfg)
	if err != nil {
		return err
	}
	logger = logs.Zerolog()
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if logs != nil {
		return logs.Close()
	}
	return nil
}
