package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/ridesbot/internal/config"
	"github.com/friendsincode/ridesbot/internal/logging"
)

var (
	logger zerolog.Logger
	cfg    *config.Config

	debug bool
)

var rootCmd = &cobra.Command{
	Use:          "ridesbot",
	Short:        "ridesbot - daily management roster for the rides team",
	Long:         "ridesbot scrapes the WhenToWork schedule, works out who is managing each shift and posts the roster to GroupMe, Discord and Telegram.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Verbose logging; post also prints the messages it sends")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Verbose(logging.Setup(cfg.Environment), debug)
	return nil
}
