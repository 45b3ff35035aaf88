// Command shadebot runs the shade-netting sales assistant.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shadebot/internal/config"
	"shadebot/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool
	userID     string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "shadebot",
	Short: "shadebot - malla sombra sales assistant",
	Long: `shadebot answers retail customers of a shade-netting store.

Messages go through an ordered handler chain: state gate, conversational
intents, campaign flows, dimension quotes, intent routing and catalog
fallbacks. Conversations escalate to a human when the bot cannot help.

Run "shadebot serve" for the HTTP and AMQP channels, or "shadebot chat" to
talk to the bot from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		lc := logging.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			Categories: cfg.Logging.Categories,
		}
		if verbose {
			lc.Level = "debug"
		}
		if cmd.Name() == "chat" && lc.File == "" {
			// the TUI owns the terminal
			logging.Use(zap.NewNop(), nil)
			return nil
		}
		if err := logging.Initialize(lc); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "shadebot.yaml", "Path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, c := range []*cobra.Command{resetCmd, releaseCmd, takeoverCmd, recordCmd} {
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(serveCmd, chatCmd, classifyCmd, usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
