package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/codevelop/roomchat-go/internal/config"
	"github.com/codevelop/roomchat-go/internal/logging"
)

var (
	verbose    bool
	configPath string
	version    = "dev"
	commit     = "unknown"

	appCfg *config.Config
	logger = zerolog.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomchat",
	Short: "Chat in a room from the terminal",
	Long: `roomchat joins a chat room over STOMP/WebSocket, shows live messages
merged with the room history and sends what you type.

Quick Start:
  roomchat join 12               # Join room 12 interactively
  roomchat history 12 --page 1   # Print one page of older messages

Settings come from --config (YAML) and ROOMCHAT_* environment variables.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			loaded.Log.Level = "debug"
		}
		appCfg = loaded
		logger = logging.New(appCfg.Log, cmd.ErrOrStderr())
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
