package cmd

import (
	"fmt"
	"os"

	"trackvault/config"
	"trackvault/logger"
	"trackvault/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trackvault",
	Short: "TrackVault is an authenticated audio upload and track management service.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := setup()
		server.Start(cfg)
	},
}

// setup loads configuration and initializes logging.
func setup() *config.Config {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	return cfg
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
