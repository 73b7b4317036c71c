package cmd

import (
	"trackvault/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the TrackVault HTTP server",
	Long:  `Run the TrackVault HTTP server, serving the track management API and stored audio files.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := setup()
		server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
