package cmd

import (
	"context"
	"time"

	"trackvault/config"
	"trackvault/db"
	"trackvault/logger"
	"trackvault/repository"
	"trackvault/storage"
	"trackvault/sweep"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one orphan-file reconciliation pass",
	Long:  `Scan stored audio files and remove any that no track row references and that are older than the configured grace period.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()

		sqlDB, err := db.Connect(cfg)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		var store storage.Store
		if cfg.StorageBackend == config.StorageMinio {
			store, err = storage.NewMinioStore(cfg)
		} else {
			store, err = storage.NewLocalStore(cfg.UploadDir)
		}
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		sweeper := sweep.NewSweeper(store, repository.NewMySQLTrackRepository(sqlDB), cfg.SweepGrace)
		removed, err := sweeper.Run(ctx)
		if err != nil {
			return err
		}

		logger.Info("orphan sweep completed", logger.Int("removed", removed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
