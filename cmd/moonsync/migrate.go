package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/varoOP/moonsync/internal/database"
	"github.com/varoOP/moonsync/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database schema migrations",
	Long: `Migrate opens moonsync.db and applies any pending schema migrations,
then exits. The run command does this automatically on startup; migrate is
for applying schema changes ahead of a deploy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLoggerWithLevel(viper.GetString("log_level"))

		db, err := database.NewDB(viper.GetString("database_dir"), log)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		defer db.Close()

		log.Info().Msg("Migration completed successfully!")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
