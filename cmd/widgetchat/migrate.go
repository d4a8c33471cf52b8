package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-widget-chat/internal/repo"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := repo.Open(cfg.DB)
			if err != nil {
				return err
			}
			defer closeDB(db)
			if err := repo.AutoMigrate(db); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.DB.Driver).Msg("schema up to date")
			return nil
		},
	}
}
