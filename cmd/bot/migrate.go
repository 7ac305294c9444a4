package main

import (
	"errors"

	"github.com/romanzh1/mood-diary/internal/config"
	"github.com/romanzh1/mood-diary/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.StorageDriver != config.StorageDriverPostgres {
		return errors.New("migrations need STORAGE_DRIVER=postgres")
	}

	repo, err := repository.NewDB(cfg.PostgresDSN(), 1, 1)
	if err != nil {
		return err
	}
	defer repo.Close()

	if resetFlag {
		if err := repo.Reset(); err != nil {
			return err
		}
	}

	if err := repo.Up(); err != nil {
		return err
	}

	version, err := repo.Version()
	if err != nil {
		return err
	}

	zap.S().Info("migrations applied", zap.Int64("version", version))
	return nil
}
