package main

import (
	"fmt"

	"github.com/romanzh1/mood-diary/internal/config"
	"github.com/romanzh1/mood-diary/internal/models"
	"github.com/romanzh1/mood-diary/internal/repository"
	"github.com/romanzh1/mood-diary/internal/storage"
	"go.uber.org/zap"
)

// openRepository returns the configured storage backend, migrated and ready.
func openRepository(cfg *config.Config) (models.Repository, func(), error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		zap.S().Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemory(), func() {}, nil
	}

	repo, err := repository.NewDB(cfg.PostgresDSN(), 10, 20)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to PostgreSQL (host: %s): %w", cfg.PostgresHost, err)
	}

	if err := repo.Up(); err != nil {
		_ = repo.Close()
		return nil, nil, err
	}

	return repo, func() { _ = repo.Close() }, nil
}
