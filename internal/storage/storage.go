// Package storage selects and opens the configured persistence backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"raspored/internal/app"
	"raspored/internal/config"
	"raspored/internal/model"
	"raspored/internal/storage/postgres"
	"raspored/internal/storage/sqlite"
)

// Store is the persistence API used by the services.
type Store interface {
	app.EventRepository
	app.ReportRepository
	Seed(ctx context.Context, fx model.Fixture) error
	Ping(ctx context.Context) error
	Close() error
}

// Open initializes the configured store and migrates its schema.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return sqlite.Open(ctx, cfg.DSN, cfg.BusyTimeout)
	case "postgres", "postgresql":
		if cfg.DSN == "" {
			return nil, errors.New("postgres dsn is required")
		}
		return postgres.Open(ctx, cfg.DSN)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// LoadFixture reads seed data from a YAML file.
func LoadFixture(path string) (model.Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Fixture{}, err
	}
	var fx model.Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return model.Fixture{}, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return fx, nil
}
