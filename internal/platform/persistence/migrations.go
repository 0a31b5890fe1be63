package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // File source driver
)

const fileScheme = "file://"

// RunMigrations applies every pending migration and returns the resulting
// schema version. migrationsPath may be a plain directory or a file:// URL.
func RunMigrations(databaseURL string, migrationsPath string) (uint, error) {
	if migrationsPath == "" {
		return 0, errors.New("migrations path cannot be empty")
	}
	if databaseURL == "" {
		return 0, errors.New("database URL cannot be empty")
	}

	m, err := migrate.New(migrationSourceURL(migrationsPath), databaseURL)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_, _ = m.Close()
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		_, _ = m.Close()
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		_, _ = m.Close()
		return version, fmt.Errorf("schema version %d is dirty", version)
	}

	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		return version, fmt.Errorf("migration source error: %w", sourceErr)
	}
	if dbErr != nil {
		return version, fmt.Errorf("migration database error: %w", dbErr)
	}

	return version, nil
}

func migrationSourceURL(path string) string {
	if strings.HasPrefix(path, fileScheme) {
		return path
	}
	return fileScheme + path
}
