package postgres

import (
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres driver for golang_migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"       // support file scheme for golang_migrate

	"github.com/tokenvault/tokenvault/log"
)

// Migrate applies all pending migrations found at source (e.g.
// file://storage/migrations) to the database at endpoint.
func Migrate(source string, endpoint string, logger *log.Logger) error {
	m, err := migrate.New(source, endpoint)
	if err != nil {
		return fmt.Errorf("migrator failed to start: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.Warn("failed to close migrator", "source_err", srcErr, "db_err", dbErr)
		}
	}()

	switch err = m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("no migrations needed to be applied")
	case err != nil:
		return fmt.Errorf("migrations failed: %w", err)
	default:
		logger.Info("migrations completed")
	}
	return nil
}
