package database

import (
	"errors"
	"fmt"
	"os"

	"flexchat/internal/migration"
	"flexchat/pkg/logger"
	"flexchat/pkg/version"
	"flexchat/store"
)

// Connect opens the chat document under dir. With autoMigrate an existing
// document from an older release is migrated first; otherwise an older
// document fails with store.ErrMigrationRequired, or store.ErrSchema when it
// predates version-code.
func Connect(dir string, autoMigrate bool) (*store.Store, error) {
	current, err := version.Current()
	if err != nil {
		return nil, err
	}
	path := store.FilePath(dir)

	if autoMigrate {
		if _, err := os.Stat(path); err == nil {
			if _, err := Migrate(dir); err != nil {
				return nil, err
			}
		}
	}

	s, err := store.Open(path, current)
	if errors.Is(err, store.ErrMigrationRequired) || errors.Is(err, store.ErrSchema) {
		logger.Sugar.Errorf("Database %s is older than this release. Run the migrate command.", path)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Sugar.Infof("Successfully opened the database at %s", path)
	return s, nil
}

// Migrate upgrades the document under dir in place and returns the number of
// steps applied. A missing document is an error.
func Migrate(dir string) (int, error) {
	path := store.FilePath(dir)
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrIO, err)
	}
	runner, err := migration.Default()
	if err != nil {
		return 0, err
	}
	return runner.Run(path)
}
