package commands

import (
	"database/sql"

	"github.com/teranos/mplan/config"
	"github.com/teranos/mplan/db"
	"github.com/teranos/mplan/errors"
	"github.com/teranos/mplan/logger"
)

// openDatabase opens and migrates a database at the given path. An empty
// path resolves through the config system.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := config.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		dbPath = path
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}
