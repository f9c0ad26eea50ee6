package migrations

import (
	_ "embed"

	"github.com/goran-ethernal/GiftIndexer/internal/db"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/jmoiron/sqlx"
)

//go:embed sqlite/001_gift_indexer.sql
var sqliteMig001 string

//go:embed postgres/001_gift_indexer.sql
var postgresMig001 string

// Migrations returns the schema steps for the given engine.
func Migrations(engine db.Engine) []db.Migration {
	if engine == db.EnginePostgres {
		return []db.Migration{
			{ID: "001_gift_indexer.sql", SQL: postgresMig001},
		}
	}

	return []db.Migration{
		{ID: "001_gift_indexer.sql", SQL: sqliteMig001},
	}
}

// RunMigrations brings the schema of database up to date.
func RunMigrations(log *logger.Logger, database *sqlx.DB) error {
	return db.RunMigrationsDB(log, database, Migrations(db.EngineOf(database)))
}
