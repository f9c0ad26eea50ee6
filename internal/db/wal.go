package db

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
)

// WALStats is the result row of PRAGMA wal_checkpoint.
type WALStats struct {
	Busy         int
	LogFrames    int
	Checkpointed int
}

// IsWALMode checks if the database is in WAL journal mode. Always false on Postgres.
func IsWALMode(ctx context.Context, db *sqlx.DB) (bool, error) {
	if EngineOf(db) != EngineSQLite {
		return false, nil
	}

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return false, err
	}
	return strings.EqualFold(mode, "wal"), nil
}

// WALCheckpoint runs PRAGMA wal_checkpoint with the given mode (PASSIVE, FULL, RESTART, TRUNCATE).
// It is a no-op returning zero stats when the database is not in WAL mode.
func WALCheckpoint(ctx context.Context, db *sqlx.DB, mode string) (WALStats, error) {
	var stats WALStats

	isWAL, err := IsWALMode(ctx, db)
	if err != nil {
		return stats, fmt.Errorf("failed to check journal mode: %w", err)
	}
	if !isWAL {
		return stats, nil
	}

	query := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", strings.ToUpper(mode))
	if err := db.QueryRowContext(ctx, query).Scan(&stats.Busy, &stats.LogFrames, &stats.Checkpointed); err != nil {
		return stats, fmt.Errorf("failed to execute WAL checkpoint: %w", err)
	}

	WALCheckpointInc(strings.ToLower(mode))
	return stats, nil
}

// DBTotalSize returns the combined size of a SQLite database file and its -wal/-shm companions.
func DBTotalSize(dbPath string) (int64, error) {
	var total int64
	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(dbPath + suffix)
		if err != nil {
			if os.IsNotExist(err) && suffix != "" {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
