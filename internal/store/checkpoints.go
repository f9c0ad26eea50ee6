package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint is the last block a stage fully processed.
type Checkpoint struct {
	ID            string       `meddler:"id"                   json:"stage"`
	LastBlock     uint64       `meddler:"last_block"           json:"last_block"`
	LastBlockHash *common.Hash `meddler:"last_block_hash,hash" json:"last_block_hash,omitempty"`
	UpdatedAt     int64        `meddler:"updated_at"           json:"updated_at"`
}

// EnsureCheckpoints creates a checkpoint at the deployment block for every stage that has none.
func (s *Store) EnsureCheckpoints(ctx context.Context) error {
	query := s.rebind(`INSERT INTO indexer_checkpoint (id, last_block, last_block_hash, updated_at)
		VALUES (?, ?, NULL, ?) ON CONFLICT (id) DO NOTHING`)

	now := s.unixNow()
	for _, stage := range Stages {
		if _, err := s.db.ExecContext(ctx, query, stage, s.floor, now); err != nil {
			return fmt.Errorf("failed to create %s checkpoint: %w", stage, err)
		}
	}
	return nil
}

// GetCheckpoint returns the last processed block of stage, or the deployment block if the
// stage has never run.
func (s *Store) GetCheckpoint(ctx context.Context, stage string) (uint64, error) {
	var block uint64
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT last_block FROM indexer_checkpoint WHERE id = ?`), stage).Scan(&block)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.floor, nil
		}
		return 0, fmt.Errorf("failed to get %s checkpoint: %w", stage, err)
	}
	return block, nil
}

// Checkpoints returns every checkpoint row.
func (s *Store) Checkpoints(ctx context.Context) ([]*Checkpoint, error) {
	var checkpoints []*Checkpoint
	if err := s.dialect.QueryAll(s.db, &checkpoints, `SELECT * FROM indexer_checkpoint ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return checkpoints, nil
}

// SaveCheckpoint advances the checkpoint of stage to block. A block below the stored one is
// ignored: checkpoints only move backwards through RollbackCheckpoint.
// It reports whether the row was written.
func (s *Store) SaveCheckpoint(ctx context.Context, stage string, block uint64, hash *common.Hash) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO indexer_checkpoint (id, last_block, last_block_hash, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_block = excluded.last_block,
			last_block_hash = excluded.last_block_hash,
			updated_at = excluded.updated_at
		WHERE indexer_checkpoint.last_block <= excluded.last_block`),
		stage, block, nullableHash(hash), s.unixNow())
	if err != nil {
		return false, fmt.Errorf("failed to save %s checkpoint: %w", stage, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if n == 0 {
		s.log.Warnf("ignored %s checkpoint regression to block %d", stage, block)
		return false, nil
	}

	checkpointSet(stage, block)
	return true, nil
}

// RollbackCheckpoint sets the checkpoint of stage to block unconditionally.
// Only reorg repair moves a checkpoint backwards.
func (s *Store) RollbackCheckpoint(ctx context.Context, stage string, block uint64, hash *common.Hash) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO indexer_checkpoint (id, last_block, last_block_hash, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_block = excluded.last_block,
			last_block_hash = excluded.last_block_hash,
			updated_at = excluded.updated_at`),
		stage, block, nullableHash(hash), s.unixNow())
	if err != nil {
		return fmt.Errorf("failed to roll back %s checkpoint: %w", stage, err)
	}

	s.log.Warnf("%s checkpoint rolled back to block %d", stage, block)
	checkpointSet(stage, block)
	return nil
}
