package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jmoiron/sqlx"
)

// EventKey identifies one on-chain event.
type EventKey struct {
	TxHash   common.Hash
	LogIndex uint
}

// PendingEvent is a raw log staged before it is reflected in gift_mappings.
type PendingEvent struct {
	TxHash      common.Hash `meddler:"tx_hash,hash"`
	LogIndex    uint        `meddler:"log_index"`
	BlockNumber uint64      `meddler:"block_number"`
	BlockHash   common.Hash `meddler:"block_hash,hash"`
	LogData     string      `meddler:"log_data"`
	CreatedAt   int64       `meddler:"created_at"`
}

// Key returns the event key of the staged log.
func (p *PendingEvent) Key() EventKey {
	return EventKey{TxHash: p.TxHash, LogIndex: p.LogIndex}
}

// NewPendingEvent stages log with its JSON-RPC encoding as payload.
func NewPendingEvent(log types.Log) (*PendingEvent, error) {
	data, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("failed to encode log %s:%d: %w", log.TxHash.Hex(), log.Index, err)
	}

	return &PendingEvent{
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		LogData:     string(data),
	}, nil
}

// InsertPending stages events. Events already staged are left as they are.
func (s *Store) InsertPending(ctx context.Context, events []*PendingEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := s.rebind(`INSERT INTO pending_events (tx_hash, log_index, block_number, block_hash, log_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (tx_hash, log_index) DO NOTHING`)
	now := s.unixNow()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range events {
			if e.CreatedAt == 0 {
				e.CreatedAt = now
			}
			if _, err := tx.ExecContext(ctx, query,
				e.TxHash.Hex(), e.LogIndex, e.BlockNumber, e.BlockHash.Hex(), e.LogData, e.CreatedAt); err != nil {
				return fmt.Errorf("failed to stage event %s:%d: %w", e.TxHash.Hex(), e.LogIndex, err)
			}
		}
		return nil
	})
}

// ListPending returns staged events in chain order. A limit of zero returns all of them.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*PendingEvent, error) {
	query := `SELECT * FROM pending_events ORDER BY block_number, log_index`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var events []*PendingEvent
	if err := s.dialect.QueryAll(s.db, &events, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	return events, nil
}

// RemovePending deletes staged events once they are processed.
func (s *Store) RemovePending(ctx context.Context, keys ...EventKey) error {
	if len(keys) == 0 {
		return nil
	}

	query := s.rebind(`DELETE FROM pending_events WHERE tx_hash = ? AND log_index = ?`)

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, query, k.TxHash.Hex(), k.LogIndex); err != nil {
				return fmt.Errorf("failed to remove pending event %s:%d: %w", k.TxHash.Hex(), k.LogIndex, err)
			}
		}
		return nil
	})
}

// PurgePendingOlderThan deletes staged events created more than age ago.
func (s *Store) PurgePendingOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age).Unix()

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM pending_events WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge pending events: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	pendingPurgedAdd(n)
	return n, nil
}
