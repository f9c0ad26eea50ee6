package store

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const dlqTable = "indexer_dlq"

// DLQEntry is an audit row for an event that could not be indexed.
type DLQEntry struct {
	ID          int64       `meddler:"id,pk"              json:"id"`
	TxHash      common.Hash `meddler:"tx_hash,hash"       json:"tx_hash"`
	LogIndex    uint        `meddler:"log_index"          json:"log_index"`
	BlockNumber uint64      `meddler:"block_number"       json:"block_number"`
	Reason      string      `meddler:"reason"             json:"reason"`
	Payload     string      `meddler:"payload,zeroisnull" json:"payload,omitempty"`
	CreatedAt   int64       `meddler:"created_at"         json:"created_at"`
}

// InsertDLQ appends entry to the dead-letter table. Failures are logged and swallowed so that
// losing an audit row never stops indexing.
func (s *Store) InsertDLQ(ctx context.Context, entry *DLQEntry) {
	if entry.CreatedAt == 0 {
		entry.CreatedAt = s.unixNow()
	}

	if err := s.dialect.Insert(s.db, dlqTable, entry); err != nil {
		dlqInsertFailureInc()
		s.log.Errorf("failed to insert DLQ entry for %s:%d (%s): %v",
			entry.TxHash.Hex(), entry.LogIndex, entry.Reason, err)
		return
	}

	dlqInsertInc()
	s.log.Warnf("event %s:%d in block %d sent to DLQ: %s",
		entry.TxHash.Hex(), entry.LogIndex, entry.BlockNumber, entry.Reason)
}

// ListDLQ returns the newest entries first. A limit of zero returns all of them.
func (s *Store) ListDLQ(ctx context.Context, limit int) ([]*DLQEntry, error) {
	query := `SELECT * FROM indexer_dlq ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var entries []*DLQEntry
	if err := s.dialect.QueryAll(s.db, &entries, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list DLQ entries: %w", err)
	}
	return entries, nil
}

// CountDLQ returns the number of dead-letter entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexer_dlq`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count DLQ entries: %w", err)
	}
	return n, nil
}
