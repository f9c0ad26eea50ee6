package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/GiftIndexer/internal/db"
	"github.com/jmoiron/sqlx"
)

const mappingsTable = "gift_mappings"

// GiftMapping is the current gift id of one token of the indexed contract.
type GiftMapping struct {
	ContractAddr common.Address  `meddler:"contract_addr,address" json:"contract_address"`
	TokenID      string          `meddler:"token_id"              json:"token_id"`
	GiftID       string          `meddler:"gift_id"               json:"gift_id"`
	TxHash       common.Hash     `meddler:"tx_hash,hash"          json:"tx_hash"`
	LogIndex     uint            `meddler:"log_index"             json:"log_index"`
	BlockNumber  uint64          `meddler:"block_number"          json:"block_number"`
	BlockHash    common.Hash     `meddler:"block_hash,hash"       json:"block_hash"`
	BlockTime    int64           `meddler:"block_time"            json:"block_time"`
	Creator      *common.Address `meddler:"creator,address"       json:"creator,omitempty"`
	NFTContract  *common.Address `meddler:"nft_contract,address"  json:"nft_contract,omitempty"`
	ExpiresAt    int64           `meddler:"expires_at,zeroisnull" json:"expires_at,omitempty"`
	Gate         *common.Address `meddler:"gate,address"          json:"gate,omitempty"`
	GiftMessage  string          `meddler:"gift_message,zeroisnull" json:"gift_message,omitempty"`
	RegisteredBy *common.Address `meddler:"registered_by,address" json:"registered_by,omitempty"`
	CreatedAt    int64           `meddler:"created_at"            json:"created_at"`
	UpdatedAt    int64           `meddler:"updated_at"            json:"updated_at"`
}

// Rejection is a mapping refused by boundary validation.
type Rejection struct {
	Mapping *GiftMapping
	Err     *ValidationError
}

// UpsertResult summarizes one UpsertMappings call.
type UpsertResult struct {
	Written    int
	Duplicates int
	Stale      int
	Rejected   []Rejection
}

const upsertMappingQuery = `
	INSERT INTO gift_mappings (
		contract_addr, token_id, gift_id, tx_hash, log_index, block_number, block_hash, block_time,
		creator, nft_contract, expires_at, gate, gift_message, registered_by, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (contract_addr, token_id) DO UPDATE SET
		gift_id = excluded.gift_id,
		tx_hash = excluded.tx_hash,
		log_index = excluded.log_index,
		block_number = excluded.block_number,
		block_hash = excluded.block_hash,
		block_time = excluded.block_time,
		creator = excluded.creator,
		nft_contract = excluded.nft_contract,
		expires_at = excluded.expires_at,
		gate = excluded.gate,
		gift_message = excluded.gift_message,
		registered_by = excluded.registered_by,
		updated_at = excluded.updated_at
	WHERE gift_mappings.block_number < excluded.block_number
		OR (gift_mappings.block_number = excluded.block_number AND gift_mappings.log_index <= excluded.log_index)`

// UpsertMapping writes a single mapping. A mapping rejected by validation is returned
// as a *ValidationError and nothing is written.
func (s *Store) UpsertMapping(ctx context.Context, m *GiftMapping) error {
	res, err := s.UpsertMappings(ctx, []*GiftMapping{m})
	if err != nil {
		return err
	}
	if len(res.Rejected) > 0 {
		return res.Rejected[0].Err
	}
	return nil
}

// UpsertMappings writes mappings in one transaction. On a (contract, token id) conflict the
// gift and block fields are replaced and updated_at refreshed, unless the stored event comes
// later in (block number, log index) order; such writes are counted as stale. created_at is kept.
// An event already stored under another (contract, token id) is skipped as a duplicate.
// Mappings failing validation are returned in the result, never written.
func (s *Store) UpsertMappings(ctx context.Context, mappings []*GiftMapping) (UpsertResult, error) {
	var result UpsertResult

	valid := make([]*GiftMapping, 0, len(mappings))
	for _, m := range mappings {
		if err := s.Validate(m); err != nil {
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				result.Rejected = append(result.Rejected, Rejection{Mapping: m, Err: vErr})
			}
			continue
		}
		valid = append(valid, m)
	}

	if len(valid) == 0 {
		mappingsRejectedAdd(len(result.Rejected))
		return result, nil
	}

	now := s.unixNow()
	upsert := s.rebind(upsertMappingQuery)
	existing := s.rebind(`SELECT contract_addr, token_id FROM gift_mappings WHERE tx_hash = ? AND log_index = ?`)

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, m := range valid {
			var contract, tokenID string
			err := tx.QueryRowContext(ctx, existing, m.TxHash.Hex(), m.LogIndex).Scan(&contract, &tokenID)
			switch {
			case err == nil:
				if contract != db.AddressString(m.ContractAddr) || tokenID != m.TokenID {
					result.Duplicates++
					continue
				}
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("failed to check existing event %s:%d: %w", m.TxHash.Hex(), m.LogIndex, err)
			}

			if m.CreatedAt == 0 {
				m.CreatedAt = now
			}
			m.UpdatedAt = now

			res, err := tx.ExecContext(ctx, upsert,
				db.AddressString(m.ContractAddr), m.TokenID, m.GiftID, m.TxHash.Hex(), m.LogIndex,
				m.BlockNumber, m.BlockHash.Hex(), m.BlockTime,
				nullableAddress(m.Creator), nullableAddress(m.NFTContract), nullableInt(m.ExpiresAt),
				nullableAddress(m.Gate), nullableString(m.GiftMessage), nullableAddress(m.RegisteredBy),
				m.CreatedAt, m.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert mapping for token %s: %w", m.TokenID, err)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read upsert result for token %s: %w", m.TokenID, err)
			}
			if affected == 0 {
				result.Stale++
				continue
			}
			result.Written++
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	mappingsWrittenAdd(result.Written)
	mappingsDuplicateAdd(result.Duplicates)
	mappingsStaleAdd(result.Stale)
	mappingsRejectedAdd(len(result.Rejected))

	return result, nil
}

// GetMapping returns the mapping of tokenID. A nil contract means the configured contract.
func (s *Store) GetMapping(ctx context.Context, tokenID string, contract *common.Address) (*GiftMapping, error) {
	addr := s.contract
	if contract != nil {
		addr = *contract
	}

	var m GiftMapping
	err := s.dialect.QueryRow(s.db, &m,
		s.rebind(`SELECT * FROM gift_mappings WHERE contract_addr = ? AND token_id = ?`),
		db.AddressString(addr), tokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping for token %s: %w", tokenID, err)
	}

	return &m, nil
}

// MappingsInBlock returns the mappings whose event was emitted in block number, in log order.
func (s *Store) MappingsInBlock(ctx context.Context, number uint64) ([]*GiftMapping, error) {
	var mappings []*GiftMapping
	err := s.dialect.QueryAll(s.db, &mappings,
		s.rebind(`SELECT * FROM gift_mappings WHERE contract_addr = ? AND block_number = ? ORDER BY log_index`),
		db.AddressString(s.contract), number)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings in block %d: %w", number, err)
	}
	return mappings, nil
}

// DeleteMappingsInRange removes the mappings emitted in [from, to] and returns how many were removed.
func (s *Store) DeleteMappingsInRange(ctx context.Context, from, to uint64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM gift_mappings WHERE contract_addr = ? AND block_number >= ? AND block_number <= ?`),
		db.AddressString(s.contract), from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to delete mappings in [%d, %d]: %w", from, to, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	mappingsDeletedAdd(n)
	return n, nil
}

// BlockHashes returns the stored block hash of every block in [from, to] that holds at least one mapping.
func (s *Store) BlockHashes(ctx context.Context, from, to uint64) (map[uint64]common.Hash, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT block_number, MIN(block_hash) FROM gift_mappings
		WHERE contract_addr = ? AND block_number >= ? AND block_number <= ?
		GROUP BY block_number`),
		db.AddressString(s.contract), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query block hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[uint64]common.Hash)
	for rows.Next() {
		var (
			number uint64
			hash   string
		)
		if err := rows.Scan(&number, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan block hash: %w", err)
		}
		hashes[number] = common.HexToHash(hash)
	}

	return hashes, rows.Err()
}

// StoredBlockHash returns the block hash recorded for block number, if any mapping references it.
func (s *Store) StoredBlockHash(ctx context.Context, number uint64) (common.Hash, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT block_hash FROM gift_mappings WHERE contract_addr = ? AND block_number = ? LIMIT 1`),
		db.AddressString(s.contract), number).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.Hash{}, false, nil
		}
		return common.Hash{}, false, fmt.Errorf("failed to get stored hash of block %d: %w", number, err)
	}
	return common.HexToHash(hash), true, nil
}

// EventBlocks returns the distinct blocks in [from, to] holding mappings, ascending.
func (s *Store) EventBlocks(ctx context.Context, from, to uint64) ([]uint64, error) {
	var blocks []uint64
	err := s.db.SelectContext(ctx, &blocks, s.rebind(`
		SELECT DISTINCT block_number FROM gift_mappings
		WHERE contract_addr = ? AND block_number >= ? AND block_number <= ?
		ORDER BY block_number`),
		db.AddressString(s.contract), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list event blocks: %w", err)
	}
	return blocks, nil
}

// Counts is a row count snapshot used by status and housekeeping.
type Counts struct {
	Mappings       int64  `json:"mappings"`
	Pending        int64  `json:"pending_events"`
	DLQ            int64  `json:"dlq_entries"`
	LastEventBlock uint64 `json:"last_event_block"`
}

// Counts returns the current table sizes.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts

	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM gift_mappings),
			(SELECT COUNT(*) FROM pending_events),
			(SELECT COUNT(*) FROM indexer_dlq),
			(SELECT COALESCE(MAX(block_number), 0) FROM gift_mappings)`)
	if err := row.Scan(&c.Mappings, &c.Pending, &c.DLQ, &c.LastEventBlock); err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}

	return c, nil
}

func nullableInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
