package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/GiftIndexer/internal/db"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/jmoiron/sqlx"
	"github.com/russross/meddler"
)

// Processing stages that own a checkpoint row.
const (
	StageBackfill  = "backfill"
	StageStream    = "stream"
	StageReconcile = "reconcile"
)

// Stages lists every checkpoint stage.
var Stages = []string{StageBackfill, StageStream, StageReconcile}

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store is the persistence layer of the indexer. It is safe for concurrent use;
// all coordination between engines happens through the rows it manages.
type Store struct {
	db       *sqlx.DB
	dialect  *meddler.Database
	contract common.Address
	floor    uint64
	log      *logger.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and lease expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store over an already migrated database. contract is the indexed
// contract and deploymentBlock is the floor every stored event must be above.
func New(database *sqlx.DB, contract common.Address, deploymentBlock uint64,
	log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		db:       database,
		dialect:  db.Dialect(database),
		contract: contract,
		floor:    deploymentBlock,
		log:      log,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Contract returns the contract the store is bound to.
func (s *Store) Contract() common.Address {
	return s.contract
}

// Floor returns the deployment block.
func (s *Store) Floor() uint64 {
	return s.floor
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) unixNow() int64 {
	return s.now().Unix()
}

func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// withTx runs fn inside a transaction, committing on success and rolling back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Errorf("failed to rollback transaction: %v", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func nullableAddress(a *common.Address) any {
	if a == nil {
		return nil
	}
	return db.AddressString(*a)
}

func nullableHash(h *common.Hash) any {
	if h == nil {
		return nil
	}
	return h.Hex()
}
