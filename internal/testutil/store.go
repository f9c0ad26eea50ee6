package testutil

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/GiftIndexer/internal/db"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/migrations"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/stretchr/testify/require"
)

const (
	// DeploymentBlock is the registry deployment block used across engine tests.
	DeploymentBlock = 28914999
)

// Contract is the registry address used across engine tests.
var Contract = common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")

// NewStore returns a migrated store over a temporary SQLite database bound to Contract.
func NewStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()

	database, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "gifts.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	log := logger.NewNopLogger()
	require.NoError(t, migrations.RunMigrations(log, database))

	s := store.New(database, Contract, DeploymentBlock, log, opts...)
	require.NoError(t, s.EnsureCheckpoints(t.Context()))
	return s
}
