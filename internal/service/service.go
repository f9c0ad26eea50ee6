package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/goran-ethernal/GiftIndexer/internal/backfill"
	"github.com/goran-ethernal/GiftIndexer/internal/codec"
	"github.com/goran-ethernal/GiftIndexer/internal/common"
	"github.com/goran-ethernal/GiftIndexer/internal/db"
	"github.com/goran-ethernal/GiftIndexer/internal/housekeeping"
	"github.com/goran-ethernal/GiftIndexer/internal/ingest"
	"github.com/goran-ethernal/GiftIndexer/internal/leader"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/migrations"
	"github.com/goran-ethernal/GiftIndexer/internal/reconcile"
	"github.com/goran-ethernal/GiftIndexer/internal/rpc"
	"github.com/goran-ethernal/GiftIndexer/internal/status"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/internal/stream"
	"github.com/goran-ethernal/GiftIndexer/pkg/api"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

// Option customizes how a Service obtains its connections.
type Option func(*options)

type options struct {
	chain pkgrpc.ChainClient
	db    *sqlx.DB
}

// WithChain uses chain instead of dialing cfg.RPC.
func WithChain(chain pkgrpc.ChainClient) Option {
	return func(o *options) { o.chain = chain }
}

// WithDB uses database instead of opening cfg.DB. The caller keeps ownership of it.
func WithDB(database *sqlx.DB) Option {
	return func(o *options) { o.db = database }
}

// Service wires the store, the chain client and the engines of one indexer process.
type Service struct {
	cfg *config.Config
	log *logger.Logger

	db        *sqlx.DB
	ownsDB    bool
	chain     pkgrpc.ChainClient
	ownsChain bool
	chainID   uint64

	Store        *store.Store
	Pipeline     *ingest.Pipeline
	Backfill     *backfill.Engine
	Stream       *stream.Engine
	Reconcile    *reconcile.Engine
	Elector      *leader.Elector
	Monitor      *status.Monitor
	Housekeeping *housekeeping.Scheduler
	API          *api.Server
}

// New opens the store, migrates it, connects to the node and builds every component.
// The node must report cfg.Chain.ChainID.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (svc *Service, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	componentLog := func(component string) *logger.Logger {
		return logger.NewComponentLoggerFromConfig(component, &cfg.Logging)
	}

	s := &Service{cfg: cfg, log: componentLog(common.ComponentService)}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.db = o.db
	if s.db == nil {
		s.db, err = db.NewFromConfig(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.ownsDB = true
	}

	s.log.Info("Running database migrations...")
	if err := migrations.RunMigrations(componentLog(common.ComponentStore), s.db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	contract := cfg.Chain.Address()
	s.Store = store.New(s.db, contract, cfg.Chain.DeploymentBlock, componentLog(common.ComponentStore))
	if err := s.Store.EnsureCheckpoints(ctx); err != nil {
		return nil, err
	}

	c, err := codec.New(contract, cfg.Chain.DeploymentBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create codec: %w", err)
	}

	s.chain = o.chain
	if s.chain == nil {
		s.log.Info("Connecting to Ethereum node...")
		s.chain, err = rpc.NewClient(ctx, cfg.RPC, rpc.Options{
			Contract:           contract,
			Topic:              codec.EventID,
			Confirmations:      cfg.Chain.Confirmations,
			SubscriptionBuffer: cfg.Indexer.Stream.ChannelSize,
		}, componentLog(common.ComponentRPC))
		if err != nil {
			return nil, fmt.Errorf("failed to create RPC client: %w", err)
		}
		s.ownsChain = true
	}

	s.chainID, err = s.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if s.chainID != cfg.Chain.ChainID {
		return nil, fmt.Errorf("node reports chain id %d, configuration expects %d", s.chainID, cfg.Chain.ChainID)
	}

	s.Pipeline = ingest.NewPipeline(s.Store, s.chain, c, componentLog(common.ComponentIngest))

	if cfg.Indexer.Backfill.Enabled {
		s.Backfill = backfill.New(cfg.Indexer.Backfill, s.Store, s.chain, s.Pipeline, componentLog(common.ComponentBackfill))
	}
	if cfg.Indexer.Stream.Enabled {
		s.Stream = stream.New(cfg.Indexer.Stream, cfg.Chain.Confirmations, s.Store, s.chain, s.Pipeline,
			componentLog(common.ComponentStream))
	}
	if cfg.Indexer.Reconcile.Enabled {
		s.Reconcile = reconcile.New(cfg.Indexer.Reconcile, s.Store, s.chain, s.Pipeline, c,
			componentLog(common.ComponentReconcile))
	}

	s.Elector, err = leader.New(cfg.Indexer.Leader, s.Store, cfg.Indexer.InstanceID, componentLog(common.ComponentLeader))
	if err != nil {
		return nil, err
	}

	deps := status.Deps{
		Store:      s.Store,
		Chain:      s.chain,
		Leader:     s.Elector,
		InstanceID: s.Elector.HolderID(),
		ChainID:    s.chainID,
	}
	// nil engine pointers must stay nil interfaces
	if s.Backfill != nil {
		deps.Backfill = s.Backfill
	}
	if s.Stream != nil {
		deps.Stream = s.Stream
	}
	if s.Reconcile != nil {
		deps.Reconcile = s.Reconcile
	}
	s.Monitor = status.New(cfg.Health, deps, componentLog(common.ComponentService))

	dbPath := ""
	if db.EngineOf(s.db) == db.EngineSQLite {
		dbPath = cfg.DB.Path
	}
	s.Housekeeping = housekeeping.New(cfg.Housekeeping, cfg.Indexer.PendingTTL.Duration, s.Store, dbPath,
		componentLog(common.ComponentHousekeeping))

	s.API, err = api.NewServer(api.Deps{
		Config:       cfg,
		Monitor:      s.Monitor,
		Store:        s.Store,
		Chain:        s.chain,
		Leader:       s.Elector,
		Housekeeping: s.Housekeeping,
	}, componentLog(common.ComponentAPI))
	if err != nil {
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}

	return s, nil
}

// Chain returns the node client.
func (s *Service) Chain() pkgrpc.ChainClient {
	return s.chain
}

// Run re-drives staged events, then runs every enabled engine, each under its own lease,
// next to the health loop, housekeeping and the API until ctx is cancelled or a component
// fails.
func (s *Service) Run(ctx context.Context) error {
	res, err := s.Pipeline.Redrive(ctx)
	if err != nil {
		return fmt.Errorf("failed to re-drive pending events: %w", err)
	}
	if res.Received > 0 || res.Invalid > 0 {
		s.log.Infow("re-drove staged events",
			"received", res.Received,
			"written", res.Written,
			"duplicates", res.Duplicates,
			"invalid", res.Invalid,
		)
	}

	s.Monitor.SetRunning(true)
	defer s.Monitor.SetRunning(false)

	g, ctx := errgroup.WithContext(ctx)

	if s.Backfill != nil {
		g.Go(func() error {
			return s.Elector.Run(ctx, leader.ResourceBackfill, func(ctx context.Context) error {
				err := s.Backfill.RunUntilComplete(ctx)
				if ctx.Err() != nil {
					return nil
				}
				return err
			})
		})
	}
	if s.Stream != nil {
		g.Go(func() error {
			return s.Elector.Run(ctx, leader.ResourceStream, s.Stream.Run)
		})
	}
	if s.Reconcile != nil {
		g.Go(func() error {
			return s.Elector.Run(ctx, leader.ResourceReconcile, s.Reconcile.Run)
		})
	}

	g.Go(func() error { return s.Monitor.Run(ctx) })
	g.Go(func() error { return s.Housekeeping.Run(ctx) })
	g.Go(func() error { return s.API.Start(ctx) })

	s.log.Infow("indexer running",
		"chain_id", s.chainID,
		"contract", s.Store.Contract().Hex(),
		"holder", s.Elector.HolderID(),
		"backfill", s.Backfill != nil,
		"stream", s.Stream != nil,
		"reconcile", s.Reconcile != nil,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	s.log.Info("indexer stopped")
	return nil
}

// Close releases the node connection and the database when the service opened them.
func (s *Service) Close() {
	if s.ownsChain && s.chain != nil {
		s.chain.Close()
	}
	if s.ownsDB && s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warnw("failed to close database", "error", err)
		}
	}
}
