package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/goran-ethernal/GiftIndexer/internal/common"
	"github.com/goran-ethernal/GiftIndexer/internal/config"
	"github.com/goran-ethernal/GiftIndexer/internal/db"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/migrations"
	"github.com/goran-ethernal/GiftIndexer/internal/service"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	pkgconfig "github.com/goran-ethernal/GiftIndexer/pkg/config"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

var (
	gapsFrom      uint64
	gapsTo        uint64
	gapsMinLength uint64
	dlqLimit      int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Index history up to the safe head and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Indexer.Backfill.Enabled = true

		ctx, cancel := signalContext()
		defer cancel()

		svc, err := service.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Backfill.RunUntilComplete(ctx); err != nil {
			return fmt.Errorf("backfill failed: %w", err)
		}

		st := svc.Backfill.Status()
		fmt.Printf("backfill complete at block %d (%d events)\n", st.Checkpoint, st.Events)
		return nil
	},
}

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "List block ranges without indexed events",
	Long: `gaps reports stretches of blocks in which no gift event is stored. On a sparse
contract most gaps are legitimate; long gaps are candidates for a targeted backfill.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Indexer.Backfill.Enabled = true

		ctx, cancel := signalContext()
		defer cancel()

		svc, err := service.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		to := gapsTo
		if to == 0 {
			to = math.MaxUint64
		}

		gaps, err := svc.Backfill.Gaps(ctx, gapsFrom, to, gapsMinLength)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0) //nolint:mnd
		fmt.Fprintln(w, "FROM\tTO\tBLOCKS")
		for _, g := range gaps {
			fmt.Fprintf(w, "%d\t%d\t%d\n", g.From, g.To, g.Len())
		}
		return w.Flush()
	},
}

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Show the most recent dead-letter entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		s, closeDB, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeDB()

		entries, err := s.ListDLQ(cmd.Context(), dlqLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0) //nolint:mnd
		fmt.Fprintln(w, "ID\tBLOCK\tTX\tLOG\tCREATED\tREASON")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\t%s\n",
				e.ID, e.BlockNumber, e.TxHash.Hex(), e.LogIndex,
				time.Unix(e.CreatedAt, 0).UTC().Format(time.RFC3339), e.Reason)
		}
		return w.Flush()
	},
}

var replayPendingCmd = &cobra.Command{
	Use:   "replay-pending",
	Short: "Re-process staged stream events and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		svc, err := service.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		res, err := svc.Pipeline.Redrive(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("replayed %d staged events: written=%d duplicates=%d invalid=%d rejected=%d\n",
			res.Received+res.Invalid, res.Written, res.Duplicates, res.Invalid, res.Rejected)
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		r := &jsonschema.Reflector{FieldNameTag: "yaml", DoNotReference: true}
		schema := r.Reflect(&pkgconfig.Config{})
		schema.Title = "GiftIndexer configuration"

		out, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	gapsCmd.Flags().Uint64Var(&gapsFrom, "from", 0, "first block to inspect (default: deployment block + 1)")
	gapsCmd.Flags().Uint64Var(&gapsTo, "to", 0, "last block to inspect (default: backfill checkpoint)")
	gapsCmd.Flags().Uint64Var(&gapsMinLength, "min-length", 1000, "only report gaps of at least this many blocks")

	dlqCmd.Flags().IntVarP(&dlqLimit, "limit", "n", 50, "number of entries to show")
}

// openStore opens and migrates the configured database without connecting to the node.
func openStore(cfg *pkgconfig.Config) (*store.Store, func(), error) {
	log := logger.NewComponentLoggerFromConfig(common.ComponentStore, &cfg.Logging)

	database, err := db.NewFromConfig(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrations.RunMigrations(log, database); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	closeDB := func() { database.Close() }
	return store.New(database, cfg.Chain.Address(), cfg.Chain.DeploymentBlock, log), closeDB, nil
}
