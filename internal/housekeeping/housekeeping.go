package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goran-ethernal/GiftIndexer/internal/db"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 5 * time.Minute

// Report is the outcome of one maintenance run.
type Report struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	PendingPurged int64         `json:"pending_purged"`
	WAL           db.WALStats   `json:"wal"`
	Counts        store.Counts  `json:"counts"`
	DBSizeBytes   int64         `json:"db_size_bytes,omitempty"`
	Errors        []string      `json:"errors,omitempty"`
}

// Scheduler runs store maintenance on a cron schedule: it drops pending events nobody
// re-drove within the TTL, checkpoints the SQLite WAL and refreshes the row count gauges.
type Scheduler struct {
	cfg        config.HousekeepingConfig
	pendingTTL time.Duration
	store      *store.Store
	dbPath     string
	log        *logger.Logger

	runMu sync.Mutex

	mu   sync.RWMutex
	last *Report
	runs uint64
}

// New creates a scheduler. dbPath is the SQLite file whose size is reported; leave it empty
// on Postgres.
func New(
	cfg config.HousekeepingConfig,
	pendingTTL time.Duration,
	s *store.Store,
	dbPath string,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		pendingTTL: pendingTTL,
		store:      s,
		dbPath:     dbPath,
		log:        log,
	}
}

// Run schedules RunOnce and blocks until ctx is cancelled, then waits for a run in flight.
func (h *Scheduler) Run(ctx context.Context) error {
	if !h.cfg.Enabled {
		h.log.Info("housekeeping is disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{h.log})), cron.WithLogger(cronLogger{h.log}))
	if _, err := c.AddFunc(h.cfg.Schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		h.RunOnce(runCtx)
	}); err != nil {
		return fmt.Errorf("invalid housekeeping schedule %q: %w", h.cfg.Schedule, err)
	}

	c.Start()
	h.log.Infof("housekeeping started - schedule: %s, checkpoint mode: %s", h.cfg.Schedule, h.cfg.WALCheckpointMode)

	<-ctx.Done()
	<-c.Stop().Done()
	h.log.Info("housekeeping stopped")
	return nil
}

// RunOnce performs every maintenance step. A failing step is recorded and the rest still run.
func (h *Scheduler) RunOnce(ctx context.Context) *Report {
	h.runMu.Lock()
	defer h.runMu.Unlock()

	report := &Report{StartedAt: time.Now().UTC()}
	var errs []error

	purged, err := h.store.PurgePendingOlderThan(ctx, h.pendingTTL)
	if err != nil {
		errs = append(errs, err)
	} else if purged > 0 {
		report.PendingPurged = purged
		h.log.Warnf("purged %d pending events older than %s", purged, h.pendingTTL)
	}

	if h.cfg.WALCheckpointMode != "" {
		stats, err := db.WALCheckpoint(ctx, h.store.DB(), h.cfg.WALCheckpointMode)
		if err != nil {
			errs = append(errs, err)
		}
		report.WAL = stats
	}

	counts, err := h.store.Counts(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		report.Counts = counts
		store.CountsLog(counts)
	}

	if h.dbPath != "" {
		size, err := db.DBTotalSize(h.dbPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to get database size: %w", err))
		} else {
			report.DBSizeBytes = size
			db.DBSizeLog(size)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	for _, err := range errs {
		report.Errors = append(report.Errors, err.Error())
	}

	runInc(len(errs) == 0)
	if err := errors.Join(errs...); err != nil {
		h.log.Warnf("housekeeping finished with errors in %s: %v", report.Duration, err)
	} else {
		h.log.Debugf("housekeeping finished in %s", report.Duration)
	}

	h.mu.Lock()
	h.last = report
	h.runs++
	h.mu.Unlock()

	return report
}

// Last returns the most recent report and the number of completed runs.
func (h *Scheduler) Last() (*Report, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.runs
}

// cronLogger routes cron's own messages through the component logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
