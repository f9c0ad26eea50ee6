package leader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
)

const releaseTimeout = 5 * time.Second

// Lock names of the engines.
const (
	ResourceBackfill  = "backfill"
	ResourceStream    = "stream"
	ResourceReconcile = "reconcile"
)

// metadata is stored with every lock this process takes. It is informational only.
type metadata struct {
	Host      string    `json:"host"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Elector runs work under time-leased locks so that only one replica drives each engine.
type Elector struct {
	cfg      config.LeaderConfig
	store    *store.Store
	log      *logger.Logger
	holder   string
	metadata string

	mu      sync.RWMutex
	leading map[string]bool
}

// New creates an elector. An empty instanceID is replaced by hostname-pid-uuid.
func New(cfg config.LeaderConfig, s *store.Store, instanceID string, log *logger.Logger) (*Elector, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	if instanceID == "" {
		instanceID = fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString())
	}

	meta, err := json.Marshal(metadata{Host: host, PID: os.Getpid(), StartedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock metadata: %w", err)
	}

	return &Elector{
		cfg:      cfg,
		store:    s,
		log:      log,
		holder:   instanceID,
		metadata: string(meta),
		leading:  make(map[string]bool),
	}, nil
}

// HolderID returns the id this process writes into the lock table.
func (e *Elector) HolderID() string {
	return e.holder
}

// Enabled reports whether work is gated by locks at all.
func (e *Elector) Enabled() bool {
	return e.cfg.Enabled
}

// IsLeader reports whether this process currently runs the work guarded by resource.
// With election disabled every resource is led locally.
func (e *Elector) IsLeader(resource string) bool {
	if !e.cfg.Enabled {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leading[resource]
}

// Leading returns the resources this process currently leads, sorted.
func (e *Elector) Leading() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.leading))
	for r, ok := range e.leading {
		if ok {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return out
}

// Run blocks until it holds the lease on resource, then runs fn with a context that is
// cancelled when ctx is done or a renewal fails. After losing the lease it goes back to
// waiting. Run returns fn's result when fn returns on its own, and nil once ctx is done.
func (e *Elector) Run(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	if !e.cfg.Enabled {
		return fn(ctx)
	}

	for {
		acquired, err := e.store.AcquireLock(ctx, resource, e.holder, e.cfg.Lease.Duration, e.metadata)
		if err != nil && ctx.Err() == nil {
			e.log.Warnw("failed to acquire lease", "resource", resource, "error", err)
		}

		if acquired {
			e.log.Infow("acquired lease", "resource", resource, "holder", e.holder)
			done, err := e.lead(ctx, resource, fn)
			if done {
				return err
			}
			e.log.Warnw("lost lease, waiting to reacquire", "resource", resource)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.cfg.RetryInterval.Duration):
		}
	}
}

// lead runs fn while renewing the lease. It reports done=false when the lease was lost and
// fn was cancelled because of it.
func (e *Elector) lead(ctx context.Context, resource string, fn func(ctx context.Context) error) (bool, error) {
	e.setLeading(resource, true)
	defer e.setLeading(resource, false)
	defer e.release(resource)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(workCtx) }()

	ticker := time.NewTicker(e.cfg.RenewInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case err := <-result:
			return true, err

		case <-ctx.Done():
			cancel()
			<-result
			return true, nil

		case <-ticker.C:
			renewed, err := e.store.RenewLock(ctx, resource, e.holder, e.cfg.Lease.Duration)
			if ctx.Err() != nil {
				continue
			}
			if err != nil || !renewed {
				e.log.Errorw("lease renewal failed, stopping work",
					"resource", resource,
					"renewed", renewed,
					"error", err,
				)
				renewFailureInc(resource)
				cancel()
				<-result
				return false, nil
			}
		}
	}
}

func (e *Elector) release(resource string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	released, err := e.store.ReleaseLock(ctx, resource, e.holder)
	if err != nil {
		e.log.Warnw("failed to release lease", "resource", resource, "error", err)
		return
	}
	if released {
		e.log.Infow("released lease", "resource", resource)
	}
}

func (e *Elector) setLeading(resource string, leading bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leading[resource] = leading
	leaderSet(resource, leading)
}
