package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	internalcommon "github.com/goran-ethernal/GiftIndexer/internal/common"
	"github.com/goran-ethernal/GiftIndexer/internal/db"
	"github.com/goran-ethernal/GiftIndexer/internal/housekeeping"
	"github.com/goran-ethernal/GiftIndexer/internal/leader"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/status"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	"github.com/goran-ethernal/GiftIndexer/pkg/config"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
)

const (
	recentDLQLimit = 20
	verifyTimeout  = 5 * time.Second

	sourceStore = "store"
	sourceChain = "chain"
)

// StatusSource provides aggregated indexer state.
type StatusSource interface {
	Snapshot(ctx context.Context) *status.Snapshot
}

// HousekeepingSource provides the last housekeeping report.
type HousekeepingSource interface {
	Last() (*housekeeping.Report, uint64)
}

// Deps are the components served by the API. Chain, Leader and Housekeeping are optional.
type Deps struct {
	Config       *config.Config
	Monitor      StatusSource
	Store        *store.Store
	Chain        pkgrpc.ChainClient
	Leader       status.LeaderSource
	Housekeeping HousekeepingSource
}

// Handler handles HTTP requests for the API.
type Handler struct {
	deps Deps
	log  *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, log *logger.Logger) *Handler {
	return &Handler{deps: deps, log: log}
}

// Health reports whether the process is running and its node and store are reachable.
// It answers 503 when the indexer is unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Monitor.Snapshot(r.Context())

	response := HealthResponse{
		Status:    "ok",
		Running:   snap.Running,
		RPC:       !snap.RPCChecked || snap.RPC.HTTP,
		Store:     snap.StoreOK,
		Timestamp: time.Now().UTC(),
	}

	code := http.StatusOK
	if !snap.Healthy {
		response.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, response)
}

// Status returns the full aggregated state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Monitor.Snapshot(r.Context()))
}

// Backfill returns the backfill engine state.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Monitor.Snapshot(r.Context())

	response := h.engine(leader.ResourceBackfill, store.StageBackfill, h.deps.Config.Indexer.Backfill.Enabled, snap)
	if snap.Backfill != nil {
		response.Status = snap.Backfill
	}
	respondJSON(w, http.StatusOK, response)
}

// Stream returns the stream engine state.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Monitor.Snapshot(r.Context())

	response := h.engine(leader.ResourceStream, store.StageStream, h.deps.Config.Indexer.Stream.Enabled, snap)
	if snap.Stream != nil {
		response.Status = snap.Stream
	}
	respondJSON(w, http.StatusOK, response)
}

// Reconcile returns the reconciliation engine state.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Monitor.Snapshot(r.Context())

	response := h.engine(leader.ResourceReconcile, store.StageReconcile, h.deps.Config.Indexer.Reconcile.Enabled, snap)
	if snap.Reconcile != nil {
		response.Status = snap.Reconcile
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *Handler) engine(resource, stage string, enabled bool, snap *status.Snapshot) EngineResponse {
	leading := enabled
	if enabled && h.deps.Leader != nil {
		leading = h.deps.Leader.IsLeader(resource)
	}

	return EngineResponse{
		Enabled:    enabled,
		Leader:     leading,
		Checkpoint: snap.Checkpoints[stage],
	}
}

// Database describes the store: counts, checkpoints, lock holders and recent DLQ entries.
func (h *Handler) Database(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := h.deps.Store

	counts, err := s.Counts(ctx)
	if err != nil {
		h.log.Errorw("failed to count rows", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read database counts")
		return
	}

	checkpoints, err := s.Checkpoints(ctx)
	if err != nil {
		h.log.Errorw("failed to read checkpoints", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read checkpoints")
		return
	}

	locks, err := s.ListLocks(ctx)
	if err != nil {
		h.log.Errorw("failed to read locks", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read locks")
		return
	}

	dlq, err := s.ListDLQ(ctx, recentDLQLimit)
	if err != nil {
		h.log.Errorw("failed to read DLQ", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read dead letter queue")
		return
	}

	response := DatabaseResponse{
		Engine:      string(db.EngineOf(s.DB())),
		Counts:      counts,
		Checkpoints: checkpoints,
		Locks:       locks,
		RecentDLQ:   dlq,
	}
	if h.deps.Housekeeping != nil {
		response.Housekeeping, _ = h.deps.Housekeeping.Last()
	}

	respondJSON(w, http.StatusOK, response)
}

// Mapping looks up the gift mapping of a token. With the chain read source the stored
// block hash is compared against the node.
func (h *Handler) Mapping(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("tokenId")
	if !internalcommon.IsDecimal(tokenID) {
		respondError(w, http.StatusBadRequest, "tokenId must be a non-negative decimal integer")
		return
	}

	var contract *common.Address
	if raw := strings.TrimSpace(r.URL.Query().Get("contract")); raw != "" {
		if !common.IsHexAddress(raw) {
			respondError(w, http.StatusBadRequest, "contract must be a hex address")
			return
		}
		addr := common.HexToAddress(raw)
		contract = &addr
	}

	mapping, err := h.deps.Store.GetMapping(r.Context(), tokenID, contract)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no gift mapping for token "+tokenID)
		return
	}
	if err != nil {
		h.log.Errorw("failed to read mapping", "token_id", tokenID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read mapping")
		return
	}

	response := MappingResponse{GiftMapping: mapping, Source: sourceStore}
	if h.deps.Config.Indexer.ReadSource == config.ReadSourceChain && h.deps.Chain != nil {
		response.Source = sourceChain
		h.verify(r.Context(), &response)
	}

	respondJSON(w, http.StatusOK, response)
}

func (h *Handler) verify(ctx context.Context, response *MappingResponse) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	block, err := h.deps.Chain.GetBlock(ctx, response.BlockNumber)
	if err != nil {
		h.log.Warnw("failed to verify mapping against chain",
			"token_id", response.TokenID,
			"block", response.BlockNumber,
			"error", err,
		)
		response.VerificationError = err.Error()
		return
	}

	verified := block.Hash == response.BlockHash
	response.Verified = &verified
}

// Config returns the running configuration with secrets redacted.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Config.Redacted())
}

// Alerts returns the raised alerts.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.deps.Monitor.Snapshot(r.Context()).Alerts
	if alerts == nil {
		alerts = []status.Alert{}
	}

	response := AlertsResponse{Alerts: alerts, Count: len(alerts)}
	for _, a := range alerts {
		if a.Severity == status.SeverityCritical {
			response.Critical++
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// Debug exposes runtime internals. It only answers in the development environment.
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	if h.deps.Config.API.Environment != config.EnvironmentDevelopment {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := DebugResponse{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		Memory: map[string]uint64{
			"alloc":       mem.Alloc,
			"total_alloc": mem.TotalAlloc,
			"sys":         mem.Sys,
			"heap_inuse":  mem.HeapInuse,
			"num_gc":      uint64(mem.NumGC),
		},
		Leading: []string{},
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		response.Module = info.Main.Path
	}
	if h.deps.Leader != nil {
		response.Leading = h.deps.Leader.Leading()
	}
	response.Errors = h.deps.Monitor.Snapshot(r.Context()).Errors

	respondJSON(w, http.StatusOK, response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// Encode JSON first to catch any errors before writing status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)

	if _, err := w.Write(encoded); err != nil {
		// Headers already sent, nothing left to report to the client
		return
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	respondJSON(w, status, response)
}
