package api

import (
	"time"

	"github.com/goran-ethernal/GiftIndexer/internal/housekeeping"
	"github.com/goran-ethernal/GiftIndexer/internal/status"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Running   bool      `json:"running"`
	RPC       bool      `json:"rpc"`
	Store     bool      `json:"store"`
	Timestamp time.Time `json:"timestamp"`
}

// EngineResponse is the status of one engine as served by /backfill, /stream and /reconcile.
type EngineResponse struct {
	Enabled    bool   `json:"enabled"`
	Leader     bool   `json:"leader"`
	Checkpoint uint64 `json:"checkpoint"`
	Status     any    `json:"status,omitempty"`
}

// DatabaseResponse describes the store.
type DatabaseResponse struct {
	Engine       string               `json:"engine"`
	Counts       store.Counts         `json:"counts"`
	Checkpoints  []*store.Checkpoint  `json:"checkpoints"`
	Locks        []*store.Lock        `json:"locks"`
	RecentDLQ    []*store.DLQEntry    `json:"recent_dlq"`
	Housekeeping *housekeeping.Report `json:"housekeeping,omitempty"`
}

// MappingResponse is a gift mapping lookup result. Verified is only set when mappings are
// checked against the chain.
type MappingResponse struct {
	*store.GiftMapping
	Source            string `json:"source"`
	Verified          *bool  `json:"verified,omitempty"`
	VerificationError string `json:"verification_error,omitempty"`
}

// AlertsResponse lists the raised alerts.
type AlertsResponse struct {
	Alerts   []status.Alert `json:"alerts"`
	Count    int            `json:"count"`
	Critical int            `json:"critical"`
}

// DebugResponse exposes process internals in development.
type DebugResponse struct {
	GoVersion  string            `json:"go_version"`
	Module     string            `json:"module,omitempty"`
	Goroutines int               `json:"goroutines"`
	Memory     map[string]uint64 `json:"memory"`
	Leading    []string          `json:"leading"`
	Errors     []string          `json:"errors,omitempty"`
}
