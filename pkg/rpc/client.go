package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrRangeTooLarge matches every *RangeTooLargeError with errors.Is.
var ErrRangeTooLarge = errors.New("block range too large")

// ErrSubscriptionUnavailable is returned by Subscribe when no push endpoint can be used.
var ErrSubscriptionUnavailable = errors.New("log subscription unavailable")

// RangeTooLargeError is returned by GetLogs when the requested window is wider than the
// current adaptive batch size or the provider refused it. Limit is the window the caller
// should retry with.
type RangeTooLargeError struct {
	From  uint64
	To    uint64
	Limit uint64
}

func (e *RangeTooLargeError) Error() string {
	return fmt.Sprintf("block range [%d, %d] exceeds batch size %d", e.From, e.To, e.Limit)
}

// Is makes the error match ErrRangeTooLarge.
func (e *RangeTooLargeError) Is(target error) bool {
	return target == ErrRangeTooLarge
}

// BlockInfo is the subset of a block header the indexer relies on.
type BlockInfo struct {
	Number     uint64      `json:"number"`
	Hash       common.Hash `json:"hash"`
	ParentHash common.Hash `json:"parent_hash"`
	Timestamp  uint64      `json:"timestamp"`
}

// Health is the reachability of the node endpoints.
type Health struct {
	HTTP        bool   `json:"http"`
	WS          bool   `json:"ws"`
	LatestBlock uint64 `json:"latest_block"`
	Error       string `json:"error,omitempty"`
}

// ChainClient is the indexer's view of a single EVM chain, bound to one contract and event.
// This abstraction allows for easier testing and alternative implementations.
type ChainClient interface {
	// ChainID returns the chain id reported by the node.
	ChainID(ctx context.Context) (uint64, error)

	// CurrentHeight returns the latest block number.
	CurrentHeight(ctx context.Context) (uint64, error)

	// SafeHead returns the latest block number minus the confirmation depth.
	SafeHead(ctx context.Context) (uint64, error)

	// GetLogs returns the contract's event logs in [from, to]. It fails with a
	// *RangeTooLargeError when the window exceeds BatchSize.
	GetLogs(ctx context.Context, from, to uint64) ([]types.Log, error)

	// GetBlock returns the header fields of a block.
	GetBlock(ctx context.Context, number uint64) (*BlockInfo, error)

	// GetBlocks returns the header fields of several blocks in one round trip, in input order.
	GetBlocks(ctx context.Context, numbers []uint64) ([]*BlockInfo, error)

	// Subscribe starts pushing new logs as they are mined. Delivery is best-effort.
	Subscribe(ctx context.Context) (*Subscription, error)

	// Poll returns the logs in [from, min(safeHead, from+BatchSize-1)] and the upper bound
	// that was queried. When from is above the safe head nothing is queried and from-1 is returned.
	Poll(ctx context.Context, from uint64) ([]types.Log, uint64, error)

	// HealthCheck probes the configured endpoints.
	HealthCheck(ctx context.Context) Health

	// BatchSize returns the current adaptive window for log queries.
	BatchSize() uint64

	// Close releases all connections.
	Close()
}
