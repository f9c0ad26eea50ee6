package rpc

import (
	"math"
	"sync"

	"github.com/goran-ethernal/GiftIndexer/pkg/config"
)

// Batcher adapts the eth_getLogs block window to the provider. The window shrinks
// geometrically after ShrinkAfter consecutive failures and grows after GrowAfter consecutive
// successes, always staying within [Min, Max].
type Batcher struct {
	mu sync.Mutex

	size        uint64
	minSize     uint64
	maxSize     uint64
	growAfter   int
	shrinkAfter int
	factor      float64

	successes int
	failures  int
}

// NewBatcher creates a batcher starting at cfg.Initial.
func NewBatcher(cfg config.BatchConfig) *Batcher {
	b := &Batcher{
		minSize:     cfg.Min,
		maxSize:     cfg.Max,
		growAfter:   cfg.GrowAfter,
		shrinkAfter: cfg.ShrinkAfter,
		factor:      cfg.Factor,
	}
	b.size = b.clamp(cfg.Initial)
	RPCBatchSizeSet(b.size)
	return b
}

// Size returns the current window.
func (b *Batcher) Size() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Success records a successful query and grows the window once enough have accumulated.
func (b *Batcher) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.successes++
	if b.successes < b.growAfter {
		return
	}

	b.successes = 0
	b.set(uint64(math.Ceil(float64(b.size) * b.factor)))
}

// Failure records a failed query and shrinks the window once enough have accumulated.
func (b *Batcher) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	b.failures++
	if b.failures < b.shrinkAfter {
		return
	}

	b.failures = 0
	b.set(uint64(math.Floor(float64(b.size) / b.factor)))
}

// Limit lowers the window to at most n, typically the range a provider suggested.
func (b *Batcher) Limit(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0
	if n < b.size {
		b.set(n)
	}
}

func (b *Batcher) set(n uint64) {
	b.size = b.clamp(n)
	RPCBatchSizeSet(b.size)
}

func (b *Batcher) clamp(n uint64) uint64 {
	if n < b.minSize {
		return b.minSize
	}
	if n > b.maxSize {
		return b.maxSize
	}
	return n
}
