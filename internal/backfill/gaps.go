package backfill

import (
	"context"
	"fmt"

	"github.com/goran-ethernal/GiftIndexer/internal/store"
)

// Gap is an inclusive block range without any stored event.
type Gap struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Len returns the number of blocks in the gap.
func (g Gap) Len() uint64 {
	return g.To - g.From + 1
}

// Gaps returns the ranges of at least minLength blocks inside [from, to] that hold no stored
// event. The window is clamped to what backfill has already covered, so a gap is either a quiet
// stretch of the chain or a range that was missed.
func (e *Engine) Gaps(ctx context.Context, from, to, minLength uint64) ([]Gap, error) {
	checkpoint, err := e.store.GetCheckpoint(ctx, store.StageBackfill)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	from = max(from, e.store.Floor()+1)
	to = min(to, checkpoint)
	if from > to {
		return nil, nil
	}

	blocks, err := e.store.EventBlocks(ctx, from, to)
	if err != nil {
		return nil, err
	}

	return findGaps(from, to, blocks, max(minLength, 1)), nil
}

// findGaps scans sorted event blocks for empty ranges inside [from, to].
func findGaps(from, to uint64, blocks []uint64, minLength uint64) []Gap {
	var gaps []Gap

	next := from
	for _, b := range blocks {
		if b < next {
			continue
		}
		if b > next {
			if g := (Gap{From: next, To: b - 1}); g.Len() >= minLength {
				gaps = append(gaps, g)
			}
		}
		next = b + 1
	}

	if next <= to {
		if g := (Gap{From: next, To: to}); g.Len() >= minLength {
			gaps = append(gaps, g)
		}
	}

	return gaps
}
