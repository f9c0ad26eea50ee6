package ingest

import (
	"context"
	"errors"
	"fmt"

	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
)

const maxRangeRefits = 5

// WindowFunc is called after each window of a range walk is persisted.
type WindowFunc func(ctx context.Context, from, to uint64, res Result) error

// Range fetches and ingests [from, to] in consecutive windows. A window is at most maxBatch
// blocks wide (0 means no cap) and never wider than the chain's current batch size, which is
// re-read before every window. after, when set, runs once per persisted window; an error
// from it stops the walk.
func (p *Pipeline) Range(ctx context.Context, from, to, maxBatch uint64, after WindowFunc) (Result, error) {
	var (
		total  Result
		refits int
	)

	for from <= to {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		size := p.chain.BatchSize()
		if maxBatch > 0 && maxBatch < size {
			size = maxBatch
		}
		size = max(size, 1)
		end := min(to, from+size-1)

		logs, err := p.chain.GetLogs(ctx, from, end)
		if err != nil {
			var tooLarge *pkgrpc.RangeTooLargeError
			if errors.As(err, &tooLarge) && refits < maxRangeRefits {
				refits++
				if tooLarge.Limit > 0 && tooLarge.Limit < size {
					maxBatch = tooLarge.Limit
				}
				p.log.Debugf("window [%d, %d] too large, retrying with %d blocks", from, end, maxBatch)
				continue
			}
			return total, fmt.Errorf("failed to fetch logs [%d, %d]: %w", from, end, err)
		}
		refits = 0

		res, err := p.Process(ctx, logs)
		if err != nil {
			return total, fmt.Errorf("failed to ingest window [%d, %d]: %w", from, end, err)
		}
		total.add(res)

		if after != nil {
			if err := after(ctx, from, end, res); err != nil {
				return total, err
			}
		}

		from = end + 1
	}

	return total, nil
}
