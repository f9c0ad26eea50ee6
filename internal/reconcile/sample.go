package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
)

type eventPosition struct {
	block uint64
	index uint
}

func (p eventPosition) before(o eventPosition) bool {
	if p.block != o.block {
		return p.block < o.block
	}
	return p.index < o.index
}

// sample re-fetches the logs of evenly spaced blocks of the window and compares them with
// the store. Chain events that should be the current mapping of their token but are not are
// re-ingested. Stored mappings whose event no longer exists on chain get their block rebuilt.
func (e *Engine) sample(ctx context.Context, report *Report) error {
	blocks := sampleBlocks(report.From, report.To, e.cfg.SampleSize)
	report.Sampled = len(blocks)

	var missed []types.Log
	for _, n := range blocks {
		logs, err := e.chain.GetLogs(ctx, n, n)
		if err != nil {
			return fmt.Errorf("failed to fetch logs of sampled block %d: %w", n, err)
		}

		stored, err := e.store.MappingsInBlock(ctx, n)
		if err != nil {
			return err
		}

		onChain := make(map[store.EventKey]struct{}, len(logs))
		for _, log := range logs {
			onChain[store.EventKey{TxHash: log.TxHash, LogIndex: log.Index}] = struct{}{}

			miss, err := e.isMiss(ctx, log)
			if err != nil {
				return err
			}
			if miss {
				missed = append(missed, log)
			}
		}

		for _, m := range stored {
			if _, ok := onChain[store.EventKey{TxHash: m.TxHash, LogIndex: m.LogIndex}]; ok {
				continue
			}

			e.log.Warnw("stored mapping not found on chain, rebuilding block",
				"block", n,
				"token_id", m.TokenID,
				"tx_hash", m.TxHash.Hex(),
			)
			if err := e.rebuildBlock(ctx, n, logs); err != nil {
				return err
			}
			report.SampleRepairs++
			break
		}
	}

	if len(missed) == 0 {
		return nil
	}

	report.SampleMisses = len(missed)
	sampleMissAdd(len(missed))
	for _, log := range missed {
		e.log.Warnw("sampled event missing from store",
			"block", log.BlockNumber,
			"tx_hash", log.TxHash.Hex(),
			"log_index", log.Index,
		)
	}

	if _, err := e.pipeline.Process(ctx, missed); err != nil {
		return fmt.Errorf("failed to re-ingest sampled misses: %w", err)
	}

	return nil
}

// isMiss reports whether log should be the current mapping of its token but the store holds
// an older event or none at all. Invalid events are dead-lettered at ingestion and never count.
func (e *Engine) isMiss(ctx context.Context, log types.Log) (bool, error) {
	res := e.codec.Decode(log)
	if !res.Valid() {
		return false, nil
	}

	current, err := e.store.GetMapping(ctx, res.Event.TokenID, nil)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	stored := eventPosition{block: current.BlockNumber, index: current.LogIndex}
	return stored.before(eventPosition{block: log.BlockNumber, index: log.Index}), nil
}

func (e *Engine) rebuildBlock(ctx context.Context, number uint64, logs []types.Log) error {
	if _, err := e.store.DeleteMappingsInRange(ctx, number, number); err != nil {
		return err
	}
	if _, err := e.pipeline.Process(ctx, logs); err != nil {
		return fmt.Errorf("failed to rebuild block %d: %w", number, err)
	}
	return nil
}

// sampleBlocks picks up to n evenly spaced blocks of [from, to], always including both ends.
func sampleBlocks(from, to uint64, n int) []uint64 {
	if n <= 0 || from > to {
		return nil
	}

	span := to - from + 1
	if uint64(n) >= span {
		blocks := make([]uint64, 0, span)
		for b := from; b <= to; b++ {
			blocks = append(blocks, b)
		}
		return blocks
	}
	if n == 1 {
		return []uint64{to}
	}

	blocks := make([]uint64, 0, n)
	step := float64(span-1) / float64(n-1)
	for i := range n {
		b := from + uint64(float64(i)*step+0.5) //nolint:mnd
		if len(blocks) > 0 && blocks[len(blocks)-1] == b {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}
