package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/GiftIndexer/internal/codec"
	"github.com/goran-ethernal/GiftIndexer/internal/logger"
	"github.com/goran-ethernal/GiftIndexer/internal/store"
	pkgrpc "github.com/goran-ethernal/GiftIndexer/pkg/rpc"
)

const redriveBatch = 500

// Result summarizes one processed batch.
type Result struct {
	Received   int
	Written    int
	Duplicates int
	Stale      int
	Invalid    int
	Rejected   int

	// MaxBlock is the highest block among the received logs, 0 for an empty batch.
	MaxBlock     uint64
	MaxBlockHash common.Hash
}

func (r *Result) add(o Result) {
	r.Received += o.Received
	r.Written += o.Written
	r.Duplicates += o.Duplicates
	r.Stale += o.Stale
	r.Invalid += o.Invalid
	r.Rejected += o.Rejected
	if o.MaxBlock > r.MaxBlock {
		r.MaxBlock = o.MaxBlock
		r.MaxBlockHash = o.MaxBlockHash
	}
}

// Pipeline is the single path raw logs take into the store: stage as pending, decode,
// resolve block times, upsert, dead-letter what cannot be indexed, unstage.
// Backfill, stream, reconcile and startup recovery all go through it.
type Pipeline struct {
	store *store.Store
	chain pkgrpc.ChainClient
	codec *codec.Codec
	log   *logger.Logger
}

// NewPipeline creates a pipeline writing to s and resolving block times through chain.
func NewPipeline(s *store.Store, chain pkgrpc.ChainClient, c *codec.Codec, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store: s,
		chain: chain,
		codec: c,
		log:   log,
	}
}

// Process ingests logs. When an error is returned nothing was unstaged, so the batch can be
// retried as a whole or re-driven after a restart.
func (p *Pipeline) Process(ctx context.Context, logs []types.Log) (Result, error) {
	var result Result
	if len(logs) == 0 {
		return result, nil
	}

	ordered := slices.Clone(logs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].Index < ordered[j].Index
	})

	result.Received = len(ordered)
	last := ordered[len(ordered)-1]
	result.MaxBlock, result.MaxBlockHash = last.BlockNumber, last.BlockHash

	pending := make([]*store.PendingEvent, 0, len(ordered))
	for _, l := range ordered {
		pe, err := store.NewPendingEvent(l)
		if err != nil {
			return Result{}, err
		}
		pending = append(pending, pe)
	}
	if err := p.store.InsertPending(ctx, pending); err != nil {
		return Result{}, fmt.Errorf("failed to stage events: %w", err)
	}

	keys := make([]store.EventKey, 0, len(ordered))
	events := make([]*codec.GiftEvent, 0, len(ordered))
	for i, l := range ordered {
		keys = append(keys, pending[i].Key())

		res := p.codec.Decode(l)
		if !res.Valid() {
			result.Invalid++
			p.deadLetter(ctx, pending[i], "decode: "+res.Invalid.Error())
			continue
		}
		events = append(events, res.Event)
	}

	if len(events) > 0 {
		times, err := p.blockTimes(ctx, events)
		if err != nil {
			return Result{}, err
		}

		mappings := make([]*store.GiftMapping, 0, len(events))
		for _, ev := range events {
			mappings = append(mappings, toMapping(ev, times[ev.BlockNumber]))
		}

		upsert, err := p.store.UpsertMappings(ctx, mappings)
		if err != nil {
			return Result{}, fmt.Errorf("failed to persist mappings: %w", err)
		}

		result.Written = upsert.Written
		result.Duplicates = upsert.Duplicates
		result.Stale = upsert.Stale
		result.Rejected = len(upsert.Rejected)

		for _, r := range upsert.Rejected {
			entry := &store.DLQEntry{
				TxHash:      r.Mapping.TxHash,
				LogIndex:    r.Mapping.LogIndex,
				BlockNumber: r.Mapping.BlockNumber,
				Reason:      "persist: " + r.Err.Error(),
			}
			if payload, err := json.Marshal(r.Mapping); err == nil {
				entry.Payload = string(payload)
			}
			p.store.InsertDLQ(ctx, entry)
		}
	}

	if err := p.store.RemovePending(ctx, keys...); err != nil {
		// the rows are already reflected in gift_mappings; re-driving them later is idempotent
		p.log.Warnf("failed to unstage %d events: %v", len(keys), err)
	}

	eventsAdd(result)
	p.log.Debugf("processed %d events up to block %d: written=%d duplicates=%d stale=%d invalid=%d rejected=%d",
		result.Received, result.MaxBlock, result.Written, result.Duplicates, result.Stale, result.Invalid, result.Rejected)

	return result, nil
}

// Redrive re-processes every staged event, oldest block first. Payloads that no longer
// parse are dead-lettered and unstaged.
func (p *Pipeline) Redrive(ctx context.Context) (Result, error) {
	var total Result

	staged, err := p.store.ListPending(ctx, 0)
	if err != nil {
		return total, err
	}
	if len(staged) == 0 {
		return total, nil
	}

	p.log.Infof("re-driving %d staged events", len(staged))

	logs := make([]types.Log, 0, len(staged))
	var broken []store.EventKey
	for _, pe := range staged {
		log, res, ok := codec.ParseJSON([]byte(pe.LogData))
		if !ok {
			total.Invalid++
			p.deadLetter(ctx, pe, "redrive: "+res.Invalid.Error())
			broken = append(broken, pe.Key())
			continue
		}
		logs = append(logs, log)
	}

	if err := p.store.RemovePending(ctx, broken...); err != nil {
		return total, err
	}

	for chunk := range slices.Chunk(logs, redriveBatch) {
		res, err := p.Process(ctx, chunk)
		if err != nil {
			return total, fmt.Errorf("failed to re-drive pending events: %w", err)
		}
		total.add(res)
	}

	return total, nil
}

func (p *Pipeline) deadLetter(ctx context.Context, pe *store.PendingEvent, reason string) {
	p.store.InsertDLQ(ctx, &store.DLQEntry{
		TxHash:      pe.TxHash,
		LogIndex:    pe.LogIndex,
		BlockNumber: pe.BlockNumber,
		Reason:      reason,
		Payload:     pe.LogData,
	})
}

// blockTimes resolves the timestamps of the blocks referenced by events in one round trip.
func (p *Pipeline) blockTimes(ctx context.Context, events []*codec.GiftEvent) (map[uint64]int64, error) {
	numbers := make([]uint64, 0, len(events))
	seen := make(map[uint64]struct{}, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.BlockNumber]; ok {
			continue
		}
		seen[ev.BlockNumber] = struct{}{}
		numbers = append(numbers, ev.BlockNumber)
	}

	blocks, err := p.chain.GetBlocks(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve block times: %w", err)
	}

	times := make(map[uint64]int64, len(blocks))
	for _, b := range blocks {
		if b == nil {
			continue
		}
		times[b.Number] = int64(b.Timestamp) //nolint:gosec
	}
	return times, nil
}

func toMapping(ev *codec.GiftEvent, blockTime int64) *store.GiftMapping {
	creator, nft, gate, registeredBy := ev.Creator, ev.NFTContract, ev.Gate, ev.RegisteredBy

	return &store.GiftMapping{
		ContractAddr: ev.Contract,
		TokenID:      ev.TokenID,
		GiftID:       ev.GiftID,
		TxHash:       ev.TxHash,
		LogIndex:     ev.LogIndex,
		BlockNumber:  ev.BlockNumber,
		BlockHash:    ev.BlockHash,
		BlockTime:    blockTime,
		Creator:      &creator,
		NFTContract:  &nft,
		ExpiresAt:    ev.ExpiresAt,
		Gate:         &gate,
		GiftMessage:  ev.GiftMessage,
		RegisteredBy: &registeredBy,
	}
}
