package stream

import (
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FlushReason tells why the buffer must be flushed.
type FlushReason string

const (
	FlushNone     FlushReason = "none"
	FlushSize     FlushReason = "size"
	FlushDeadline FlushReason = "deadline"
	FlushMemory   FlushReason = "memory"
	FlushStop     FlushReason = "stop"
)

// per-log bookkeeping on top of topics and data
const logOverheadBytes = 256

// Buffer holds logs waiting to be persisted. It is a pure state machine: Enqueue and Evaluate
// take the current time and report whether a flush is due, so flush rules are testable without
// timers. A Buffer is not safe for concurrent use.
type Buffer struct {
	threshold int
	maxCount  int
	maxBytes  int
	interval  time.Duration

	logs      []types.Log
	bytes     int
	deadline  time.Time
	holdUntil time.Time
}

// NewBuffer creates a buffer that asks for a flush once threshold logs are queued, once the
// oldest queued log waited interval, or immediately when maxCount logs or maxBytes are reached.
func NewBuffer(threshold, maxCount, maxBytes int, interval time.Duration) *Buffer {
	return &Buffer{
		threshold: max(threshold, 1),
		maxCount:  max(maxCount, threshold, 1),
		maxBytes:  maxBytes,
		interval:  interval,
	}
}

// Enqueue appends logs and evaluates the flush conditions.
func (b *Buffer) Enqueue(now time.Time, logs ...types.Log) FlushReason {
	if len(logs) == 0 {
		return b.Evaluate(now)
	}
	if len(b.logs) == 0 {
		b.deadline = now.Add(b.interval)
	}

	b.logs = append(b.logs, logs...)
	for i := range logs {
		b.bytes += estimateSize(&logs[i])
	}

	return b.Evaluate(now)
}

// Evaluate reports whether the buffer must be flushed at now.
func (b *Buffer) Evaluate(now time.Time) FlushReason {
	switch {
	case len(b.logs) == 0, now.Before(b.holdUntil):
		return FlushNone
	case len(b.logs) >= b.maxCount, b.maxBytes > 0 && b.bytes >= b.maxBytes:
		return FlushMemory
	case len(b.logs) >= b.threshold:
		return FlushSize
	case !now.Before(b.deadline):
		return FlushDeadline
	default:
		return FlushNone
	}
}

// Take removes and returns every queued log.
func (b *Buffer) Take() []types.Log {
	logs := b.logs
	b.logs = nil
	b.bytes = 0
	b.deadline = time.Time{}
	b.holdUntil = time.Time{}
	return logs
}

// Requeue puts logs of a failed flush back in front of the queue. No flush is requested again
// before one interval has passed.
func (b *Buffer) Requeue(now time.Time, logs []types.Log) {
	if len(logs) == 0 {
		return
	}

	b.logs = append(slices.Clone(logs), b.logs...)
	for i := range logs {
		b.bytes += estimateSize(&logs[i])
	}
	b.deadline = now.Add(b.interval)
	b.holdUntil = b.deadline
}

// Len returns the number of queued logs.
func (b *Buffer) Len() int {
	return len(b.logs)
}

// Bytes returns the estimated size of the queued logs.
func (b *Buffer) Bytes() int {
	return b.bytes
}

// Deadline returns the time the oldest queued log must be flushed by, zero when empty.
func (b *Buffer) Deadline() time.Time {
	return b.deadline
}

func estimateSize(l *types.Log) int {
	return logOverheadBytes + len(l.Topics)*common.HashLength + len(l.Data)
}
