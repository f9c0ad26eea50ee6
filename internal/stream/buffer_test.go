package stream

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func testLogs(n int, firstBlock uint64) []types.Log {
	logs := make([]types.Log, n)
	for i := range logs {
		logs[i] = types.Log{
			BlockNumber: firstBlock + uint64(i),
			Topics:      []common.Hash{{0x01}},
			Data:        make([]byte, 64),
		}
	}
	return logs
}

func TestBuffer_Evaluate(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	logSize := estimateSize(&testLogs(1, 0)[0])

	tests := []struct {
		name      string
		threshold int
		maxCount  int
		maxBytes  int
		enqueue   int
		at        time.Duration
		want      FlushReason
	}{
		{name: "empty", threshold: 10, maxCount: 100, want: FlushNone},
		{name: "below threshold", threshold: 10, maxCount: 100, enqueue: 9, want: FlushNone},
		{name: "threshold reached", threshold: 10, maxCount: 100, enqueue: 10, want: FlushSize},
		{name: "deadline passed", threshold: 10, maxCount: 100, enqueue: 1, at: time.Second, want: FlushDeadline},
		{name: "count ceiling", threshold: 10, maxCount: 10, enqueue: 12, want: FlushMemory},
		{
			name: "byte ceiling", threshold: 10, maxCount: 100, maxBytes: 3 * logSize,
			enqueue: 3, want: FlushMemory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.threshold, tt.maxCount, tt.maxBytes, time.Second)
			b.Enqueue(t0, testLogs(tt.enqueue, 100)...)
			require.Equal(t, tt.want, b.Evaluate(t0.Add(tt.at)))
		})
	}
}

func TestBuffer_ForcedFlushBeforeTimer(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	b := NewBuffer(50, 100, 0, time.Hour)

	var reason FlushReason
	for i := range 100 {
		reason = b.Enqueue(t0.Add(time.Duration(i)*time.Millisecond), testLogs(1, uint64(i))...)
		if reason == FlushMemory {
			break
		}
	}
	require.Equal(t, FlushMemory, reason)
	require.True(t, t0.Add(time.Second).Before(b.Deadline()))

	taken := b.Take()
	require.Len(t, taken, 100)
	require.Less(t, b.Len(), 100)
	require.Zero(t, b.Bytes())
	require.True(t, b.Deadline().IsZero())
}

func TestBuffer_DeadlineFromOldestLog(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	b := NewBuffer(10, 100, 0, 5*time.Second)

	require.Equal(t, FlushNone, b.Enqueue(t0, testLogs(1, 1)...))
	require.Equal(t, FlushNone, b.Enqueue(t0.Add(4*time.Second), testLogs(1, 2)...))
	require.Equal(t, t0.Add(5*time.Second), b.Deadline())
	require.Equal(t, FlushDeadline, b.Evaluate(t0.Add(5*time.Second)))
}

func TestBuffer_RequeueAtFront(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	b := NewBuffer(2, 10, 0, time.Second)

	require.Equal(t, FlushSize, b.Enqueue(t0, testLogs(2, 10)...))
	failed := b.Take()

	// a newer log arrives while the failed batch is being written
	b.Enqueue(t0, testLogs(1, 20)...)
	b.Requeue(t0, failed)

	require.Equal(t, 3, b.Len())
	require.Equal(t, 3*estimateSize(&failed[0]), b.Bytes())

	// held back until the retry interval passed
	require.Equal(t, FlushNone, b.Evaluate(t0.Add(500*time.Millisecond)))
	require.Equal(t, FlushSize, b.Evaluate(t0.Add(time.Second)))

	logs := b.Take()
	require.Equal(t, []uint64{10, 11, 20}, []uint64{logs[0].BlockNumber, logs[1].BlockNumber, logs[2].BlockNumber})
}

func TestBuffer_EnqueueNothing(t *testing.T) {
	b := NewBuffer(1, 1, 0, time.Second)
	require.Equal(t, FlushNone, b.Enqueue(time.Now()))
	require.Zero(t, b.Len())
}
