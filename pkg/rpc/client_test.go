package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestRangeTooLargeError(t *testing.T) {
	err := fmt.Errorf("backfill batch: %w", &RangeTooLargeError{From: 10, To: 2009, Limit: 500})

	require.ErrorIs(t, err, ErrRangeTooLarge)

	var rangeErr *RangeTooLargeError
	require.ErrorAs(t, err, &rangeErr)
	require.Equal(t, uint64(500), rangeErr.Limit)
	require.NotErrorIs(t, errors.New("other"), ErrRangeTooLarge)
}

func TestSubscription(t *testing.T) {
	stopped := 0
	sub := NewSubscription(1, func() { stopped++ })
	ctx := context.Background()

	require.True(t, sub.Deliver(ctx, []types.Log{{Index: 1}}))
	batch := <-sub.Logs()
	require.Len(t, batch, 1)

	sub.Fail(errors.New("connection lost"))
	sub.Fail(errors.New("ignored"))
	require.EqualError(t, <-sub.Err(), "connection lost")

	// buffer full and consumer gone
	require.True(t, sub.Deliver(ctx, nil))
	sub.Unsubscribe()
	sub.Unsubscribe()
	require.False(t, sub.Deliver(ctx, nil))
	require.Equal(t, 1, stopped)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	other := NewSubscription(0, nil)
	require.False(t, other.Deliver(cancelled, nil))
}
