package rpc

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
)

// Subscription is a bounded channel of pushed log batches. The producer delivers batches and
// reports a terminal error at most once; the consumer reads Logs and Err until Unsubscribe.
type Subscription struct {
	logs chan []types.Log
	err  chan error
	done chan struct{}

	stopOnce sync.Once
	failOnce sync.Once
	stop     func()
}

// NewSubscription creates a subscription buffering up to capacity batches. stop is called
// once when the consumer unsubscribes.
func NewSubscription(capacity int, stop func()) *Subscription {
	return &Subscription{
		logs: make(chan []types.Log, capacity),
		err:  make(chan error, 1),
		done: make(chan struct{}),
		stop: stop,
	}
}

// Logs returns the channel of pushed batches.
func (s *Subscription) Logs() <-chan []types.Log {
	return s.logs
}

// Err returns a channel that receives the error that ended the subscription.
func (s *Subscription) Err() <-chan error {
	return s.err
}

// Done is closed after Unsubscribe.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.stop()
		}
	})
}

// Deliver pushes a batch, blocking while the buffer is full. It returns false if the
// subscription ended or ctx was cancelled before the batch was accepted.
func (s *Subscription) Deliver(ctx context.Context, logs []types.Log) bool {
	select {
	case s.logs <- logs:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Fail reports the terminal error of the subscription. Only the first error is kept.
func (s *Subscription) Fail(err error) {
	s.failOnce.Do(func() {
		s.err <- err
	})
}
