package weights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmscore/swarmscore/internal/ledger"
)

type fakeLedger struct {
	membership    func(ctx context.Context) ([]ledger.Member, error)
	submitWeights func(ctx context.Context, entries []ledger.WeightEntry) error
}

func (f *fakeLedger) Membership(ctx context.Context) ([]ledger.Member, error) {
	return f.membership(ctx)
}

func (f *fakeLedger) SubmitWeights(ctx context.Context, entries []ledger.WeightEntry) error {
	return f.submitWeights(ctx, entries)
}

var _ ledger.Ledger = (*fakeLedger)(nil)

func testEntries() []ledger.WeightEntry {
	return []ledger.WeightEntry{
		{UID: 1, Weight: 0.7},
		{UID: 2, Weight: 0.3},
	}
}

func TestMaybePublish(t *testing.T) {
	ctx := context.Background()

	t.Run("submits and records success", func(t *testing.T) {
		var submitted [][]ledger.WeightEntry
		l := &fakeLedger{
			submitWeights: func(ctx context.Context, entries []ledger.WeightEntry) error {
				submitted = append(submitted, entries)
				return nil
			},
		}

		p := NewPublisher(l, time.Hour, RetryPolicy{MaxAttempts: 3, Delay: 0})
		now := time.Now()

		assert.True(t, p.MaybePublish(ctx, testEntries(), now))
		require.Len(t, submitted, 1)
		assert.Equal(t, testEntries(), submitted[0])

		status := p.Status()
		assert.Equal(t, now, status.LastSuccess)
		assert.Zero(t, status.ConsecutiveFailures)
	})

	t.Run("skips inside the minimum interval", func(t *testing.T) {
		var calls int
		l := &fakeLedger{
			submitWeights: func(ctx context.Context, entries []ledger.WeightEntry) error {
				calls++
				return nil
			},
		}

		p := NewPublisher(l, 20*time.Minute, RetryPolicy{MaxAttempts: 3, Delay: 0})
		now := time.Now()

		assert.True(t, p.MaybePublish(ctx, testEntries(), now))
		assert.False(t, p.MaybePublish(ctx, testEntries(), now.Add(10*time.Minute)))
		assert.Equal(t, 1, calls)

		// interval elapsed, next submission goes through
		assert.True(t, p.MaybePublish(ctx, testEntries(), now.Add(21*time.Minute)))
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after exhausting retries", func(t *testing.T) {
		var calls int
		l := &fakeLedger{
			submitWeights: func(ctx context.Context, entries []ledger.WeightEntry) error {
				calls++
				return errors.New("ledger unavailable")
			},
		}

		p := NewPublisher(l, time.Hour, RetryPolicy{MaxAttempts: 3, Delay: 0})

		assert.False(t, p.MaybePublish(ctx, testEntries(), time.Now()))
		assert.Equal(t, 3, calls)

		status := p.Status()
		assert.True(t, status.LastSuccess.IsZero())
		assert.Equal(t, 3, status.ConsecutiveFailures)
	})

	t.Run("retry succeeds mid-flight", func(t *testing.T) {
		var calls int
		l := &fakeLedger{
			submitWeights: func(ctx context.Context, entries []ledger.WeightEntry) error {
				calls++
				if calls < 3 {
					return errors.New("ledger unavailable")
				}
				return nil
			},
		}

		p := NewPublisher(l, time.Hour, RetryPolicy{MaxAttempts: 3, Delay: 0})

		assert.True(t, p.MaybePublish(ctx, testEntries(), time.Now()))
		assert.Equal(t, 3, calls)
		assert.Zero(t, p.Status().ConsecutiveFailures)
	})

	t.Run("aborts on context cancellation between attempts", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)

		var calls int
		l := &fakeLedger{
			submitWeights: func(ctx context.Context, entries []ledger.WeightEntry) error {
				calls++
				cancel()
				return errors.New("ledger unavailable")
			},
		}

		p := NewPublisher(l, time.Hour, RetryPolicy{MaxAttempts: 3, Delay: time.Hour})

		assert.False(t, p.MaybePublish(cancelCtx, testEntries(), time.Now()))
		assert.Equal(t, 1, calls)
	})
}
