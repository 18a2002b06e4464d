package registry

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

func TestSync(t *testing.T) {
	t.Run("refreshes the registry", func(t *testing.T) {
		reg := New(time.Hour)
		l := &fakeLedger{
			membership: func(ctx context.Context) ([]ledger.Member, error) {
				return testSnapshot(), nil
			},
		}

		syncer := NewSyncer(reg, l, time.Minute, nil)
		require.NoError(t, syncer.Sync(context.Background()))
		assert.Len(t, reg.Workers(), 3)
	})

	t.Run("propagates ledger errors", func(t *testing.T) {
		reg := New(time.Hour)
		l := &fakeLedger{
			membership: func(ctx context.Context) ([]ledger.Member, error) {
				return nil, errors.New("gateway timeout")
			},
		}

		syncer := NewSyncer(reg, l, time.Minute, nil)
		require.ErrorContains(t, syncer.Sync(context.Background()), "gateway timeout")
	})

	t.Run("prunes telemetry of removed members", func(t *testing.T) {
		reg := New(10 * time.Millisecond)

		snapshots := [][]ledger.Member{
			testSnapshot(),
			testSnapshot()[:2],
			testSnapshot()[:2],
		}
		var call int
		l := &fakeLedger{
			membership: func(ctx context.Context) ([]ledger.Member, error) {
				s := snapshots[call]
				call++
				return s, nil
			},
		}

		var pruned []string
		prune := func(ctx context.Context, identity string) error {
			pruned = append(pruned, identity)
			return nil
		}

		syncer := NewSyncer(reg, l, time.Minute, prune)
		ctx := context.Background()

		require.NoError(t, syncer.Sync(ctx))
		require.NoError(t, syncer.Sync(ctx))
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, syncer.Sync(ctx))

		assert.Equal(t, []string{"node2"}, pruned)
	})
}
