package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/swarmscore/swarmscore/internal/ledger"
)

// PruneFunc drops retained telemetry for an identity removed from the
// membership.
type PruneFunc func(ctx context.Context, identity string) error

// Syncer periodically refreshes the registry from the ledger's
// membership snapshot.
type Syncer struct {
	registry *Registry
	ledger   ledger.Ledger
	interval time.Duration
	prune    PruneFunc
	stopCh   chan struct{}
}

func NewSyncer(registry *Registry, l ledger.Ledger, interval time.Duration, prune PruneFunc) *Syncer {
	return &Syncer{
		registry: registry,
		ledger:   l,
		interval: interval,
		prune:    prune,
		stopCh:   make(chan struct{}),
	}
}

func (s *Syncer) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Infof("Membership syncer started with interval: %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			log.Info("Membership syncer stopping due to context cancellation")
			return
		case <-s.stopCh:
			log.Info("Membership syncer stopping")
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				log.Errorf("Membership sync error: %v", err)
			}
		}
	}
}

func (s *Syncer) Stop() {
	close(s.stopCh)
}

// Sync performs one membership refresh.
func (s *Syncer) Sync(ctx context.Context) error {
	snapshot, err := s.ledger.Membership(ctx)
	if err != nil {
		return fmt.Errorf("fetching membership snapshot: %w", err)
	}

	removed := s.registry.SyncMembership(snapshot)
	for _, identity := range removed {
		if s.prune == nil {
			continue
		}
		if err := s.prune(ctx, identity); err != nil {
			log.Errorf("Pruning telemetry for removed member %s: %v", identity, err)
		}
	}

	log.Debugf("Membership sync complete: %d members, %d removed", len(snapshot), len(removed))

	return nil
}
