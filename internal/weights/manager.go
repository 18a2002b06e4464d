package weights

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmscore/swarmscore/internal/events"
	"github.com/swarmscore/swarmscore/internal/ledger"
	"github.com/swarmscore/swarmscore/internal/metrics"
	"github.com/swarmscore/swarmscore/internal/registry"
	"github.com/swarmscore/swarmscore/internal/scoring"
	"github.com/swarmscore/swarmscore/internal/telemetry"
)

// ScoreEntry is one element of the last computed score vector, exposed
// to the dashboard.
type ScoreEntry struct {
	Identity string  `json:"identity"`
	UID      int     `json:"uid"`
	Score    float64 `json:"score"`
}

// Manager runs the scoring cycle: harvest deltas from the telemetry
// store, score them, and hand the vector to the publisher.
type Manager struct {
	registry  *registry.Registry
	store     *telemetry.Store
	engine    *scoring.Engine
	publisher *Publisher
	interval  time.Duration
	eventLog  *events.Log
	stopCh    chan struct{}

	mu         sync.RWMutex
	lastScores []ScoreEntry
	lastCycle  time.Time
}

func NewManager(
	reg *registry.Registry,
	store *telemetry.Store,
	engine *scoring.Engine,
	publisher *Publisher,
	interval time.Duration,
	eventLog *events.Log,
) *Manager {
	return &Manager{
		registry:  reg,
		store:     store,
		engine:    engine,
		publisher: publisher,
		interval:  interval,
		eventLog:  eventLog,
		stopCh:    make(chan struct{}),
	}
}

func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Infof("Weights manager started with interval: %v", m.interval)

	for {
		select {
		case <-ctx.Done():
			log.Info("Weights manager stopping due to context cancellation")
			return
		case <-m.stopCh:
			log.Info("Weights manager stopping")
			return
		case <-ticker.C:
			if err := m.Cycle(ctx); err != nil {
				log.Errorf("Scoring cycle error: %v", err)
			}
		}
	}
}

func (m *Manager) Stop() {
	close(m.stopCh)
}

// Cycle performs one scoring+publishing pass. Per-node problems are
// isolated: a node without usable data is simply excluded from this
// cycle's population.
func (m *Manager) Cycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	workers := m.registry.Workers()

	population := make([]string, 0, len(workers))
	uids := make(map[string]int, len(workers))
	for _, w := range workers {
		population = append(population, w.Identity)
		uids[w.Identity] = w.UID
	}

	deltas := make(map[string]map[string]int64)
	for _, identity := range population {
		d, err := m.store.Delta(ctx, identity)
		if err != nil {
			if errors.Is(err, telemetry.ErrNoData) {
				continue
			}
			log.Errorf("Delta for %s failed: %v", identity, err)
			continue
		}
		deltas[identity] = d.Counters
	}

	scores := m.engine.Compute(population, deltas)
	metrics.ScoredNodes.Record(ctx, int64(len(deltas)))

	entries := make([]ledger.WeightEntry, 0, len(scores))
	snapshot := make([]ScoreEntry, 0, len(scores))
	var total float64
	for identity, score := range scores {
		entries = append(entries, ledger.WeightEntry{UID: uids[identity], Weight: score})
		snapshot = append(snapshot, ScoreEntry{Identity: identity, UID: uids[identity], Score: score})
		total += score
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UID < entries[j].UID })
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].UID < snapshot[j].UID })

	m.mu.Lock()
	m.lastScores = snapshot
	m.lastCycle = time.Now().UTC()
	m.mu.Unlock()

	log.Infof("Cycle %s: scored %d/%d nodes", cycleID, len(deltas), len(population))

	if total == 0 {
		log.Infof("Cycle %s: no node activity, skipping submission", cycleID)
		return nil
	}

	if m.publisher.MaybePublish(ctx, entries, time.Now()) {
		if m.eventLog != nil {
			m.eventLog.Append("", events.SeverityInfo,
				fmt.Sprintf("cycle %s: weight vector submitted (%d entries)", cycleID, len(entries)))
		}
	}

	return nil
}

// Scores returns the most recently computed score vector and when it
// was computed.
func (m *Manager) Scores() ([]ScoreEntry, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ScoreEntry, len(m.lastScores))
	copy(out, m.lastScores)
	return out, m.lastCycle
}
