package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmscore/swarmscore/internal/db/telemetrydb"
	"github.com/swarmscore/swarmscore/internal/events"
	"github.com/swarmscore/swarmscore/internal/metrics"
)

var log = logging.Logger("telemetry")

// ErrNoData means an identity has no usable telemetry this cycle:
// fewer than two retained snapshots, or its history was just purged by
// restart detection. Callers exclude such identities from the scoring
// population; this is distinct from a zero delta.
var ErrNoData = errors.New("no telemetry data")

// Delta is the per-counter change between the oldest and newest
// retained snapshot of a node. Every value is >= 0.
type Delta struct {
	Identity string
	UID      int
	WorkerID string
	Period   time.Duration
	Counters map[string]int64
}

type storeConfig struct {
	eventLog *events.Log
}

type StoreOption func(*storeConfig)

func WithEventLog(l *events.Log) StoreOption {
	return func(c *storeConfig) {
		c.eventLog = l
	}
}

// Store owns the retained telemetry history. It is the only object
// shared between the polling loop (writer) and the scoring loop
// (reader); a single lock over the backing store is enough at the write
// rates involved.
//
// Retention is time-bound: rows older than the window are evicted on
// every append.
type Store struct {
	mu       sync.RWMutex
	db       telemetrydb.Store
	window   time.Duration
	eventLog *events.Log
}

func NewStore(db telemetrydb.Store, window time.Duration, opts ...StoreOption) *Store {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Store{db: db, window: window, eventLog: cfg.eventLog}
}

// Append stores a snapshot and evicts rows that fell out of the
// retention window.
func (s *Store) Append(ctx context.Context, row telemetrydb.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}

	if err := s.db.Insert(ctx, row); err != nil {
		return fmt.Errorf("appending snapshot for %s: %w", row.Identity, err)
	}
	metrics.TelemetryRows.Add(ctx, 1)

	evicted, err := s.db.DeleteOlderThan(ctx, time.Now().UTC().Add(-s.window))
	if err != nil {
		return fmt.Errorf("evicting expired snapshots: %w", err)
	}
	if evicted > 0 {
		metrics.TelemetryRows.Add(ctx, -evicted)
		log.Debugf("Evicted %d telemetry rows outside the %s window", evicted, s.window)
	}

	return nil
}

// Delta computes the per-counter difference between the earliest and
// latest retained snapshot for an identity. If any counter decreased,
// the worker process restarted and its counters reset: the identity's
// entire history is purged and ErrNoData is returned so it restarts
// accumulation from empty instead of being scored on garbage.
func (s *Store) Delta(ctx context.Context, identity string) (Delta, error) {
	// write lock: restart detection may purge rows
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.ListByIdentity(ctx, identity)
	if err != nil {
		return Delta{}, fmt.Errorf("loading snapshots for %s: %w", identity, err)
	}
	if len(rows) < 2 {
		return Delta{}, ErrNoData
	}

	first, last := rows[0], rows[len(rows)-1]

	counters := make(map[string]int64, len(last.Counters))
	for name := range first.Counters {
		counters[name] = 0
	}
	for name := range last.Counters {
		counters[name] = 0
	}

	for name := range counters {
		diff := last.Counters[name] - first.Counters[name]
		if diff < 0 {
			return Delta{}, s.reset(ctx, identity, name)
		}
		counters[name] = diff
	}

	return Delta{
		Identity: identity,
		UID:      last.UID,
		WorkerID: last.WorkerID,
		Period:   last.Timestamp.Sub(first.Timestamp),
		Counters: counters,
	}, nil
}

func (s *Store) reset(ctx context.Context, identity, counter string) error {
	deleted, err := s.db.DeleteByIdentity(ctx, identity)
	if err != nil {
		return fmt.Errorf("purging history for %s: %w", identity, err)
	}
	metrics.TelemetryRows.Add(ctx, -deleted)

	attributes := attribute.NewSet(attribute.String("identity", identity))
	metrics.RestartResets.Add(ctx, 1, metric.WithAttributeSet(attributes))

	// a restart is expected behaviour, not an error
	log.Infof("Worker restart detected for %s (counter %q decreased), purged %d rows", identity, counter, deleted)
	if s.eventLog != nil {
		s.eventLog.Append(identity, events.SeverityInfo,
			fmt.Sprintf("worker restart detected (counter %q decreased), telemetry history reset", counter))
	}

	return ErrNoData
}

// Prune drops all retained snapshots for an identity. Used when the
// identity leaves the membership snapshot.
func (s *Store) Prune(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted, err := s.db.DeleteByIdentity(ctx, identity)
	if err != nil {
		return fmt.Errorf("pruning telemetry for %s: %w", identity, err)
	}
	if deleted > 0 {
		metrics.TelemetryRows.Add(ctx, -deleted)
		log.Infof("Pruned %d telemetry rows for %s", deleted, identity)
	}
	return nil
}

// Identities returns every identity with at least one retained snapshot.
func (s *Store) Identities(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Identities(ctx)
}
