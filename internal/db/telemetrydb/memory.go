package telemetrydb

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps telemetry rows in process memory. It is the
// default backend when no Postgres DSN is configured and the backend
// used by tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string][]Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]Row)}
}

func copyRow(r Row) Row {
	counters := make(map[string]int64, len(r.Counters))
	for k, v := range r.Counters {
		counters[k] = v
	}
	r.Counters = counters
	return r
}

func (s *MemoryStore) Insert(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := append(s.rows[row.Identity], copyRow(row))
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	s.rows[row.Identity] = rows
	return nil
}

func (s *MemoryStore) ListByIdentity(_ context.Context, identity string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[identity]
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, copyRow(r))
	}
	return out, nil
}

func (s *MemoryStore) Identities(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.rows))
	for identity := range s.rows {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) DeleteByIdentity(_ context.Context, identity string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := int64(len(s.rows[identity]))
	delete(s.rows, identity)
	return deleted, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for identity, rows := range s.rows {
		kept := rows[:0]
		for _, r := range rows {
			if r.Timestamp.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.rows, identity)
			continue
		}
		s.rows[identity] = kept
	}
	return deleted, nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, rows := range s.rows {
		count += int64(len(rows))
	}
	return count, nil
}
