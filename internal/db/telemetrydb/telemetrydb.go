package telemetrydb

import (
	"context"
	"time"
)

// Row is one persisted telemetry snapshot for a node: a timestamped
// reading of its cumulative performance counters. Rows are immutable
// once stored.
type Row struct {
	Identity  string
	UID       int
	WorkerID  string
	BootTime  int64
	Timestamp time.Time
	Counters  map[string]int64
}

// CounterNames is the fixed set of counters the flat-column layout
// persists. Counters outside this set survive only in the document
// layout.
var CounterNames = []string{
	"scrapes",
	"returned_posts",
	"returned_profiles",
	"auth_errors",
	"errors",
	"ratelimit_errors",
	"web_success",
	"web_errors",
	"transcription_success",
	"transcription_errors",
}

// Store persists telemetry rows. Two relational layouts implement it:
// flat integer columns (canonical) and a single JSONB document column
// (read-compatibility shim); MemoryStore backs tests and runs without
// Postgres configured.
type Store interface {
	Insert(ctx context.Context, row Row) error
	// ListByIdentity returns all retained rows for an identity in
	// ascending timestamp order.
	ListByIdentity(ctx context.Context, identity string) ([]Row, error)
	Identities(ctx context.Context) ([]string, error)
	DeleteByIdentity(ctx context.Context, identity string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}
