package telemetrydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

var _ Store = (*DocumentStore)(nil)

// DocumentStore is the legacy layout: all counters in a single JSONB
// column. It is kept as a read-compatibility shim so historical rows can
// be migrated into the flat layout; new deployments write flat columns.
type DocumentStore struct {
	conn      *sql.DB
	tableName string
}

func NewDocumentStore(conn *sql.DB, tableName string) *DocumentStore {
	return &DocumentStore{conn, tableName}
}

func (s *DocumentStore) Setup(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id BIGSERIAL PRIMARY KEY,
		identity TEXT NOT NULL,
		uid INTEGER NOT NULL,
		worker_id TEXT NOT NULL DEFAULT '',
		boot_time BIGINT NOT NULL DEFAULT 0,
		ts TIMESTAMPTZ NOT NULL,
		counters JSONB NOT NULL DEFAULT '{}'::jsonb
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_identity_ts ON %[1]s(identity, ts);
	`, s.tableName)

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing document telemetry schema: %w", err)
	}
	return nil
}

func (s *DocumentStore) Insert(ctx context.Context, row Row) error {
	doc, err := json.Marshal(row.Counters)
	if err != nil {
		return fmt.Errorf("serializing counters document: %w", err)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (identity, uid, worker_id, boot_time, ts, counters) VALUES ($1, $2, $3, $4, $5, $6)",
		s.tableName)

	if _, err := s.conn.ExecContext(ctx, query,
		row.Identity, row.UID, row.WorkerID, row.BootTime, row.Timestamp.UTC(), doc); err != nil {
		return fmt.Errorf("storing telemetry document row: %w", err)
	}
	return nil
}

func (s *DocumentStore) ListByIdentity(ctx context.Context, identity string) ([]Row, error) {
	query := fmt.Sprintf(
		"SELECT identity, uid, worker_id, boot_time, ts, counters FROM %s WHERE identity = $1 ORDER BY ts ASC",
		s.tableName)

	rows, err := s.conn.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry document rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var doc []byte

		if err := rows.Scan(&r.Identity, &r.UID, &r.WorkerID, &r.BootTime, &r.Timestamp, &doc); err != nil {
			return nil, fmt.Errorf("scanning telemetry document row: %w", err)
		}

		r.Counters = make(map[string]int64)
		if err := json.Unmarshal(doc, &r.Counters); err != nil {
			return nil, fmt.Errorf("decoding counters document: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry document rows: %w", err)
	}

	return out, nil
}

func (s *DocumentStore) Identities(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT identity FROM %s", s.tableName)

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		out = append(out, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}

	return out, nil
}

func (s *DocumentStore) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE identity = $1", s.tableName), identity)
	if err != nil {
		return 0, fmt.Errorf("deleting telemetry document rows: %w", err)
	}
	return res.RowsAffected()
}

func (s *DocumentStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE ts < $1", s.tableName), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting old telemetry document rows: %w", err)
	}
	return res.RowsAffected()
}

func (s *DocumentStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.conn.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting telemetry document rows: %w", err)
	}
	return count, nil
}
