package telemetrydb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore is the canonical layout: one named integer column per
// counter.
type PostgresStore struct {
	conn      *sql.DB
	tableName string
}

func NewPostgresStore(conn *sql.DB, tableName string) *PostgresStore {
	return &PostgresStore{conn, tableName}
}

// Open connects to Postgres and tunes the connection pool.
func Open(dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return conn, nil
}

func (s *PostgresStore) Setup(ctx context.Context) error {
	cols := make([]string, 0, len(CounterNames))
	for _, name := range CounterNames {
		cols = append(cols, fmt.Sprintf("%s BIGINT NOT NULL DEFAULT 0", name))
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id BIGSERIAL PRIMARY KEY,
		identity TEXT NOT NULL,
		uid INTEGER NOT NULL,
		worker_id TEXT NOT NULL DEFAULT '',
		boot_time BIGINT NOT NULL DEFAULT 0,
		ts TIMESTAMPTZ NOT NULL,
		%[2]s
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_identity_ts ON %[1]s(identity, ts);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_ts ON %[1]s(ts);
	`, s.tableName, strings.Join(cols, ",\n\t\t"))

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing telemetry schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, row Row) error {
	cols := []string{"identity", "uid", "worker_id", "boot_time", "ts"}
	args := []any{row.Identity, row.UID, row.WorkerID, row.BootTime, row.Timestamp.UTC()}

	for _, name := range CounterNames {
		cols = append(cols, name)
		args = append(args, row.Counters[name])
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.tableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("storing telemetry row: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByIdentity(ctx context.Context, identity string) ([]Row, error) {
	query := fmt.Sprintf(
		"SELECT identity, uid, worker_id, boot_time, ts, %s FROM %s WHERE identity = $1 ORDER BY ts ASC",
		strings.Join(CounterNames, ", "), s.tableName)

	rows, err := s.conn.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		counters := make([]int64, len(CounterNames))

		dest := []any{&r.Identity, &r.UID, &r.WorkerID, &r.BootTime, &r.Timestamp}
		for i := range counters {
			dest = append(dest, &counters[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning telemetry row: %w", err)
		}

		r.Counters = make(map[string]int64, len(CounterNames))
		for i, name := range CounterNames {
			r.Counters[name] = counters[i]
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telemetry rows: %w", err)
	}

	return out, nil
}

func (s *PostgresStore) Identities(ctx context.Context) ([]string, error) {
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

func (s *PostgresStore) DeleteByIdentity(ctx context.Context, identity string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE identity = $1", s.tableName)

	res, err := s.conn.ExecContext(ctx, query, identity)
	if err != nil {
		return 0, fmt.Errorf("deleting telemetry rows: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE ts < $1", s.tableName)

	res, err := s.conn.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting old telemetry rows: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)

	var count int64
	if err := s.conn.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting telemetry rows: %w", err)
	}
	return count, nil
}
