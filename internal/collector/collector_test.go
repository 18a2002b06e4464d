package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmscore/swarmscore/internal/db/telemetrydb"
	"github.com/swarmscore/swarmscore/internal/events"
	"github.com/swarmscore/swarmscore/internal/ledger"
	"github.com/swarmscore/swarmscore/internal/registry"
	"github.com/swarmscore/swarmscore/internal/telemetry"
)

func telemetryNode(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	healthy := func(scrapes int64) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"worker_id": "w", "stats": {"scrapes": %d}}`, scrapes)
		}
	}
	failing := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}

	t.Run("polls every routable node", func(t *testing.T) {
		reg := registry.New(time.Hour)
		reg.SyncMembership([]ledger.Member{
			{UID: 1, Identity: "node1"},
			{UID: 2, Identity: "node2"},
		})
		require.NoError(t, reg.Register("node1", telemetryNode(t, healthy(100)), "w1"))
		require.NoError(t, reg.Register("node2", telemetryNode(t, healthy(200)), "w2"))

		db := telemetrydb.NewMemoryStore()
		store := telemetry.NewStore(db, time.Hour)
		c := New(reg, store, telemetry.NewClient(time.Second), time.Minute, 4, nil)

		require.NoError(t, c.Collect(ctx))

		count, err := db.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		rows, err := db.ListByIdentity(ctx, "node1")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(100), rows[0].Counters["scrapes"])
		assert.Equal(t, 1, rows[0].UID)
	})

	t.Run("a failing node does not block the rest", func(t *testing.T) {
		eventLog := events.NewLog(8)
		reg := registry.New(time.Hour)
		reg.SyncMembership([]ledger.Member{
			{UID: 1, Identity: "good"},
			{UID: 2, Identity: "bad"},
		})
		require.NoError(t, reg.Register("good", telemetryNode(t, healthy(10)), "w1"))
		require.NoError(t, reg.Register("bad", telemetryNode(t, failing), "w2"))

		db := telemetrydb.NewMemoryStore()
		store := telemetry.NewStore(db, time.Hour)
		c := New(reg, store, telemetry.NewClient(time.Second), time.Minute, 4, eventLog)

		require.NoError(t, c.Collect(ctx))

		identities, err := db.Identities(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"good"}, identities)

		recent := eventLog.Recent(1)
		require.Len(t, recent, 1)
		assert.Equal(t, "bad", recent[0].Identity)
		assert.Equal(t, events.SeverityWarn, recent[0].Severity)
	})

	t.Run("no routable nodes", func(t *testing.T) {
		reg := registry.New(time.Hour)
		store := telemetry.NewStore(telemetrydb.NewMemoryStore(), time.Hour)
		c := New(reg, store, telemetry.NewClient(time.Second), time.Minute, 4, nil)

		require.NoError(t, c.Collect(ctx))
	})

	t.Run("keeps the route worker id when the report omits one", func(t *testing.T) {
		reg := registry.New(time.Hour)
		reg.SyncMembership([]ledger.Member{{UID: 1, Identity: "node1"}})

		addr := telemetryNode(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"stats": {"scrapes": 5}}`)
		})
		require.NoError(t, reg.Register("node1", addr, "registered-worker"))

		db := telemetrydb.NewMemoryStore()
		store := telemetry.NewStore(db, time.Hour)
		c := New(reg, store, telemetry.NewClient(time.Second), time.Minute, 4, nil)

		require.NoError(t, c.Collect(ctx))

		rows, err := db.ListByIdentity(ctx, "node1")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "registered-worker", rows[0].WorkerID)
	})
}
