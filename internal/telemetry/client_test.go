package telemetry

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
)

func telemetryServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/telemetry", r.URL.Path)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFlatLayout(t *testing.T) {
	srv := telemetryServer(t, http.StatusOK, `{
		"boot_time": 1700000000,
		"worker_id": "worker-7",
		"stats": {"scrapes": 120, "returned_posts": 45}
	}`)

	client := NewClient(5 * time.Second)
	report, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "worker-7", report.WorkerID)
	assert.Equal(t, int64(1700000000), report.BootTime)
	assert.Equal(t, int64(120), report.Counters["scrapes"])
	assert.Equal(t, int64(45), report.Counters["returned_posts"])
}

func TestFetchNestedLayout(t *testing.T) {
	srv := telemetryServer(t, http.StatusOK, `{
		"boot_time": 1700000000,
		"worker_id": "worker-7",
		"stats": {
			"worker-7a": {"scrapes": 100, "returned_posts": 30},
			"worker-7b": {"scrapes": 20, "returned_posts": 15}
		}
	}`)

	client := NewClient(5 * time.Second)
	report, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	// per-worker counters are summed into a single node-level reading
	assert.Equal(t, int64(120), report.Counters["scrapes"])
	assert.Equal(t, int64(45), report.Counters["returned_posts"])
}

func TestFetchMalformedCounter(t *testing.T) {
	srv := telemetryServer(t, http.StatusOK, `{
		"worker_id": "worker-7",
		"stats": {"scrapes": "not-a-number", "returned_posts": 45}
	}`)

	client := NewClient(5 * time.Second)
	report, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	_, ok := report.Counters["scrapes"]
	assert.False(t, ok, "malformed counter should be dropped")
	assert.Equal(t, int64(45), report.Counters["returned_posts"])
}

func TestFetchErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		srv := telemetryServer(t, http.StatusServiceUnavailable, "busy")

		client := NewClient(5 * time.Second)
		_, err := client.Fetch(context.Background(), srv.URL)
		require.ErrorContains(t, err, "status code")
	})

	t.Run("invalid payload", func(t *testing.T) {
		srv := telemetryServer(t, http.StatusOK, "not json")

		client := NewClient(5 * time.Second)
		_, err := client.Fetch(context.Background(), srv.URL)
		require.ErrorContains(t, err, "decoding")
	})

	t.Run("unreachable node", func(t *testing.T) {
		client := NewClient(500 * time.Millisecond)
		_, err := client.Fetch(context.Background(), "127.0.0.1:1")
		require.Error(t, err)
	})
}

func TestFetchAddressWithoutScheme(t *testing.T) {
	srv := telemetryServer(t, http.StatusOK, `{"worker_id": "w", "stats": {}}`)

	// bare host:port, the form self-reports usually carry
	addr := strings.TrimPrefix(srv.URL, "http://")

	client := NewClient(5 * time.Second)
	report, err := client.Fetch(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "w", report.WorkerID)
}
