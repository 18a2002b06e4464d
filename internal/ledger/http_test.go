package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembership(t *testing.T) {
	t.Run("decodes the snapshot", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			require.Equal(t, "/membership", r.URL.Path)
			fmt.Fprint(w, `[
				{"uid": 1, "identity": "node1", "stake": 100},
				{"uid": 2, "identity": "node2", "stake": 50, "address": "10.0.0.2:8000"}
			]`)
		}))
		t.Cleanup(srv.Close)

		l := NewHTTPLedger(srv.URL, 5*time.Second)
		members, err := l.Membership(context.Background())
		require.NoError(t, err)

		require.Len(t, members, 2)
		assert.Equal(t, "node1", members[0].Identity)
		assert.Equal(t, 100.0, members[0].Stake)
		assert.Equal(t, "10.0.0.2:8000", members[1].Address)
	})

	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unavailable", http.StatusBadGateway)
		}))
		t.Cleanup(srv.Close)

		l := NewHTTPLedger(srv.URL, 5*time.Second)
		_, err := l.Membership(context.Background())
		require.ErrorContains(t, err, "status code")
	})
}

func TestSubmitWeights(t *testing.T) {
	t.Run("posts the vector", func(t *testing.T) {
		var received struct {
			Weights []WeightEntry `json:"weights"`
		}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/weights", r.URL.Path)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusAccepted)
		}))
		t.Cleanup(srv.Close)

		l := NewHTTPLedger(srv.URL, 5*time.Second)
		entries := []WeightEntry{{UID: 1, Weight: 0.6}, {UID: 2, Weight: 0.4}}
		require.NoError(t, l.SubmitWeights(context.Background(), entries))

		assert.Equal(t, entries, received.Weights)
	})

	t.Run("rejected submission", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid transaction", http.StatusUnprocessableEntity)
		}))
		t.Cleanup(srv.Close)

		l := NewHTTPLedger(srv.URL, 5*time.Second)
		err := l.SubmitWeights(context.Background(), []WeightEntry{{UID: 1, Weight: 1}})
		require.ErrorContains(t, err, "status code")
	})
}
