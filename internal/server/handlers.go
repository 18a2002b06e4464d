package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swarmscore/swarmscore/internal/build"
	"github.com/swarmscore/swarmscore/internal/registry"
	"github.com/swarmscore/swarmscore/internal/weights"
)

func (s *Server) getRootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "⚖️ swarmscore %s\n", build.Version)
		fmt.Fprint(w, "- https://github.com/swarmscore/swarmscore\n")
	}
}

func (s *Server) getHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	}
}

type registerRequest struct {
	Identity string `json:"identity"`
	Address  string `json:"address"`
	WorkerID string `json:"worker_id"`
}

func (s *Server) registerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid registration payload", http.StatusBadRequest)
			return
		}

		if req.Identity == "" || req.Address == "" {
			http.Error(w, "identity and address are required", http.StatusBadRequest)
			return
		}

		if err := s.registry.Register(req.Identity, req.Address, req.WorkerID); err != nil {
			if errors.Is(err, registry.ErrUnknownIdentity) {
				log.Warnf("Rejected registration from unknown identity %s", req.Identity)
				http.Error(w, "identity not in current membership", http.StatusForbidden)
				return
			}

			log.Errorf("Registration for %s failed: %v", req.Identity, err)
			http.Error(w, "registration failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]string{"status": "registered"})
	}
}

func (s *Server) getRoutesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.registry.Routes())
	}
}

func (s *Server) getWorkersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.registry.Workers())
	}
}

type scoresResponse struct {
	ComputedAt time.Time            `json:"computed_at,omitempty"`
	Scores     []weights.ScoreEntry `json:"scores"`
}

func (s *Server) getScoresHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scores, computedAt := s.manager.Scores()

		if q := r.URL.Query().Get("q"); q != "" {
			filtered := scores[:0]
			for _, entry := range scores {
				if strings.Contains(entry.Identity, q) {
					filtered = append(filtered, entry)
				}
			}
			scores = filtered
		}

		switch r.URL.Query().Get("sort") {
		case "identity":
			sort.Slice(scores, func(i, j int) bool { return scores[i].Identity < scores[j].Identity })
		case "score":
			sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
		}

		writeJSON(w, scoresResponse{ComputedAt: computedAt, Scores: scores})
	}
}

func (s *Server) getEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		writeJSON(w, s.eventLog.Recent(limit))
	}
}

func (s *Server) getMetricsHandler() http.Handler {
	promHandler := promhttp.Handler()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != s.cfg.metricsEndpointToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		promHandler.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encoding response: %v", err)
	}
}
