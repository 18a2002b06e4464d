package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Report is one reading of a node's cumulative performance counters.
type Report struct {
	WorkerID string
	BootTime int64
	Counters map[string]int64
}

// Client polls the telemetry endpoint workers expose. Every call is
// bounded by the client timeout.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

type reportPayload struct {
	BootTime int64                      `json:"boot_time"`
	WorkerID string                     `json:"worker_id"`
	Stats    map[string]json.RawMessage `json:"stats"`
}

// Fetch requests the current counters from a node. Two stats layouts
// are accepted: a flat counter mapping, and the legacy layout nesting a
// counter mapping under each worker id, which is aggregated by summing.
// Missing or malformed counters read as 0; they degrade the node's
// score, they do not exclude the node.
func (c *Client) Fetch(ctx context.Context, address string) (Report, error) {
	url := address
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	url = strings.TrimRight(url, "/") + "/telemetry"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Report{}, fmt.Errorf("creating telemetry request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("fetching telemetry from %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("unexpected telemetry status code from %s: %d", address, resp.StatusCode)
	}

	var payload reportPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Report{}, fmt.Errorf("decoding telemetry from %s: %w", address, err)
	}

	report := Report{
		WorkerID: payload.WorkerID,
		BootTime: payload.BootTime,
		Counters: make(map[string]int64, len(payload.Stats)),
	}

	for name, raw := range payload.Stats {
		var value int64
		if err := json.Unmarshal(raw, &value); err == nil {
			report.Counters[name] += value
			continue
		}

		// legacy layout: stats keyed by worker id
		var perWorker map[string]int64
		if err := json.Unmarshal(raw, &perWorker); err != nil {
			log.Warnf("Malformed telemetry counter %q from %s, treating as 0", name, address)
			continue
		}
		for counter, v := range perWorker {
			report.Counters[counter] += v
		}
	}

	return report, nil
}
