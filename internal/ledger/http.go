package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("ledger")

var _ Ledger = (*HTTPLedger)(nil)

// HTTPLedger talks to a ledger gateway over JSON/HTTP.
type HTTPLedger struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPLedger(baseURL string, timeout time.Duration) *HTTPLedger {
	return &HTTPLedger{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (l *HTTPLedger) Membership(ctx context.Context) ([]Member, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/membership", nil)
	if err != nil {
		return nil, fmt.Errorf("creating membership request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching membership snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected membership status code: %d", resp.StatusCode)
	}

	var members []Member
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		return nil, fmt.Errorf("decoding membership snapshot: %w", err)
	}

	log.Debugf("Fetched membership snapshot with %d members", len(members))

	return members, nil
}

func (l *HTTPLedger) SubmitWeights(ctx context.Context, entries []WeightEntry) error {
	body, err := json.Marshal(struct {
		Weights []WeightEntry `json:"weights"`
	}{Weights: entries})
	if err != nil {
		return fmt.Errorf("serializing weight vector: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/weights", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating weights request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submitting weight vector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected weights status code: %d", resp.StatusCode)
	}

	return nil
}
