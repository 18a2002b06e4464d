package weights

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmscore/swarmscore/internal/ledger"
	"github.com/swarmscore/swarmscore/internal/metrics"
)

var log = logging.Logger("weights")

// RetryPolicy bounds submission retries. It is a plain value so tests
// can exercise the publisher with a fake ledger and a zero delay.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Second}
}

// SubmissionStatus reports the publisher's bookkeeping.
type SubmissionStatus struct {
	LastSuccess         time.Time `json:"last_success,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Publisher submits weight vectors to the ledger. Submissions are
// serialized because the ledger allows a single outstanding transaction
// per account, and a minimum interval since the last successful
// submission is enforced on this side.
type Publisher struct {
	mu          sync.Mutex
	ledger      ledger.Ledger
	minInterval time.Duration
	retry       RetryPolicy

	lastSuccess time.Time
	failures    int
}

func NewPublisher(l ledger.Ledger, minInterval time.Duration, retry RetryPolicy) *Publisher {
	return &Publisher{ledger: l, minInterval: minInterval, retry: retry}
}

// MaybePublish submits the vector if the minimum interval since the
// last successful submission has elapsed. Failed attempts are retried
// up to the policy's maximum with a delay in between; exhausting the
// retries logs the failure and defers to the next cycle. A failed
// submission is never fatal. Returns whether a submission succeeded.
func (p *Publisher) MaybePublish(ctx context.Context, entries []ledger.WeightEntry, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.lastSuccess.IsZero() && now.Sub(p.lastSuccess) < p.minInterval {
		log.Debugf("Skipping submission: %v since last success, minimum interval %v",
			now.Sub(p.lastSuccess), p.minInterval)
		return false
	}

	var lastErr error
	for attempt := 1; attempt <= p.retry.MaxAttempts; attempt++ {
		err := p.ledger.SubmitWeights(ctx, entries)
		if err == nil {
			p.lastSuccess = now
			p.failures = 0

			attributes := attribute.NewSet(attribute.String("outcome", "success"))
			metrics.WeightSubmissions.Add(ctx, 1, metric.WithAttributeSet(attributes))

			log.Infof("Submitted weight vector with %d entries", len(entries))
			return true
		}

		lastErr = err
		p.failures++

		attributes := attribute.NewSet(attribute.String("outcome", "failure"))
		metrics.WeightSubmissions.Add(ctx, 1, metric.WithAttributeSet(attributes))

		log.Errorf("Weight submission attempt %d/%d failed: %v", attempt, p.retry.MaxAttempts, err)

		if attempt == p.retry.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			log.Info("Weight submission aborted: context cancelled")
			return false
		case <-time.After(p.retry.Delay):
		}
	}

	log.Errorf("Giving up on weight submission after %d attempts: %v", p.retry.MaxAttempts, lastErr)
	return false
}

func (p *Publisher) Status() SubmissionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return SubmissionStatus{
		LastSuccess:         p.lastSuccess,
		ConsecutiveFailures: p.failures,
	}
}
