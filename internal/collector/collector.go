package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmscore/swarmscore/internal/db/telemetrydb"
	"github.com/swarmscore/swarmscore/internal/events"
	"github.com/swarmscore/swarmscore/internal/metrics"
	"github.com/swarmscore/swarmscore/internal/registry"
	"github.com/swarmscore/swarmscore/internal/telemetry"
)

var log = logging.Logger("collector")

// Collector periodically polls every routable node for telemetry.
// Polls run with bounded concurrency; a failing node is skipped for the
// cycle and never blocks the rest of the population.
type Collector struct {
	registry    *registry.Registry
	store       *telemetry.Store
	client      *telemetry.Client
	interval    time.Duration
	concurrency int
	eventLog    *events.Log
	stopCh      chan struct{}
}

func New(
	reg *registry.Registry,
	store *telemetry.Store,
	client *telemetry.Client,
	interval time.Duration,
	concurrency int,
	eventLog *events.Log,
) *Collector {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Collector{
		registry:    reg,
		store:       store,
		client:      client,
		interval:    interval,
		concurrency: concurrency,
		eventLog:    eventLog,
		stopCh:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Infof("Collector started with interval: %v, concurrency: %d", c.interval, c.concurrency)

	for {
		select {
		case <-ctx.Done():
			log.Info("Collector stopping due to context cancellation")
			return
		case <-c.stopCh:
			log.Info("Collector stopping")
			return
		case <-ticker.C:
			if err := c.Collect(ctx); err != nil {
				log.Errorf("Collection error: %v", err)
			}
		}
	}
}

func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect performs one polling pass over the route table.
func (c *Collector) Collect(ctx context.Context) error {
	routes := c.registry.Routes()
	if len(routes) == 0 {
		log.Info("No routable nodes to poll")
		return nil
	}

	log.Debugf("Polling %d nodes", len(routes))

	var succeeded, failed atomic.Int64
	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup

	for _, rt := range routes {
		wg.Add(1)
		sem <- struct{}{}

		go func(rt registry.Route) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := c.poll(ctx, rt); err != nil {
				failed.Add(1)
				log.Warnf("Polling %s at %s failed: %v", rt.Identity, rt.Address, err)
				if c.eventLog != nil {
					c.eventLog.Append(rt.Identity, events.SeverityWarn, fmt.Sprintf("telemetry poll failed: %v", err))
				}
				return
			}
			succeeded.Add(1)
		}(rt)
	}

	wg.Wait()

	log.Infof("Collection cycle complete: %d succeeded, %d failed of %d nodes",
		succeeded.Load(), failed.Load(), len(routes))

	return nil
}

func (c *Collector) poll(ctx context.Context, rt registry.Route) error {
	report, err := c.client.Fetch(ctx, rt.Address)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attributes := attribute.NewSet(
		attribute.String("identity", rt.Identity),
		attribute.String("outcome", outcome),
	)
	metrics.TelemetryPolls.Add(ctx, 1, metric.WithAttributeSet(attributes))

	if err != nil {
		return err
	}

	workerID := report.WorkerID
	if workerID == "" {
		workerID = rt.WorkerID
	}

	return c.store.Append(ctx, telemetrydb.Row{
		Identity:  rt.Identity,
		UID:       rt.UID,
		WorkerID:  workerID,
		BootTime:  report.BootTime,
		Timestamp: time.Now().UTC(),
		Counters:  report.Counters,
	})
}
