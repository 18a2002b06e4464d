package metrics

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var log = logging.Logger("metrics")

const meterName = "github.com/swarmscore/swarmscore"

var (
	// TelemetryPolls counts per-node telemetry polls by outcome
	TelemetryPolls metric.Int64Counter

	// RestartResets counts telemetry history purges caused by counter resets
	RestartResets metric.Int64Counter

	// WeightSubmissions counts weight vector submission attempts by outcome
	WeightSubmissions metric.Int64Counter

	// ScoredNodes records how many nodes had usable deltas in the last cycle
	ScoredNodes metric.Int64Gauge

	// TelemetryRows tracks the number of retained telemetry rows
	TelemetryRows metric.Int64UpDownCounter
)

func init() {
	meter := otel.Meter(meterName)

	TelemetryPolls = counter(meter, "swarmscore_telemetry_polls_total",
		"Total number of per-node telemetry polls by outcome")
	RestartResets = counter(meter, "swarmscore_restart_resets_total",
		"Total number of telemetry history purges caused by worker restarts")
	WeightSubmissions = counter(meter, "swarmscore_weight_submissions_total",
		"Total number of weight vector submission attempts by outcome")

	g, err := meter.Int64Gauge("swarmscore_scored_nodes",
		metric.WithDescription("Number of nodes with usable deltas in the last scoring cycle"))
	if err != nil {
		panic(fmt.Errorf("creating ScoredNodes gauge: %w", err))
	}
	ScoredNodes = g

	udc, err := meter.Int64UpDownCounter("swarmscore_telemetry_rows",
		metric.WithDescription("Number of retained telemetry rows"))
	if err != nil {
		panic(fmt.Errorf("creating TelemetryRows counter: %w", err))
	}
	TelemetryRows = udc
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		panic(fmt.Errorf("creating %s counter: %w", name, err))
	}
	return c
}

// Init installs the OpenTelemetry meter provider backed by the
// Prometheus exporter. Instruments created at package init delegate to
// it once installed.
func Init() error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	log.Info("OpenTelemetry metrics initialized with Prometheus exporter")
	return nil
}
