package scoring

import (
	"fmt"
	"math"
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("scoring")

const (
	// normFloor keeps any node with data this cycle strictly above
	// zero after normalization, so active nodes always outrank absent
	// ones.
	normFloor = 0.01

	// uniformNorm replaces normalized values when the whole population
	// reports the same raw delta, instead of dividing by zero. A
	// uniformly idle population then scores uniformly, not undefined.
	uniformNorm = 0.1

	weightSumTolerance = 1e-6
)

// CounterWeight assigns a combination weight to one scoring counter.
type CounterWeight struct {
	Name   string  `mapstructure:"name"`
	Weight float64 `mapstructure:"weight"`
}

// Combiner folds the shaped per-counter values of one node into a
// composite score. Pluggable so the combination rule can be swapped
// without touching normalization or shaping.
type Combiner interface {
	Name() string
	Combine(counters []CounterWeight, shaped map[string]float64) float64
}

// WeightedSum is the default combiner: the weighted arithmetic mean of
// the shaped counter values. A node excelling at a single counter
// scores below a node with the same total spread across all counters.
type WeightedSum struct{}

func (WeightedSum) Name() string { return "weighted_sum" }

func (WeightedSum) Combine(counters []CounterWeight, shaped map[string]float64) float64 {
	var sum float64
	for _, cw := range counters {
		sum += cw.Weight * shaped[cw.Name]
	}
	return sum
}

var _ Combiner = WeightedSum{}

// Config is the validated scoring configuration.
type Config struct {
	Counters []CounterWeight
	Shape    ShapeConfig
	Combiner Combiner
}

func DefaultConfig() Config {
	return Config{
		Counters: []CounterWeight{
			{Name: "returned_posts", Weight: 0.5},
			{Name: "returned_profiles", Weight: 0.3},
			{Name: "web_success", Weight: 0.2},
		},
		Shape:    DefaultShapeConfig(),
		Combiner: WeightedSum{},
	}
}

func (c Config) Validate() error {
	if len(c.Counters) == 0 {
		return fmt.Errorf("at least one scoring counter is required")
	}

	var total float64
	for _, cw := range c.Counters {
		if cw.Name == "" {
			return fmt.Errorf("scoring counter with empty name")
		}
		if cw.Weight <= 0 {
			return fmt.Errorf("counter %s: weight must be positive, got %v", cw.Name, cw.Weight)
		}
		total += cw.Weight
	}
	if math.Abs(total-1) > weightSumTolerance {
		return fmt.Errorf("counter weights must sum to 1, got %v", total)
	}

	if c.Combiner == nil {
		return fmt.Errorf("combiner is required")
	}

	return c.Shape.Validate()
}

// Engine converts a population of telemetry deltas into a bounded,
// sum-to-one score vector. Compute is pure; the only mutable state is
// the hot-reloadable config.
type Engine struct {
	mu  sync.RWMutex
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// SetConfig swaps the scoring configuration. Invalid configs are
// rejected and the previous one stays in effect.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid scoring config: %w", err)
	}

	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()

	log.Infof("Scoring config updated: %d counters, combiner %s", len(cfg.Counters), cfg.Combiner.Name())
	return nil
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Compute scores the population. deltas holds the per-counter deltas of
// every identity with usable data this cycle; identities in the
// population but absent from deltas score 0. The result maps every
// population identity to a value in [0, 1]; values sum to 1 unless no
// node has any activity, in which case all scores are 0.
func (e *Engine) Compute(population []string, deltas map[string]map[string]int64) map[string]float64 {
	cfg := e.Config()

	scores := make(map[string]float64, len(population))
	for _, identity := range population {
		scores[identity] = 0
	}

	present := make([]string, 0, len(deltas))
	for _, identity := range population {
		if _, ok := deltas[identity]; ok {
			present = append(present, identity)
		}
	}
	if len(present) == 0 {
		return scores
	}

	// shaped[identity][counter]
	shaped := make(map[string]map[string]float64, len(present))
	for _, identity := range present {
		shaped[identity] = make(map[string]float64, len(cfg.Counters))
	}

	for _, cw := range cfg.Counters {
		normalized := normalize(present, deltas, cw.Name)

		values := make([]float64, 0, len(present))
		for _, v := range normalized {
			values = append(values, v)
		}
		threshold := percentile(values, cfg.Shape.TopPercentile)

		for identity, v := range normalized {
			shaped[identity][cw.Name] = cfg.Shape.shape(v, threshold)
		}
	}

	var total float64
	for _, identity := range present {
		composite := cfg.Combiner.Combine(cfg.Counters, shaped[identity])
		scores[identity] = composite
		total += composite
	}

	if total == 0 {
		return scores
	}
	for identity, s := range scores {
		scores[identity] = s / total
	}

	return scores
}

// normalize min-max normalizes one counter across the nodes with data
// this cycle. Missing counters read as 0 for the node, degrading its
// score rather than excluding it.
func normalize(present []string, deltas map[string]map[string]int64, counter string) map[string]float64 {
	raw := make(map[string]float64, len(present))

	min, max := math.Inf(1), math.Inf(-1)
	for _, identity := range present {
		v := float64(deltas[identity][counter])
		raw[identity] = v
		min = math.Min(min, v)
		max = math.Max(max, v)
	}

	normalized := make(map[string]float64, len(present))
	if max == min {
		for _, identity := range present {
			normalized[identity] = uniformNorm
		}
		return normalized
	}

	for _, identity := range present {
		n := (raw[identity] - min) / (max - min)
		if n < normFloor {
			n = normFloor
		}
		normalized[identity] = n
	}
	return normalized
}
