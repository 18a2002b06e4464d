package scoring

import (
	"fmt"
	"math"
	"sort"
)

// ShapeConfig parameterizes the percentile-aware reshaping curve
// applied to normalized counter values. Values at or above the top
// percentile of the population receive a flat multiplicative boost;
// values below it follow a sigmoid whose slope and inflection point are
// tunable, so nodes just under the threshold are penalized far less
// than nodes near the bottom.
type ShapeConfig struct {
	// TopPercentile is the population percentile (0, 100) above which
	// the boost applies.
	TopPercentile float64 `mapstructure:"top_percentile"`
	// RewardFactor scales every shaped value. Must be >= 1.
	RewardFactor float64 `mapstructure:"reward_factor"`
	// Steepness controls the slope of the sub-threshold sigmoid.
	Steepness float64 `mapstructure:"steepness"`
	// CenterSensitivity places the sigmoid inflection point as a
	// fraction (0, 1] of the percentile threshold.
	CenterSensitivity float64 `mapstructure:"center_sensitivity"`
	// BoostFactor is the minimum multiplicative advantage of values
	// at or above the threshold. Must be >= 1.
	BoostFactor float64 `mapstructure:"boost_factor"`
}

func DefaultShapeConfig() ShapeConfig {
	return ShapeConfig{
		TopPercentile:     90,
		RewardFactor:      1.5,
		Steepness:         8,
		CenterSensitivity: 0.6,
		BoostFactor:       2.0,
	}
}

func (c ShapeConfig) Validate() error {
	if c.TopPercentile <= 0 || c.TopPercentile >= 100 {
		return fmt.Errorf("top_percentile must be in (0, 100), got %v", c.TopPercentile)
	}
	if c.RewardFactor < 1 {
		return fmt.Errorf("reward_factor must be >= 1, got %v", c.RewardFactor)
	}
	if c.Steepness <= 0 {
		return fmt.Errorf("steepness must be positive, got %v", c.Steepness)
	}
	if c.CenterSensitivity <= 0 || c.CenterSensitivity > 1 {
		return fmt.Errorf("center_sensitivity must be in (0, 1], got %v", c.CenterSensitivity)
	}
	if c.BoostFactor < 1 {
		return fmt.Errorf("boost_factor must be >= 1, got %v", c.BoostFactor)
	}
	return nil
}

// shape maps a normalized value through the curve given the population
// threshold. It is monotonically non-decreasing in x for any valid
// config: both branches increase in x, and at the threshold the boosted
// branch dominates because sigmoid < 1 <= BoostFactor.
func (c ShapeConfig) shape(x, threshold float64) float64 {
	if x >= threshold {
		return x * c.RewardFactor * c.BoostFactor
	}

	center := threshold * c.CenterSensitivity
	return x * c.RewardFactor * sigmoid(c.Steepness*(x-center))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// percentile returns the p-th percentile of values using linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
