package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeConfigValidate(t *testing.T) {
	t.Run("default config is valid", func(t *testing.T) {
		require.NoError(t, DefaultShapeConfig().Validate())
	})

	t.Run("rejects out-of-range parameters", func(t *testing.T) {
		for name, mutate := range map[string]func(*ShapeConfig){
			"zero percentile":           func(c *ShapeConfig) { c.TopPercentile = 0 },
			"percentile of 100":         func(c *ShapeConfig) { c.TopPercentile = 100 },
			"reward factor below one":   func(c *ShapeConfig) { c.RewardFactor = 0.5 },
			"zero steepness":            func(c *ShapeConfig) { c.Steepness = 0 },
			"zero center sensitivity":   func(c *ShapeConfig) { c.CenterSensitivity = 0 },
			"center sensitivity above1": func(c *ShapeConfig) { c.CenterSensitivity = 1.5 },
			"boost factor below one":    func(c *ShapeConfig) { c.BoostFactor = 0.9 },
		} {
			t.Run(name, func(t *testing.T) {
				cfg := DefaultShapeConfig()
				mutate(&cfg)
				require.Error(t, cfg.Validate())
			})
		}
	})
}

func TestShapeMonotonic(t *testing.T) {
	cfg := DefaultShapeConfig()
	threshold := 0.8

	prev := cfg.shape(0, threshold)
	for x := 0.01; x <= 1.0; x += 0.01 {
		cur := cfg.shape(x, threshold)
		require.GreaterOrEqualf(t, cur, prev, "shape decreased between %v and %v", x-0.01, x)
		prev = cur
	}
}

func TestShapeBoostAtThreshold(t *testing.T) {
	cfg := DefaultShapeConfig()
	threshold := 0.7

	below := cfg.shape(threshold-1e-9, threshold)
	at := cfg.shape(threshold, threshold)

	// crossing the threshold must help, never hurt
	assert.Greater(t, at, below)
	assert.InDelta(t, threshold*cfg.RewardFactor*cfg.BoostFactor, at, 1e-12)
}

func TestPercentile(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Zero(t, percentile(nil, 90))
	})

	t.Run("single value", func(t *testing.T) {
		assert.Equal(t, 0.42, percentile([]float64{0.42}, 90))
	})

	t.Run("interpolates between ranks", func(t *testing.T) {
		values := []float64{0, 1, 2, 3, 4}
		assert.InDelta(t, 2.0, percentile(values, 50), 1e-12)
		assert.InDelta(t, 3.6, percentile(values, 90), 1e-12)
	})

	t.Run("input order does not matter", func(t *testing.T) {
		shuffled := []float64{3, 0, 4, 1, 2}
		assert.InDelta(t, 3.6, percentile(shuffled, 90), 1e-12)
		// the caller's slice is untouched
		assert.Equal(t, []float64{3, 0, 4, 1, 2}, shuffled)
	})
}
