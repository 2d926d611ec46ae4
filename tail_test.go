package capbench

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatistics_TailRatio(t *testing.T) {
	steady := CalculateStatistics([]time.Duration{
		100 * time.Microsecond,
		200 * time.Microsecond,
		300 * time.Microsecond,
		400 * time.Microsecond,
		500 * time.Microsecond,
	})
	assert.InDelta(t, 5.0/3.0, steady.TailRatio(), 1e-9)
	assert.False(t, steady.Skewed())
	assert.InDelta(t, math.Log(50)/math.Log(5.0/3.0), steady.ParetoIndex(), 1e-9)

	// Nine fast passes and one black swan.
	samples := make([]time.Duration, 0, 10)
	for range 9 {
		samples = append(samples, time.Millisecond)
	}
	samples = append(samples, 10*time.Millisecond)

	skewed := CalculateStatistics(samples)
	assert.InDelta(t, 10, skewed.TailRatio(), 1e-9)
	assert.True(t, skewed.Skewed())
	assert.InDelta(t, math.Log10(50), skewed.ParetoIndex(), 1e-9)
	assert.Less(t, skewed.ParetoIndex(), 2.0, "infinite-variance regime")
}

func TestStatistics_NoTail(t *testing.T) {
	flat := CalculateStatistics([]time.Duration{time.Second, time.Second})
	assert.Equal(t, 1.0, flat.TailRatio())
	assert.Equal(t, 0.0, flat.ParetoIndex())

	assert.Equal(t, 1.0, Statistics{}.TailRatio())
	assert.False(t, Statistics{}.Skewed())
}
