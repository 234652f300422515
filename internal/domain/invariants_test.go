package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 0.25, Clamp01(0.25))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 1.0, Clamp01(math.Inf(1)))
}

func TestClampRating(t *testing.T) {
	assert.Equal(t, 0.0, ClampRating(-1))
	assert.Equal(t, 4.5, ClampRating(4.5))
	assert.Equal(t, 5.0, ClampRating(9))
	assert.Equal(t, 0.0, ClampRating(math.NaN()))
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		name    string
		success int64
		total   int64
		want    float64
	}{
		{"no queries", 0, 0, 0},
		{"half", 2, 4, 0.5},
		{"all", 3, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuccessRate(tt.success, tt.total)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestHealCounters_ClampsInProduction(t *testing.T) {
	SetStrictInvariants(false)

	success, total := HealCounters(-2, 5)
	assert.Equal(t, int64(0), success)
	assert.Equal(t, int64(5), total)

	success, total = HealCounters(7, 5)
	assert.Equal(t, int64(5), success)
	assert.Equal(t, int64(5), total)

	success, total = HealCounters(1, -1)
	assert.Equal(t, int64(0), success)
	assert.Equal(t, int64(0), total)
}

func TestHealCounters_PanicsWhenStrict(t *testing.T) {
	SetStrictInvariants(true)
	defer SetStrictInvariants(false)

	assert.Panics(t, func() { HealCounters(-1, 3) })
	assert.Panics(t, func() { HealCounters(4, 3) })
	assert.NotPanics(t, func() { HealCounters(2, 3) })
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
	assert.Equal(t, 0.0, MatchSimilarity(-0.4))
}

func TestRunningCentroid(t *testing.T) {
	got := RunningCentroid([]float32{1, 1}, []float32{4, 7}, 2)
	assert.InDelta(t, 2.0, got[0], 1e-6)
	assert.InDelta(t, 3.0, got[1], 1e-6)

	fresh := RunningCentroid(nil, []float32{3, 4}, 0)
	assert.Equal(t, []float32{3, 4}, fresh)
}
