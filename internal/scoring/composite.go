// Package scoring computes the composite quality score that ranks templates.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

// Signal names as persisted in a composite breakdown.
const (
	SignalEfficacy   = "efficacy"
	SignalFollowUp   = "follow_up"
	SignalConfusion  = "confusion"
	SignalConfidence = "confidence"
	SignalComponents = "components"
)

// weightSumTolerance bounds float rounding when checking that weights sum to one.
const weightSumTolerance = 1e-6

// confidenceSampleSize is the rating count at which sample confidence saturates.
const confidenceSampleSize = 10

// Weights are the per-signal coefficients of the composite score.
type Weights struct {
	Efficacy   float64 `json:"efficacy"`
	FollowUp   float64 `json:"follow_up"`
	Confusion  float64 `json:"confusion"`
	Confidence float64 `json:"confidence"`
	Components float64 `json:"components"`
}

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		Efficacy:   0.35,
		FollowUp:   0.20,
		Confusion:  0.20,
		Confidence: 0.15,
		Components: 0.10,
	}
}

// Validate rejects negative weights and weights that do not sum to one.
func (w Weights) Validate() error {
	sum := 0.0
	for name, v := range w.Map() {
		if math.IsNaN(v) || v < 0 {
			return domain.ErrInvalidScoreWeights.WithCause(fmt.Errorf("weight %s is invalid: %v", name, v))
		}
		sum += v
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return domain.ErrInvalidScoreWeights.WithCause(fmt.Errorf("weights sum to %v", sum))
	}
	return nil
}

// Map returns the weights keyed by signal name.
func (w Weights) Map() map[string]float64 {
	return map[string]float64{
		SignalEfficacy:   w.Efficacy,
		SignalFollowUp:   w.FollowUp,
		SignalConfusion:  w.Confusion,
		SignalConfidence: w.Confidence,
		SignalComponents: w.Components,
	}
}

// Signals are the normalized inputs of the composite score, each in [0,1]
// where higher is better.
type Signals struct {
	Efficacy   float64
	FollowUp   float64
	Confusion  float64
	Confidence float64
	Components float64
}

// Map returns the signals keyed by name.
func (s Signals) Map() map[string]float64 {
	return map[string]float64{
		SignalEfficacy:   s.Efficacy,
		SignalFollowUp:   s.FollowUp,
		SignalConfusion:  s.Confusion,
		SignalConfidence: s.Confidence,
		SignalComponents: s.Components,
	}
}

// SignalsFor normalizes a template's statistics. Malformed values are
// clamped so the result is always within [0,1].
func SignalsFor(t *domain.Template) Signals {
	if t == nil {
		return Signals{}
	}
	return Signals{
		Efficacy:   domain.ClampRating(t.EfficacyScore) / 5,
		FollowUp:   1 - domain.Clamp01(t.FollowUpRate),
		Confusion:  1 - domain.Clamp01(t.ConfusionScore),
		Confidence: ConfidenceSignal(t.RatingCount, t.RatingStddev()),
		Components: ComponentSignal(t.ComponentRating),
	}
}

// ConfidenceSignal grows with the number of ratings and shrinks as they
// disagree. It never drops below a tenth of the sample factor.
func ConfidenceSignal(ratingCount int64, stddev float64) float64 {
	if ratingCount <= 0 {
		return 0
	}
	sample := math.Min(1, float64(ratingCount)/confidenceSampleSize)
	agreement := math.Max(0.1, 1-domain.ClampRating(stddev)/5)
	return domain.Clamp01(sample * agreement)
}

// ComponentSignal averages the present per-criterion ratings. A template
// with no component ratings contributes 0.
func ComponentSignal(ratings map[string]float64) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range ratings {
		sum += domain.ClampRating(v)
	}
	return domain.Clamp01(sum / float64(len(ratings)) / 5)
}

// Score combines signals with weights. The caller validates weights.
func Score(s Signals, w Weights) float64 {
	total := s.Efficacy*w.Efficacy +
		s.FollowUp*w.FollowUp +
		s.Confusion*w.Confusion +
		s.Confidence*w.Confidence +
		s.Components*w.Components
	return domain.Clamp01(total)
}

// Compute scores a template and returns the breakdown to persist with it.
func Compute(t *domain.Template, w Weights, now time.Time) *domain.CompositeBreakdown {
	signals := SignalsFor(t)
	return &domain.CompositeBreakdown{
		Weights:    w.Map(),
		Signals:    signals.Map(),
		Score:      Score(signals, w),
		ComputedAt: now,
	}
}
