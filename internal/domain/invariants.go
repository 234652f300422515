package domain

import (
	"fmt"
	"math"
	"sync/atomic"
)

var strictInvariants atomic.Bool

// SetStrictInvariants makes invariant violations panic instead of being
// clamped. Tests and debug builds turn it on; production leaves it off.
func SetStrictInvariants(strict bool) {
	strictInvariants.Store(strict)
}

func violation(format string, args ...any) {
	if strictInvariants.Load() {
		panic(fmt.Sprintf("invariant violation: "+format, args...))
	}
}

// Clamp01 clamps v into [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

// ClampRating clamps a rating into [0,5]. NaN becomes 0.
func ClampRating(v float64) float64 {
	return clampRange(v, 0, 5)
}

func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HealCounters repairs a (success, total) pair so that
// 0 <= success <= total. Violations panic in strict mode.
func HealCounters(success, total int64) (int64, int64) {
	if total < 0 {
		violation("total_queries is negative: %d", total)
		total = 0
	}
	if success < 0 {
		violation("success_count is negative: %d", success)
		success = 0
	}
	if success > total {
		violation("success_count %d exceeds total_queries %d", success, total)
		success = total
	}
	return success, total
}

// SuccessRate returns success/total in [0,1]; zero when total is zero.
func SuccessRate(success, total int64) float64 {
	success, total = HealCounters(success, total)
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total)
}
