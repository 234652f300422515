// Package bandit implements the multi-armed-bandit policies used to pick a
// response template for a query cluster.
package bandit

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Policy names accepted by NewPolicy.
const (
	PolicyUCB1        = "ucb1"
	PolicyEpsilonUCB1 = "epsilon_ucb1"
)

// Method tags which rule produced a choice.
type Method string

const (
	MethodUCB1           Method = "ucb1"
	MethodUCB1Untried    Method = "ucb1_untried"
	MethodEpsilonExplore Method = "epsilon_explore"
)

// Arm is one candidate template with its observed statistics.
type Arm struct {
	ID         string
	Pulls      int64
	MeanReward float64
	// Quality is the persisted composite score. It breaks UCB ties and
	// gates epsilon exploration.
	Quality float64
}

// Choice is the outcome of a policy decision.
type Choice struct {
	Arm    Arm
	Score  float64
	Method Method
}

// Policy selects one arm out of a candidate set.
type Policy interface {
	Name() string
	Select(arms []Arm) (Choice, bool)
}

// UCB1Score returns mean + sqrt(2 ln N / n). An arm that was never pulled
// scores +Inf so it is always tried before exploitation starts.
func UCB1Score(arm Arm, totalPulls int64) float64 {
	if arm.Pulls <= 0 {
		return math.Inf(1)
	}
	if totalPulls < 1 {
		totalPulls = 1
	}
	bonus := math.Sqrt(2 * math.Log(float64(totalPulls)) / float64(arm.Pulls))
	return arm.MeanReward + bonus
}

// TotalPulls sums the pulls over all arms.
func TotalPulls(arms []Arm) int64 {
	var total int64
	for _, a := range arms {
		if a.Pulls > 0 {
			total += a.Pulls
		}
	}
	return total
}

// UCB1 is the deterministic upper-confidence-bound policy.
type UCB1 struct{}

func (UCB1) Name() string { return PolicyUCB1 }

// Select returns the arm with the highest UCB1 score. Ties prefer the higher
// quality score, then the lexically smaller ID.
func (UCB1) Select(arms []Arm) (Choice, bool) {
	if len(arms) == 0 {
		return Choice{}, false
	}

	total := TotalPulls(arms)
	best := -1
	bestScore := math.Inf(-1)
	for i, a := range arms {
		score := UCB1Score(a, total)
		if best == -1 || better(score, a, bestScore, arms[best]) {
			best = i
			bestScore = score
		}
	}

	method := MethodUCB1
	if arms[best].Pulls <= 0 {
		method = MethodUCB1Untried
	}
	return Choice{Arm: arms[best], Score: bestScore, Method: method}, true
}

func better(score float64, a Arm, bestScore float64, b Arm) bool {
	if score != bestScore {
		return score > bestScore
	}
	if a.Quality != b.Quality {
		return a.Quality > b.Quality
	}
	return a.ID < b.ID
}

// EpsilonUCB1 explores under-tried arms with probability Epsilon and falls
// back to UCB1 otherwise. Untried arms always win first, so exploration only
// ever reshuffles between arms that have been pulled at least once.
type EpsilonUCB1 struct {
	Epsilon      float64
	QualityFloor float64
	// LowUsageFraction is the share of least-used arms eligible for exploration.
	LowUsageFraction float64

	float64Fn func() float64
	intNFn    func(n int) int
}

// NewEpsilonUCB1 creates an exploring policy backed by the global random source.
func NewEpsilonUCB1(epsilon, qualityFloor float64) *EpsilonUCB1 {
	return &EpsilonUCB1{
		Epsilon:          epsilon,
		QualityFloor:     qualityFloor,
		LowUsageFraction: 0.4,
		float64Fn:        rand.Float64,
		intNFn:           rand.IntN,
	}
}

// WithRand replaces the random source, used for deterministic tests.
func (p *EpsilonUCB1) WithRand(float64Fn func() float64, intNFn func(n int) int) *EpsilonUCB1 {
	p.float64Fn = float64Fn
	p.intNFn = intNFn
	return p
}

func (p *EpsilonUCB1) Name() string { return PolicyEpsilonUCB1 }

func (p *EpsilonUCB1) Select(arms []Arm) (Choice, bool) {
	if len(arms) == 0 {
		return Choice{}, false
	}

	for _, a := range arms {
		if a.Pulls <= 0 {
			return UCB1{}.Select(arms)
		}
	}

	if p.Epsilon > 0 && p.float64Fn() < p.Epsilon {
		if pool := p.explorationPool(arms); len(pool) > 0 {
			picked := pool[p.intNFn(len(pool))]
			return Choice{Arm: picked, Score: UCB1Score(picked, TotalPulls(arms)), Method: MethodEpsilonExplore}, true
		}
	}

	return UCB1{}.Select(arms)
}

func (p *EpsilonUCB1) explorationPool(arms []Arm) []Arm {
	eligible := make([]Arm, 0, len(arms))
	for _, a := range arms {
		if a.Quality >= p.QualityFloor {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Pulls != eligible[j].Pulls {
			return eligible[i].Pulls < eligible[j].Pulls
		}
		return eligible[i].ID < eligible[j].ID
	})

	fraction := p.LowUsageFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.4
	}
	n := int(math.Ceil(float64(len(eligible)) * fraction))
	if n < 1 {
		n = 1
	}
	return eligible[:n]
}

// NewPolicy builds the configured policy. Exactly one policy runs per process.
func NewPolicy(name string, epsilon, qualityFloor float64) (Policy, error) {
	switch name {
	case "", PolicyUCB1:
		return UCB1{}, nil
	case PolicyEpsilonUCB1:
		if epsilon < 0 || epsilon > 1 {
			return nil, fmt.Errorf("exploration rate must be within [0,1]: %v", epsilon)
		}
		return NewEpsilonUCB1(epsilon, qualityFloor), nil
	}
	return nil, fmt.Errorf("unknown selection policy: %q", name)
}
