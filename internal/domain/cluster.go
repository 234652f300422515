package domain

import (
	"fmt"
	"time"
)

// GeneralTopic is the fallback topic label. Clusters on it are never
// reused by topic alone.
const GeneralTopic = "general"

// Cluster groups semantically related queries that share one adaptable
// prompt enhancement.
type Cluster struct {
	ID                  string
	Centroid            []float32
	RepresentativeQuery string
	Topic               string // empty when unknown
	TotalQueries        int64
	SuccessCount        int64
	SuccessRate         float64
	PromptEnhancement   string // empty until the first regeneration
	LastRegeneratedAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewCluster creates a cluster seeded from a single query.
func NewCluster(id, query, topic string, embedding []float32, now time.Time) *Cluster {
	centroid := make([]float32, len(embedding))
	copy(centroid, embedding)
	return &Cluster{
		ID:                  id,
		Centroid:            centroid,
		RepresentativeQuery: query,
		Topic:               topic,
		TotalQueries:        1,
		SuccessCount:        0,
		SuccessRate:         0,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// HasEnhancement reports whether the cluster has been regenerated at least once.
func (c *Cluster) HasEnhancement() bool {
	return c.PromptEnhancement != ""
}

// CooldownElapsed reports whether enough time has passed since the last
// regeneration. A cluster that was never regenerated is always eligible.
func (c *Cluster) CooldownElapsed(now time.Time, cooldown time.Duration) bool {
	if c.LastRegeneratedAt == nil {
		return true
	}
	return now.Sub(*c.LastRegeneratedAt) >= cooldown
}

// Heal clamps the counters back into their valid range and recomputes
// SuccessRate.
func (c *Cluster) Heal() {
	c.SuccessCount, c.TotalQueries = HealCounters(c.SuccessCount, c.TotalQueries)
	c.SuccessRate = SuccessRate(c.SuccessCount, c.TotalQueries)
}

// ValidateCluster validates a Cluster instance
func ValidateCluster(c *Cluster) error {
	if c == nil {
		return fmt.Errorf("cluster cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("cluster ID is required")
	}

	if len(c.Centroid) == 0 {
		return fmt.Errorf("cluster Centroid is required")
	}

	if c.RepresentativeQuery == "" {
		return fmt.Errorf("cluster RepresentativeQuery is required")
	}

	if c.TotalQueries < 0 {
		return fmt.Errorf("cluster TotalQueries cannot be negative")
	}

	if c.SuccessCount < 0 || c.SuccessCount > c.TotalQueries {
		return fmt.Errorf("cluster SuccessCount must be within [0, TotalQueries]")
	}

	return nil
}
