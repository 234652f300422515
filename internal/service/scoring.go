package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/metrics"
	"github.com/cloo-solutions/tutorfit/internal/scoring"
	"github.com/cloo-solutions/tutorfit/internal/telemetry"
)

const recomputePageSize = 200

// SnapshotStore persists JSON audit documents.
type SnapshotStore interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// RecomputeSnapshot is the audit record written after each sweep.
type RecomputeSnapshot struct {
	Weights    scoring.Weights                       `json:"weights"`
	ComputedAt time.Time                             `json:"computed_at"`
	Templates  map[string]*domain.CompositeBreakdown `json:"templates"`
}

// RecomputeResult summarizes one sweep.
type RecomputeResult struct {
	Updated     int
	SnapshotKey string
}

// ScoringService recomputes composite quality scores for every template.
type ScoringService struct {
	templates TemplateRepositoryInterface
	weights   scoring.Weights
	snapshots SnapshotStore
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       Clock
	pageSize  int
}

func NewScoringService(
	templates TemplateRepositoryInterface,
	weights scoring.Weights,
	snapshots SnapshotStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ScoringService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoringService{
		templates: templates,
		weights:   weights,
		snapshots: snapshots,
		metrics:   m,
		logger:    logger,
		now:       utcNow,
		pageSize:  recomputePageSize,
	}
}

// WithClock replaces the clock (for testing).
func (s *ScoringService) WithClock(now Clock) *ScoringService {
	s.now = now
	return s
}

// WithPageSize overrides the sweep page size (for testing).
func (s *ScoringService) WithPageSize(n int) *ScoringService {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// Recompute sweeps all templates and persists their composite scores. A nil
// weights argument uses the configured weights. Running it twice with the
// same inputs yields the same scores.
func (s *ScoringService) Recompute(ctx context.Context, weights *scoring.Weights) (*RecomputeResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ScoringService.Recompute", telemetry.SpanAttributes{
		Operation: "recompute",
	})
	defer span.End()

	w := s.weights
	if weights != nil {
		w = *weights
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	computedAt := s.now()
	snapshot := &RecomputeSnapshot{
		Weights:    w,
		ComputedAt: computedAt,
		Templates:  make(map[string]*domain.CompositeBreakdown),
	}

	afterID := ""
	for {
		page, err := s.templates.ListPage(ctx, afterID, s.pageSize)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("list templates: %w", err)
		}

		for _, t := range page {
			breakdown := scoring.Compute(t, w, computedAt)
			confidence := breakdown.Signals[scoring.SignalConfidence]
			if err := s.templates.UpdateComposite(ctx, t.ID, breakdown, confidence); err != nil {
				span.SetError(err)
				return nil, fmt.Errorf("update template %s: %w", t.ID, err)
			}
			snapshot.Templates[t.ID] = breakdown
		}

		if len(page) < s.pageSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	result := &RecomputeResult{Updated: len(snapshot.Templates)}
	if s.snapshots != nil {
		key := "composite-scores/" + computedAt.Format("20060102T150405.000000000Z") + ".json"
		if err := s.snapshots.PutJSON(ctx, key, snapshot); err != nil {
			s.metrics.RecordUpstreamError("s3")
			s.logger.Warn("failed to store recompute snapshot", zap.String("key", key), zap.Error(err))
		} else {
			result.SnapshotKey = key
		}
	}

	s.metrics.RecordRecompute(result.Updated, time.Since(start))
	s.logger.Info("composite scores recomputed",
		zap.Int("templates", result.Updated),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}
