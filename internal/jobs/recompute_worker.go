package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/scoring"
	"github.com/cloo-solutions/tutorfit/internal/service"
)

// ScoreRecomputer rescores every template.
type ScoreRecomputer interface {
	Recompute(ctx context.Context, weights *scoring.Weights) (*service.RecomputeResult, error)
}

// RecomputeWorker refreshes composite scores on each tick.
type RecomputeWorker struct {
	recomputer ScoreRecomputer
	logger     *zap.Logger
}

func NewRecomputeWorker(recomputer ScoreRecomputer, logger *zap.Logger) *RecomputeWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecomputeWorker{recomputer: recomputer, logger: logger}
}

// ProcessJobs implements the JobProcessor interface
func (w *RecomputeWorker) ProcessJobs(ctx context.Context) error {
	result, err := w.recomputer.Recompute(ctx, nil)
	if err != nil {
		return fmt.Errorf("recompute composite scores: %w", err)
	}
	w.logger.Debug("scheduled recompute finished",
		zap.Int("templates", result.Updated),
		zap.String("snapshot_key", result.SnapshotKey),
	)
	return nil
}
