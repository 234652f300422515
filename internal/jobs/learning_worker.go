package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/metrics"
	"github.com/cloo-solutions/tutorfit/internal/service"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3

	// DefaultBatchSize is how many jobs one poll claims.
	DefaultBatchSize = 10
)

// LearningJobRepository defines the interface for learning job persistence
type LearningJobRepository interface {
	// ClaimPending moves up to limit pending jobs to processing and returns them
	ClaimPending(ctx context.Context, limit int) ([]*domain.LearningJob, error)

	// UpdateStatus updates the status of a learning job
	UpdateStatus(ctx context.Context, id string, status domain.LearningJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, id string) error
}

// FeedbackProcessor runs the learning loop for one job.
type FeedbackProcessor interface {
	ProcessJob(ctx context.Context, job *domain.LearningJob) (*service.LearningOutcome, error)
}

// LearningWorker drains the feedback queue.
type LearningWorker struct {
	repo       LearningJobRepository
	processor  FeedbackProcessor
	batchSize  int
	maxRetries int32
	recomputer ScoreRecomputer
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewLearningWorker creates a new LearningWorker instance
func NewLearningWorker(repo LearningJobRepository, processor FeedbackProcessor, batchSize int, m *metrics.Metrics, logger *zap.Logger) *LearningWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LearningWorker{
		repo:       repo,
		processor:  processor,
		batchSize:  batchSize,
		maxRetries: MaxRetries,
		metrics:    m,
		logger:     logger,
	}
}

// WithMaxRetries overrides the attempt limit before a job is dead-lettered.
func (w *LearningWorker) WithMaxRetries(n int32) *LearningWorker {
	if n > 0 {
		w.maxRetries = n
	}
	return w
}

// WithRecompute rescores templates after each batch that completed a job.
func (w *LearningWorker) WithRecompute(r ScoreRecomputer) *LearningWorker {
	w.recomputer = r
	return w
}

// ProcessJobs implements the JobProcessor interface
func (w *LearningWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	w.logger.Debug("processing learning jobs", zap.Int("count", len(jobs)))

	completed := 0
	for _, job := range jobs {
		done, err := w.processJob(ctx, job)
		if err != nil {
			w.logger.Error("error processing job", zap.String("job_id", job.ID), zap.Error(err))
		}
		if done {
			completed++
		}
	}

	if completed > 0 && w.recomputer != nil {
		result, err := w.recomputer.Recompute(ctx, nil)
		if err != nil {
			return fmt.Errorf("recompute after learning batch: %w", err)
		}
		w.logger.Debug("recomputed scores after learning batch",
			zap.Int("completed_jobs", completed),
			zap.Int("templates", result.Updated),
		)
	}

	return nil
}

// processJob reports whether the job completed.
func (w *LearningWorker) processJob(ctx context.Context, job *domain.LearningJob) (bool, error) {
	if job.Retries >= w.maxRetries {
		// Reclaimed after its worker died too many times.
		errMsg := fmt.Sprintf("max retries exceeded: claimed %d times without finishing", job.Retries)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.LearningJobStatusFailed, errMsg); err != nil {
			return false, fmt.Errorf("failed to update job status to failed: %w", err)
		}
		w.metrics.RecordJobResult("failed")
		return false, nil
	}

	outcome, err := w.runProcessor(ctx, job)
	if err != nil {
		return false, w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.LearningJobStatusCompleted, ""); err != nil {
		return false, fmt.Errorf("failed to update job status to completed: %w", err)
	}

	w.metrics.RecordJobResult("completed")
	w.logger.Debug("job completed",
		zap.String("job_id", job.ID),
		zap.String("outcome", string(outcome.Classification.Outcome)),
		zap.String("gate", outcome.Gate),
	)
	return true, nil
}

func (w *LearningWorker) runProcessor(ctx context.Context, job *domain.LearningJob) (outcome *service.LearningOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked", zap.String("job_id", job.ID), zap.Any("panic", r), zap.Stack("stack"))
			outcome, err = nil, fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return w.processor.ProcessJob(ctx, job)
}

// handleJobFailure handles a failed job with retry logic
func (w *LearningWorker) handleJobFailure(ctx context.Context, job *domain.LearningJob, jobErr error) error {
	w.logger.Warn("job failed", zap.String("job_id", job.ID), zap.Error(jobErr))

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= w.maxRetries {
		w.logger.Error("job exceeded max retries, marking as failed",
			zap.String("job_id", job.ID),
			zap.Int32("max_retries", w.maxRetries),
		)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.LearningJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		w.metrics.RecordJobResult("failed")
		return nil
	}

	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.LearningJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}
	w.metrics.RecordJobResult("retried")

	return nil
}
