package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

const learningJobColumns = `id, assignment_id, feedback_text, response_text, status, retries, error, created_at, processed_at`

// DefaultVisibilityTimeout is how long a claimed job may stay in processing
// before another worker may claim it again.
const DefaultVisibilityTimeout = 10 * time.Minute

type LearningJobRepository struct {
	db                dbtx
	visibilityTimeout time.Duration
}

func NewLearningJobRepository(pool *pgxpool.Pool) *LearningJobRepository {
	return &LearningJobRepository{db: pool, visibilityTimeout: DefaultVisibilityTimeout}
}

func NewLearningJobRepositoryWithTx(tx pgx.Tx) *LearningJobRepository {
	return &LearningJobRepository{db: tx, visibilityTimeout: DefaultVisibilityTimeout}
}

// WithVisibilityTimeout overrides how long a processing job stays claimed.
func (r *LearningJobRepository) WithVisibilityTimeout(d time.Duration) *LearningJobRepository {
	if d > 0 {
		r.visibilityTimeout = d
	}
	return r
}

func scanLearningJob(row pgx.Row) (*domain.LearningJob, error) {
	var job domain.LearningJob
	var errMsg pgtype.Text
	err := row.Scan(&job.ID, &job.AssignmentID, &job.FeedbackText, &job.ResponseText, &job.Status,
		&job.Retries, &errMsg, &job.CreatedAt, &job.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLearningJobNotFound
		}
		return nil, err
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return &job, nil
}

func collectLearningJobs(rows pgx.Rows) ([]*domain.LearningJob, error) {
	defer rows.Close()

	var jobs []*domain.LearningJob
	for rows.Next() {
		job, err := scanLearningJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *LearningJobRepository) Create(ctx context.Context, job *domain.LearningJob) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO learning_jobs (id, assignment_id, feedback_text, response_text, status, retries, error, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.AssignmentID, job.FeedbackText, job.ResponseText, job.Status, job.Retries,
		nullableString(job.Error), job.CreatedAt, job.ProcessedAt,
	)
	return err
}

func (r *LearningJobRepository) GetByID(ctx context.Context, id string) (*domain.LearningJob, error) {
	return scanLearningJob(r.db.QueryRow(ctx,
		`SELECT `+learningJobColumns+` FROM learning_jobs WHERE id = $1`, id))
}

// ClaimPending moves up to limit jobs to processing. It takes pending jobs
// and processing jobs whose claim is older than the visibility timeout; a
// reclaimed job counts as a failed attempt. Concurrent workers never claim
// the same job.
func (r *LearningJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.LearningJob, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM learning_jobs
			 WHERE status = $1
			    OR (status = $3 AND claimed_at < now() - make_interval(secs => $4))
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE learning_jobs
		 SET retries = CASE WHEN learning_jobs.status = $3 THEN learning_jobs.retries + 1 ELSE learning_jobs.retries END,
		     status = $3,
		     claimed_at = now(),
		     error = NULL,
		     processed_at = NULL
		 FROM cte
		 WHERE learning_jobs.id = cte.id
		 RETURNING learning_jobs.id, learning_jobs.assignment_id, learning_jobs.feedback_text,
		           learning_jobs.response_text, learning_jobs.status, learning_jobs.retries,
		           learning_jobs.error, learning_jobs.created_at, learning_jobs.processed_at`,
		domain.LearningJobStatusPending, limit, domain.LearningJobStatusProcessing,
		r.visibilityTimeout.Seconds(),
	)
	if err != nil {
		return nil, err
	}
	return collectLearningJobs(rows)
}

func (r *LearningJobRepository) UpdateStatus(ctx context.Context, id string, status domain.LearningJobStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.LearningJobStatusCompleted || status == domain.LearningJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE learning_jobs SET status = $1, error = $2, processed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), processedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrLearningJobNotFound
	}
	return nil
}

func (r *LearningJobRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE learning_jobs SET retries = retries + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrLearningJobNotFound
	}
	return nil
}
