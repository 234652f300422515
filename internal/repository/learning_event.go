package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

type LearningEventRepository struct {
	db dbtx
}

func NewLearningEventRepository(pool *pgxpool.Pool) *LearningEventRepository {
	return &LearningEventRepository{db: pool}
}

func NewLearningEventRepositoryWithTx(tx pgx.Tx) *LearningEventRepository {
	return &LearningEventRepository{db: tx}
}

func scanLearningEvent(row pgx.Row) (*domain.LearningEvent, error) {
	var e domain.LearningEvent
	var factors []byte
	err := row.Scan(&e.ID, &e.ClusterID, &e.AssignmentID, &factors, &e.PromptUpdate, &e.ConfidenceScore,
		&e.TriggerReason, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLearningEventNotFound
		}
		return nil, err
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &e.SuccessFactors); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func (r *LearningEventRepository) Create(ctx context.Context, e *domain.LearningEvent) error {
	factors, err := json.Marshal(e.SuccessFactors)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO learning_events (id, cluster_id, assignment_id, success_factors, prompt_update,
		                              confidence_score, trigger_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ClusterID, e.AssignmentID, factors, e.PromptUpdate, domain.Clamp01(e.ConfidenceScore),
		e.TriggerReason, e.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrLearningEventExists
	}
	return err
}

func (r *LearningEventRepository) GetByAssignment(ctx context.Context, assignmentID string) (*domain.LearningEvent, error) {
	return scanLearningEvent(r.db.QueryRow(ctx,
		`SELECT id, cluster_id, assignment_id, success_factors, prompt_update, confidence_score, trigger_reason, created_at
		 FROM learning_events WHERE assignment_id = $1`,
		assignmentID,
	))
}

func (r *LearningEventRepository) ListByCluster(ctx context.Context, clusterID string, limit int) ([]*domain.LearningEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, cluster_id, assignment_id, success_factors, prompt_update, confidence_score, trigger_reason, created_at
		 FROM learning_events
		 WHERE cluster_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		clusterID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.LearningEvent
	for rows.Next() {
		e, err := scanLearningEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
