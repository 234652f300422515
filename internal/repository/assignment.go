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

type AssignmentRepository struct {
	db dbtx
}

func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{db: pool}
}

func NewAssignmentRepositoryWithTx(tx pgx.Tx) *AssignmentRepository {
	return &AssignmentRepository{db: tx}
}

func (r *AssignmentRepository) Create(ctx context.Context, a *domain.Assignment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO assignments (id, query_text, cluster_id, template_id, session_id, user_id, topic,
		                          similarity, is_new_cluster, selection_method, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.QueryText, a.ClusterID, nullableString(a.TemplateID), nullableString(a.SessionID),
		nullableString(a.UserID), nullableString(a.Topic), domain.Clamp01(a.Similarity), a.IsNewCluster,
		a.SelectionMethod, a.CreatedAt,
	)
	return err
}

func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*domain.Assignment, error) {
	var a domain.Assignment
	var templateID, sessionID, userID, topic, outcome, feedbackText pgtype.Text
	var confidence pgtype.Float8

	err := r.db.QueryRow(ctx,
		`SELECT id, query_text, cluster_id, template_id, session_id, user_id, topic, similarity, is_new_cluster,
		        selection_method, created_at, feedback_outcome, feedback_confidence, feedback_text, feedback_at
		 FROM assignments WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.QueryText, &a.ClusterID, &templateID, &sessionID, &userID, &topic, &a.Similarity,
		&a.IsNewCluster, &a.SelectionMethod, &a.CreatedAt, &outcome, &confidence, &feedbackText, &a.FeedbackAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssignmentNotFound
		}
		return nil, err
	}

	a.TemplateID = templateID.String
	a.SessionID = sessionID.String
	a.UserID = userID.String
	a.Topic = topic.String
	a.FeedbackText = feedbackText.String
	if outcome.Valid {
		a.FeedbackOutcome = domain.ParseFeedbackOutcome(outcome.String)
	}
	if confidence.Valid {
		a.FeedbackConfidence = domain.Clamp01(confidence.Float64)
	}
	return &a, nil
}

func (r *AssignmentRepository) RecordFeedback(ctx context.Context, id string, c domain.FeedbackClassification, text string, at time.Time) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE assignments
		 SET feedback_outcome = $2, feedback_confidence = $3, feedback_text = $4, feedback_at = $5
		 WHERE id = $1 AND feedback_outcome IS NULL`,
		id, c.Outcome, domain.Clamp01(c.Confidence), text, at,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() == 1, nil
}
