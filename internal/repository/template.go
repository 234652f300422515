package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

const templateColumns = `id, topic, content_kind, content, source, efficacy_score, usage_count, quality_score,
	confusion_score, follow_up_rate, confidence_score, rating_count, rating_sum, rating_sum_squares,
	component_rating, composite_quality_score, composite_breakdown, metadata, created_at, updated_at`

type TemplateRepository struct {
	db dbtx
}

func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: pool}
}

func NewTemplateRepositoryWithTx(tx pgx.Tx) *TemplateRepository {
	return &TemplateRepository{db: tx}
}

func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	var kind, payload string
	var components, breakdown, metadata []byte

	err := row.Scan(&t.ID, &t.Topic, &kind, &payload, &t.Source, &t.EfficacyScore, &t.UsageCount, &t.QualityScore,
		&t.ConfusionScore, &t.FollowUpRate, &t.ConfidenceScore, &t.RatingCount, &t.RatingSum, &t.RatingSumSquares,
		&components, &t.CompositeQualityScore, &breakdown, &metadata, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, err
	}

	t.Content = domain.DecodeTemplateContent(domain.TemplateContentKind(kind), payload)
	if len(components) > 0 {
		if err := json.Unmarshal(components, &t.ComponentRating); err != nil {
			return nil, err
		}
	}
	if len(breakdown) > 0 {
		t.CompositeBreakdown = &domain.CompositeBreakdown{}
		if err := json.Unmarshal(breakdown, t.CompositeBreakdown); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, err
		}
	}

	t.EfficacyScore = domain.ClampRating(t.EfficacyScore)
	t.FollowUpRate = domain.Clamp01(t.FollowUpRate)
	t.ConfusionScore = domain.Clamp01(t.ConfusionScore)
	t.ConfidenceScore = domain.Clamp01(t.ConfidenceScore)
	t.CompositeQualityScore = domain.Clamp01(t.CompositeQualityScore)
	return &t, nil
}

func collectTemplates(rows pgx.Rows) ([]*domain.Template, error) {
	defer rows.Close()

	var templates []*domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *TemplateRepository) Create(ctx context.Context, t *domain.Template) error {
	payload, err := t.Content.Payload()
	if err != nil {
		return err
	}

	components := t.ComponentRating
	if components == nil {
		components = map[string]float64{}
	}
	componentsJSON, err := json.Marshal(components)
	if err != nil {
		return err
	}

	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO templates (id, topic, content_kind, content, source, efficacy_score, usage_count, quality_score,
		                        component_rating, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Topic, t.Content.Kind, payload, t.Source, domain.ClampRating(t.EfficacyScore), t.UsageCount,
		t.QualityScore, componentsJSON, metadataJSON, t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrTemplateAlreadyExists
	}
	return err
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	return scanTemplate(r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = $1`, id))
}

func (r *TemplateRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Template, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ANY($1::uuid[]) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}

func (r *TemplateRepository) ListByTopic(ctx context.Context, topic string) ([]*domain.Template, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE topic = $1 ORDER BY created_at, id`, topic)
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}

func (r *TemplateRepository) ListPage(ctx context.Context, afterID string, limit int) ([]*domain.Template, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows pgx.Rows
	var err error
	if afterID == "" {
		rows, err = r.db.Query(ctx,
			`SELECT `+templateColumns+` FROM templates ORDER BY id LIMIT $1`, limit)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+templateColumns+` FROM templates WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	}
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}

func (r *TemplateRepository) IncrementUsage(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE templates SET usage_count = usage_count + 1, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

// RecordRating folds one rating into the running aggregates in a single
// statement so concurrent ratings never overwrite each other.
func (r *TemplateRepository) RecordRating(ctx context.Context, id string, rating float64, followUp, confused bool) error {
	rating = domain.ClampRating(rating)
	followUpVal, confusedVal := 0.0, 0.0
	if followUp {
		followUpVal = 1
	}
	if confused {
		confusedVal = 1
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE templates
		 SET rating_count = rating_count + 1,
		     rating_sum = rating_sum + $2,
		     rating_sum_squares = rating_sum_squares + $2 * $2,
		     efficacy_score = LEAST(GREATEST((rating_sum + $2) / (rating_count + 1), 0), 5),
		     follow_up_rate = (follow_up_rate * rating_count + $3) / (rating_count + 1),
		     confusion_score = (confusion_score * rating_count + $4) / (rating_count + 1),
		     updated_at = $5
		 WHERE id = $1`,
		id, rating, followUpVal, confusedVal, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepository) UpdateComposite(ctx context.Context, id string, breakdown *domain.CompositeBreakdown, confidence float64) error {
	var score float64
	var breakdownJSON []byte
	if breakdown != nil {
		score = domain.Clamp01(breakdown.Score)
		b, err := json.Marshal(breakdown)
		if err != nil {
			return err
		}
		breakdownJSON = b
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE templates
		 SET composite_quality_score = $2, composite_breakdown = $3, confidence_score = $4, updated_at = $5
		 WHERE id = $1`,
		id, score, breakdownJSON, domain.Clamp01(confidence), time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrTemplateNotFound
	}
	return nil
}
