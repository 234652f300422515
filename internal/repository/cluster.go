package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/pagination"
	"github.com/cloo-solutions/tutorfit/internal/service"
)

// clusterCreationLockKey is the advisory lock serializing cluster creation.
// Creation only happens on a miss, so one lock for every topic is enough.
const clusterCreationLockKey int64 = 0x7475746f72666974

const clusterColumns = `c.id, c.centroid, c.representative_query, c.topic, c.total_queries, c.success_count,
	c.success_rate, c.prompt_enhancement, c.last_regenerated_at, c.created_at, c.updated_at`

type ClusterRepository struct {
	db dbtx
}

func NewClusterRepository(pool *pgxpool.Pool) *ClusterRepository {
	return &ClusterRepository{db: pool}
}

func NewClusterRepositoryWithTx(tx pgx.Tx) *ClusterRepository {
	return &ClusterRepository{db: tx}
}

func scanCluster(row pgx.Row, extra ...any) (*domain.Cluster, error) {
	var c domain.Cluster
	var centroid pgvector.Vector
	var topic, enhancement pgtype.Text

	dest := []any{&c.ID, &centroid, &c.RepresentativeQuery, &topic, &c.TotalQueries, &c.SuccessCount,
		&c.SuccessRate, &enhancement, &c.LastRegeneratedAt, &c.CreatedAt, &c.UpdatedAt}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrClusterNotFound
		}
		return nil, err
	}

	c.Centroid = centroid.Slice()
	if topic.Valid {
		c.Topic = topic.String
	}
	if enhancement.Valid {
		c.PromptEnhancement = enhancement.String
	}
	c.Heal()
	return &c, nil
}

func (r *ClusterRepository) GetByID(ctx context.Context, id string) (*domain.Cluster, error) {
	return scanCluster(r.db.QueryRow(ctx,
		`SELECT `+clusterColumns+` FROM clusters c WHERE c.id = $1`, id))
}

func (r *ClusterRepository) FindByTopic(ctx context.Context, topic string) (*domain.Cluster, error) {
	return scanCluster(r.db.QueryRow(ctx,
		`SELECT `+clusterColumns+`
		 FROM clusters c
		 JOIN (
			 SELECT cluster_id, COUNT(*) AS interactions
			 FROM assignments
			 WHERE topic = $1
			 GROUP BY cluster_id
		 ) a ON a.cluster_id = c.id
		 ORDER BY a.interactions DESC, c.created_at ASC
		 LIMIT 1`,
		topic,
	))
}

func (r *ClusterRepository) FindNearest(ctx context.Context, embedding []float32) (*domain.Cluster, float64, error) {
	return findNearest(ctx, r.db, embedding)
}

func findNearest(ctx context.Context, db dbtx, embedding []float32) (*domain.Cluster, float64, error) {
	var similarity float64
	c, err := scanCluster(db.QueryRow(ctx,
		`SELECT `+clusterColumns+`, 1 - (c.centroid <=> $1) AS similarity
		 FROM clusters c
		 ORDER BY c.centroid <=> $1
		 LIMIT 1`,
		pgvector.NewVector(embedding),
	), &similarity)
	if err != nil {
		return nil, 0, err
	}
	return c, domain.MatchSimilarity(similarity), nil
}

func (r *ClusterRepository) RecordQuery(ctx context.Context, id string, embedding []float32) (*domain.Cluster, error) {
	var updated *domain.Cluster
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		updated, err = recordQuery(ctx, tx, id, embedding)
		return err
	})
	return updated, err
}

// recordQuery must run inside a transaction; it locks the cluster row so
// the running-mean centroid update cannot lose a concurrent query.
func recordQuery(ctx context.Context, tx pgx.Tx, id string, embedding []float32) (*domain.Cluster, error) {
	current, err := scanCluster(tx.QueryRow(ctx,
		`SELECT `+clusterColumns+` FROM clusters c WHERE c.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	centroid := current.Centroid
	if len(embedding) == len(current.Centroid) {
		centroid = domain.RunningCentroid(current.Centroid, embedding, current.TotalQueries)
	}

	return scanCluster(tx.QueryRow(ctx,
		`UPDATE clusters c
		 SET total_queries = c.total_queries + 1,
		     success_rate = c.success_count::float8 / (c.total_queries + 1),
		     centroid = $2,
		     updated_at = $3
		 WHERE c.id = $1
		 RETURNING `+clusterColumns,
		id, pgvector.NewVector(centroid), time.Now().UTC(),
	))
}

func (r *ClusterRepository) CreateIfNoMatch(ctx context.Context, c *domain.Cluster, threshold float64) (*service.ClusterCreation, error) {
	if err := domain.ValidateCluster(c); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cluster", err)
	}

	var result *service.ClusterCreation
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, clusterCreationLockKey); err != nil {
			return err
		}

		nearest, similarity, err := findNearest(ctx, tx, c.Centroid)
		if err != nil && !errors.Is(err, domain.ErrClusterNotFound) {
			return err
		}
		if nearest != nil && similarity >= threshold {
			absorbed, err := recordQuery(ctx, tx, nearest.ID, c.Centroid)
			if err != nil {
				return err
			}
			result = &service.ClusterCreation{Cluster: absorbed, Created: false, Similarity: similarity}
			return nil
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO clusters (id, centroid, representative_query, topic, total_queries, success_count,
			                       success_rate, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ID, pgvector.NewVector(c.Centroid), c.RepresentativeQuery, nullableString(c.Topic),
			c.TotalQueries, c.SuccessCount, c.SuccessRate, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return err
		}
		result = &service.ClusterCreation{Cluster: c, Created: true, Similarity: 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ClusterRepository) IncrementSuccess(ctx context.Context, id string) (*domain.Cluster, error) {
	return scanCluster(r.db.QueryRow(ctx,
		`UPDATE clusters c
		 SET success_count = LEAST(c.success_count + 1, c.total_queries),
		     success_rate = LEAST(c.success_count + 1, c.total_queries)::float8 / GREATEST(c.total_queries, 1),
		     updated_at = $2
		 WHERE c.id = $1
		 RETURNING `+clusterColumns,
		id, time.Now().UTC(),
	))
}

// UpdateEnhancement replaces the cluster's enhancement unless it was
// regenerated less than cooldown before at.
func (r *ClusterRepository) UpdateEnhancement(ctx context.Context, id, enhancement string, at time.Time, cooldown time.Duration) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE clusters SET prompt_enhancement = $2, last_regenerated_at = $3, updated_at = $3
		 WHERE id = $1
		   AND (last_regenerated_at IS NULL OR last_regenerated_at <= $4)`,
		id, enhancement, at, at.Add(-cooldown),
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clusters WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrClusterNotFound
	}
	return domain.ErrRegenerationCooldown
}

func (r *ClusterRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.ClusterPageResult, error) {
	limit = pagination.ClampLimit(limit)

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+clusterColumns+`
			 FROM clusters c
			 WHERE (c.created_at, c.id) < ($1, $2)
			 ORDER BY c.created_at DESC, c.id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+clusterColumns+`
			 FROM clusters c
			 ORDER BY c.created_at DESC, c.id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.ClusterPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
