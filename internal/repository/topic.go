package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TopicRepository stores the vocabulary offered to the topic classifier.
type TopicRepository struct {
	db dbtx
}

func NewTopicRepository(pool *pgxpool.Pool) *TopicRepository {
	return &TopicRepository{db: pool}
}

func (r *TopicRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT name FROM topics ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		topics = append(topics, name)
	}
	return topics, rows.Err()
}

func (r *TopicRepository) Ensure(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO topics (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return err
}
