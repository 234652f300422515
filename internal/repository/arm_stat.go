package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/tutorfit/internal/domain"
)

// ArmStatRepository persists per-cluster template usage and reward sums.
type ArmStatRepository struct {
	db dbtx
}

func NewArmStatRepository(pool *pgxpool.Pool) *ArmStatRepository {
	return &ArmStatRepository{db: pool}
}

func NewArmStatRepositoryWithTx(tx pgx.Tx) *ArmStatRepository {
	return &ArmStatRepository{db: tx}
}

func collectArmStats(rows pgx.Rows) ([]domain.ClusterTemplateStat, error) {
	defer rows.Close()

	var stats []domain.ClusterTemplateStat
	for rows.Next() {
		var s domain.ClusterTemplateStat
		if err := rows.Scan(&s.ClusterID, &s.TemplateID, &s.UsageCount, &s.RewardSum); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *ArmStatRepository) ListByCluster(ctx context.Context, clusterID string) ([]domain.ClusterTemplateStat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT cluster_id, template_id, usage_count, reward_sum
		 FROM cluster_template_stats
		 WHERE cluster_id = $1
		 ORDER BY template_id`,
		clusterID,
	)
	if err != nil {
		return nil, err
	}
	return collectArmStats(rows)
}

func (r *ArmStatRepository) ListGlobal(ctx context.Context) ([]domain.ClusterTemplateStat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT '', template_id, SUM(usage_count)::bigint, SUM(reward_sum)
		 FROM cluster_template_stats
		 GROUP BY template_id
		 ORDER BY template_id`,
	)
	if err != nil {
		return nil, err
	}
	return collectArmStats(rows)
}

func (r *ArmStatRepository) RecordPull(ctx context.Context, clusterID, templateID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO cluster_template_stats (cluster_id, template_id, usage_count, reward_sum, updated_at)
		 VALUES ($1, $2, 1, 0, $3)
		 ON CONFLICT (cluster_id, template_id)
		 DO UPDATE SET usage_count = cluster_template_stats.usage_count + 1, updated_at = EXCLUDED.updated_at`,
		clusterID, templateID, time.Now().UTC(),
	)
	return err
}

// AddReward credits reward to an arm. The reward sum never exceeds the
// pull count, so the mean stays within [0,1].
func (r *ArmStatRepository) AddReward(ctx context.Context, clusterID, templateID string, reward float64) error {
	reward = domain.Clamp01(reward)
	_, err := r.db.Exec(ctx,
		`INSERT INTO cluster_template_stats (cluster_id, template_id, usage_count, reward_sum, updated_at)
		 VALUES ($1, $2, 1, $3, $4)
		 ON CONFLICT (cluster_id, template_id)
		 DO UPDATE SET reward_sum = LEAST(cluster_template_stats.reward_sum + $3, cluster_template_stats.usage_count),
		               updated_at = EXCLUDED.updated_at`,
		clusterID, templateID, reward, time.Now().UTC(),
	)
	return err
}
