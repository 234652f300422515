package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/tutorfit/internal/service"
)

// TxRunner runs a unit of work, such as recording an assignment together
// with its arm pull and template usage, in one transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&txRepos{tx: tx})
	})
}

type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Clusters() service.ClusterRepositoryInterface {
	return NewClusterRepositoryWithTx(r.tx)
}

func (r *txRepos) Templates() service.TemplateRepositoryInterface {
	return NewTemplateRepositoryWithTx(r.tx)
}

func (r *txRepos) ArmStats() service.ArmStatRepositoryInterface {
	return NewArmStatRepositoryWithTx(r.tx)
}

func (r *txRepos) Assignments() service.AssignmentRepositoryInterface {
	return NewAssignmentRepositoryWithTx(r.tx)
}

func (r *txRepos) LearningEvents() service.LearningEventRepositoryInterface {
	return NewLearningEventRepositoryWithTx(r.tx)
}

func (r *txRepos) LearningJobs() service.LearningJobRepositoryInterface {
	return NewLearningJobRepositoryWithTx(r.tx)
}
