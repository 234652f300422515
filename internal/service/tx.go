package service

import "context"

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Clusters() ClusterRepositoryInterface
	Templates() TemplateRepositoryInterface
	ArmStats() ArmStatRepositoryInterface
	Assignments() AssignmentRepositoryInterface
	LearningEvents() LearningEventRepositoryInterface
	LearningJobs() LearningJobRepositoryInterface
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
