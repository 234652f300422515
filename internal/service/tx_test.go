package service

import "context"

type testTxRepos struct {
	clusters       ClusterRepositoryInterface
	templates      TemplateRepositoryInterface
	armStats       ArmStatRepositoryInterface
	assignments    AssignmentRepositoryInterface
	learningEvents LearningEventRepositoryInterface
	learningJobs   LearningJobRepositoryInterface
}

func (t *testTxRepos) Clusters() ClusterRepositoryInterface {
	return t.clusters
}

func (t *testTxRepos) Templates() TemplateRepositoryInterface {
	return t.templates
}

func (t *testTxRepos) ArmStats() ArmStatRepositoryInterface {
	return t.armStats
}

func (t *testTxRepos) Assignments() AssignmentRepositoryInterface {
	return t.assignments
}

func (t *testTxRepos) LearningEvents() LearningEventRepositoryInterface {
	return t.learningEvents
}

func (t *testTxRepos) LearningJobs() LearningJobRepositoryInterface {
	return t.learningJobs
}

type testTxRunner struct {
	repos  TxRepositories
	called int
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called++
	return fn(t.repos)
}
