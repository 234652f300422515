package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tutorfit/internal/bandit"
	"github.com/cloo-solutions/tutorfit/internal/cache"
	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/scoring"
)

type personalizationFixture struct {
	clusters    *MockClusterRepository
	templates   *MockTemplateRepository
	armStats    *MockArmStatRepository
	assignments *MockAssignmentRepository
	jobs        *MockLearningJobRepository
	embedder    *MockEmbedder
	classifier  *MockTopicClassifier
	tx          *testTxRunner
	service     *PersonalizationService
}

func newPersonalizationFixture(t *testing.T) *personalizationFixture {
	t.Helper()
	f := &personalizationFixture{
		clusters:    new(MockClusterRepository),
		templates:   new(MockTemplateRepository),
		armStats:    new(MockArmStatRepository),
		assignments: new(MockAssignmentRepository),
		jobs:        new(MockLearningJobRepository),
		embedder:    new(MockEmbedder),
		classifier:  new(MockTopicClassifier),
	}
	events := new(MockLearningEventRepository)
	f.tx = &testTxRunner{repos: &testTxRepos{
		clusters:       f.clusters,
		templates:      f.templates,
		armStats:       f.armStats,
		assignments:    f.assignments,
		learningEvents: events,
		learningJobs:   f.jobs,
	}}

	topics := new(MockTopicRepository)
	topics.On("List", mock.Anything).Return([]string{"general"}, nil).Maybe()
	topics.On("Ensure", mock.Anything, mock.Anything).Return(nil).Maybe()

	assignor := NewClusterAssignor(f.clusters, NewTopicService(f.classifier, topics, nil, nil), f.embedder,
		cache.NewMemory(cache.DefaultConfig()), nil, nil, AssignorConfig{SimilarityThreshold: 0.75, CacheTTL: time.Hour})
	selector := NewTemplateSelector(f.templates, f.armStats, bandit.UCB1{}, nil)
	learning := NewLearningService(f.assignments, f.clusters, events, f.jobs, f.tx, new(MockFeedbackAnalyzer),
		DefaultLearningConfig(), nil, nil).WithUUIDGen(NewMockUUIDGenerator("job-1")).WithClock(fixedClock)
	scorer := NewScoringService(f.templates, scoring.DefaultWeights(), nil, nil, nil).WithClock(fixedClock)

	f.service = NewPersonalizationService(assignor, selector, learning, scorer, f.tx, nil, nil).
		WithUUIDGen(NewMockUUIDGenerator("assignment-1")).
		WithClock(fixedClock)
	return f
}

func TestPersonalizationService_EmptyQuery(t *testing.T) {
	f := newPersonalizationFixture(t)

	_, err := f.service.AssignAndSelect(context.Background(), AssignInput{Query: "  \n"})
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	f.embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
}

func TestPersonalizationService_FreshClusterMatch(t *testing.T) {
	f := newPersonalizationFixture(t)
	ctx := context.Background()
	emb := unit(0, 1, 0.7)
	c1 := &domain.Cluster{ID: "c1", Centroid: unit(0, -1, 0), TotalQueries: 2}

	f.embedder.On("GenerateEmbedding", mock.Anything, "explain recursion").Return(emb, nil)
	f.classifier.On("ClassifyTopic", mock.Anything, mock.Anything, mock.Anything).Return("general", nil)
	f.clusters.On("FindNearest", mock.Anything, emb).Return(c1, 0.81, nil)
	f.clusters.On("RecordQuery", mock.Anything, "c1", emb).Return(c1, nil)
	f.armStats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{}, nil)
	f.assignments.On("Create", mock.Anything, mock.MatchedBy(func(a *domain.Assignment) bool {
		return a.ID == "assignment-1" && a.ClusterID == "c1" && a.TemplateID == "" &&
			a.SelectionMethod == domain.SelectionFresh && a.Similarity == 0.81 && a.SessionID == "s1"
	})).Return(nil)

	res, err := f.service.AssignAndSelect(ctx, AssignInput{Query: "explain recursion", SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, "assignment-1", res.AssignmentID)
	assert.Equal(t, "c1", res.ClusterID)
	assert.Empty(t, res.TemplateID)
	assert.Equal(t, domain.SelectionFresh, res.SelectionMethod)
	assert.Empty(t, res.EnhancementText)
	assert.False(t, res.IsNewCluster)
	assert.Equal(t, 0.81, res.Similarity)
	f.armStats.AssertNotCalled(t, "RecordPull", mock.Anything, mock.Anything, mock.Anything)
}

func TestPersonalizationService_SelectedTemplateRecordsPull(t *testing.T) {
	f := newPersonalizationFixture(t)
	ctx := context.Background()
	emb := unit(1, -1, 0)
	c1 := &domain.Cluster{ID: "c1", Topic: "physics", PromptEnhancement: "Relate to everyday motion.", TotalQueries: 5}
	chosen := tpl("t1", "physics", 0.7)

	f.embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(emb, nil)
	f.classifier.On("ClassifyTopic", mock.Anything, mock.Anything, mock.Anything).Return("physics", nil)
	f.clusters.On("FindByTopic", mock.Anything, "physics").Return(c1, nil)
	f.clusters.On("RecordQuery", mock.Anything, "c1", emb).Return(c1, nil)
	f.armStats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{}, nil)
	f.templates.On("ListByTopic", mock.Anything, "physics").Return([]*domain.Template{chosen}, nil)
	f.assignments.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.armStats.On("RecordPull", mock.Anything, "c1", "t1").Return(nil)
	f.templates.On("IncrementUsage", mock.Anything, "t1").Return(nil)

	res, err := f.service.AssignAndSelect(ctx, AssignInput{Query: "why do objects fall"})
	require.NoError(t, err)

	assert.Equal(t, "t1", res.TemplateID)
	assert.Equal(t, domain.SelectionUCB1Untried, res.SelectionMethod)
	assert.True(t, strings.HasSuffix(res.EnhancementText, "Relate to everyday motion."))
	assert.Equal(t, 1, f.tx.called)
	f.armStats.AssertExpectations(t)
	f.templates.AssertExpectations(t)
}

func TestPersonalizationService_UnclusteredWhenAssignmentFails(t *testing.T) {
	f := newPersonalizationFixture(t)

	f.embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("quota"))
	f.classifier.On("ClassifyTopic", mock.Anything, mock.Anything, mock.Anything).Return("general", nil)

	res, err := f.service.AssignAndSelect(context.Background(), AssignInput{Query: "hello"})
	require.NoError(t, err)

	assert.Empty(t, res.ClusterID)
	assert.Empty(t, res.AssignmentID)
	assert.Equal(t, domain.SelectionUnclustered, res.SelectionMethod)
	assert.Equal(t, 0, f.tx.called)
}

func TestPersonalizationService_PersistenceFailureDegrades(t *testing.T) {
	f := newPersonalizationFixture(t)
	emb := unit(0, -1, 0)
	c1 := &domain.Cluster{ID: "c1", PromptEnhancement: "Use short sentences."}

	f.embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(emb, nil)
	f.classifier.On("ClassifyTopic", mock.Anything, mock.Anything, mock.Anything).Return("general", nil)
	f.clusters.On("FindNearest", mock.Anything, emb).Return(c1, 0.9, nil)
	f.clusters.On("RecordQuery", mock.Anything, "c1", emb).Return(c1, nil)
	f.armStats.On("ListByCluster", mock.Anything, "c1").Return(nil, errors.New("timeout"))
	f.assignments.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	res, err := f.service.AssignAndSelect(context.Background(), AssignInput{Query: "q"})
	require.NoError(t, err)

	assert.Equal(t, "c1", res.ClusterID)
	assert.Empty(t, res.AssignmentID)
	assert.Equal(t, domain.SelectionDefault, res.SelectionMethod)
	assert.Contains(t, res.EnhancementText, "Use short sentences.")
}

func TestPersonalizationService_FailedPullDropsSelectedTemplate(t *testing.T) {
	f := newPersonalizationFixture(t)
	emb := unit(1, -1, 0)
	c1 := &domain.Cluster{ID: "c1", Topic: "physics", PromptEnhancement: "Relate to everyday motion.", TotalQueries: 5}
	chosen := tpl("t1", "physics", 0.7)

	f.embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(emb, nil)
	f.classifier.On("ClassifyTopic", mock.Anything, mock.Anything, mock.Anything).Return("physics", nil)
	f.clusters.On("FindByTopic", mock.Anything, "physics").Return(c1, nil)
	f.clusters.On("RecordQuery", mock.Anything, "c1", emb).Return(c1, nil)
	f.armStats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{}, nil)
	f.templates.On("ListByTopic", mock.Anything, "physics").Return([]*domain.Template{chosen}, nil)
	f.assignments.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.armStats.On("RecordPull", mock.Anything, "c1", "t1").Return(errors.New("serialization failure"))

	res, err := f.service.AssignAndSelect(context.Background(), AssignInput{Query: "why do objects fall"})
	require.NoError(t, err)

	assert.Equal(t, "c1", res.ClusterID)
	assert.Empty(t, res.AssignmentID)
	assert.Empty(t, res.TemplateID)
	assert.Equal(t, domain.SelectionDefault, res.SelectionMethod)
	assert.True(t, strings.HasSuffix(res.EnhancementText, "Relate to everyday motion."))
	assert.NotContains(t, res.EnhancementText, "Use an example for t1")
	f.templates.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything)
}

func TestPersonalizationService_SubmitFeedbackQueuesJob(t *testing.T) {
	f := newPersonalizationFixture(t)

	f.assignments.On("GetByID", mock.Anything, "a1").Return(assignmentFor("t1"), nil)
	f.jobs.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := f.service.SubmitFeedback(context.Background(), FeedbackInput{AssignmentID: "a1", FeedbackText: "thanks"})
	require.NoError(t, err)
	f.jobs.AssertCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPersonalizationService_RecomputeDelegates(t *testing.T) {
	f := newPersonalizationFixture(t)

	f.templates.On("ListPage", mock.Anything, "", recomputePageSize).Return([]*domain.Template{}, nil)

	result, err := f.service.RecomputeCompositeScores(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)
}
