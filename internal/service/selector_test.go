package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tutorfit/internal/bandit"
	"github.com/cloo-solutions/tutorfit/internal/domain"
)

func tpl(id, topic string, quality float64) *domain.Template {
	return &domain.Template{
		ID:                    id,
		Topic:                 topic,
		Content:               domain.NewFreeformContent("Use an example for " + id),
		Source:                domain.TemplateSourceSeeded,
		CompositeQualityScore: quality,
	}
}

func newSelector(templates *MockTemplateRepository, stats *MockArmStatRepository) *TemplateSelector {
	return NewTemplateSelector(templates, stats, bandit.UCB1{}, nil)
}

func TestTemplateSelector_NilClusterIsUnclustered(t *testing.T) {
	s := newSelector(new(MockTemplateRepository), new(MockArmStatRepository))

	sel, err := s.Select(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, sel.Template)
	assert.Equal(t, domain.SelectionUnclustered, sel.Method)
}

func TestTemplateSelector_FreshCluster(t *testing.T) {
	templates := new(MockTemplateRepository)
	stats := new(MockArmStatRepository)
	stats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{}, nil)

	cluster := &domain.Cluster{ID: "c1", Topic: "mathematics", TotalQueries: 2}
	sel, err := newSelector(templates, stats).Select(context.Background(), cluster)

	require.NoError(t, err)
	assert.Nil(t, sel.Template)
	assert.Equal(t, domain.SelectionFresh, sel.Method)
	templates.AssertNotCalled(t, "ListByTopic", mock.Anything, mock.Anything)
}

func TestTemplateSelector_UntriedTemplateBeatsExploitedArm(t *testing.T) {
	templates := new(MockTemplateRepository)
	stats := new(MockArmStatRepository)

	t2 := tpl("t2", "mathematics", 0.9)
	fresh := tpl("t", "mathematics", 0.1)
	stats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{
		{ClusterID: "c1", TemplateID: "t2", UsageCount: 5, RewardSum: 4},
	}, nil)
	templates.On("ListByTopic", mock.Anything, "mathematics").Return([]*domain.Template{t2, fresh}, nil)

	cluster := &domain.Cluster{ID: "c1", Topic: "mathematics", TotalQueries: 6}
	sel, err := newSelector(templates, stats).Select(context.Background(), cluster)

	require.NoError(t, err)
	require.NotNil(t, sel.Template)
	assert.Equal(t, "t", sel.Template.ID)
	assert.Equal(t, domain.SelectionUCB1Untried, sel.Method)
	templates.AssertNotCalled(t, "GetByIDs", mock.Anything, mock.Anything)
}

func TestTemplateSelector_ExploitsBestMeanWhenAllTried(t *testing.T) {
	templates := new(MockTemplateRepository)
	stats := new(MockArmStatRepository)

	stats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{
		{ClusterID: "c1", TemplateID: "a", UsageCount: 50, RewardSum: 10},
		{ClusterID: "c1", TemplateID: "b", UsageCount: 50, RewardSum: 45},
	}, nil)
	templates.On("ListByTopic", mock.Anything, "physics").Return([]*domain.Template{}, nil)
	templates.On("GetByIDs", mock.Anything, []string{"a", "b"}).
		Return([]*domain.Template{tpl("a", "physics", 0.5), tpl("b", "physics", 0.5)}, nil)

	cluster := &domain.Cluster{ID: "c1", Topic: "physics", TotalQueries: 100}
	sel, err := newSelector(templates, stats).Select(context.Background(), cluster)

	require.NoError(t, err)
	assert.Equal(t, "b", sel.Template.ID)
	assert.Equal(t, domain.SelectionUCB1, sel.Method)
}

func TestTemplateSelector_NeverReturnsUsedTemplateWhileUntriedExists(t *testing.T) {
	for i := range 20 {
		templates := new(MockTemplateRepository)
		stats := new(MockArmStatRepository)

		var clusterStats []domain.ClusterTemplateStat
		var topicTemplates []*domain.Template
		for j := range 4 {
			id := string(rune('a' + j))
			topicTemplates = append(topicTemplates, tpl(id, "history", float64(j)/4))
			if j != i%4 {
				clusterStats = append(clusterStats, domain.ClusterTemplateStat{
					ClusterID: "c", TemplateID: id, UsageCount: int64(1 + i + j), RewardSum: float64(i+j) / 2,
				})
			}
		}
		stats.On("ListByCluster", mock.Anything, "c").Return(clusterStats, nil)
		templates.On("ListByTopic", mock.Anything, "history").Return(topicTemplates, nil)

		sel, err := newSelector(templates, stats).Select(context.Background(), &domain.Cluster{ID: "c", Topic: "history"})
		require.NoError(t, err)
		assert.Equal(t, string(rune('a'+i%4)), sel.Template.ID)
	}
}

func TestTemplateSelector_GlobalFallback(t *testing.T) {
	templates := new(MockTemplateRepository)
	stats := new(MockArmStatRepository)

	stats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{}, nil)
	templates.On("ListByTopic", mock.Anything, "poetry").Return([]*domain.Template{}, nil)
	stats.On("ListGlobal", mock.Anything).Return([]domain.ClusterTemplateStat{
		{TemplateID: "g1", UsageCount: 10, RewardSum: 9},
		{TemplateID: "g2", UsageCount: 10, RewardSum: 1},
	}, nil)
	templates.On("GetByIDs", mock.Anything, []string{"g1", "g2"}).
		Return([]*domain.Template{tpl("g1", "x", 0), tpl("g2", "y", 0)}, nil)

	cluster := &domain.Cluster{ID: "c1", Topic: "poetry", PromptEnhancement: "Use rhyme."}
	sel, err := newSelector(templates, stats).Select(context.Background(), cluster)

	require.NoError(t, err)
	assert.Equal(t, "g1", sel.Template.ID)
	assert.Equal(t, domain.SelectionGlobalUCB1, sel.Method)
}

func TestTemplateSelector_DefaultWhenNothingAvailable(t *testing.T) {
	templates := new(MockTemplateRepository)
	stats := new(MockArmStatRepository)

	stats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{}, nil)
	templates.On("ListByTopic", mock.Anything, "poetry").Return([]*domain.Template{}, nil)
	stats.On("ListGlobal", mock.Anything).Return([]domain.ClusterTemplateStat{}, nil)
	templates.On("GetByIDs", mock.Anything, []string{}).Return([]*domain.Template{}, nil)

	cluster := &domain.Cluster{ID: "c1", Topic: "poetry", PromptEnhancement: "Use rhyme."}
	sel, err := newSelector(templates, stats).Select(context.Background(), cluster)

	require.NoError(t, err)
	assert.Nil(t, sel.Template)
	assert.Equal(t, domain.SelectionDefault, sel.Method)
}

func TestTemplateSelector_RepositoryError(t *testing.T) {
	stats := new(MockArmStatRepository)
	stats.On("ListByCluster", mock.Anything, "c1").Return(nil, errors.New("db down"))

	_, err := newSelector(new(MockTemplateRepository), stats).Select(context.Background(), &domain.Cluster{ID: "c1"})
	assert.Error(t, err)
}

func TestTemplateSelector_EpsilonExploration(t *testing.T) {
	templates := new(MockTemplateRepository)
	stats := new(MockArmStatRepository)

	stats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{
		{ClusterID: "c1", TemplateID: "popular", UsageCount: 100, RewardSum: 90},
		{ClusterID: "c1", TemplateID: "rare", UsageCount: 2, RewardSum: 1},
	}, nil)
	templates.On("ListByTopic", mock.Anything, "art").Return([]*domain.Template{
		tpl("popular", "art", 0.9), tpl("rare", "art", 0.6),
	}, nil)

	policy := bandit.NewEpsilonUCB1(0.5, 0.3).WithRand(func() float64 { return 0.1 }, func(int) int { return 0 })
	s := NewTemplateSelector(templates, stats, policy, nil)

	sel, err := s.Select(context.Background(), &domain.Cluster{ID: "c1", Topic: "art"})
	require.NoError(t, err)
	assert.Equal(t, "rare", sel.Template.ID)
	assert.Equal(t, domain.SelectionEpsilonExplore, sel.Method)
}

func TestTemplateSelector_GlobalFallbackKeepsExplorationTag(t *testing.T) {
	templates := new(MockTemplateRepository)
	stats := new(MockArmStatRepository)

	stats.On("ListByCluster", mock.Anything, "c1").Return([]domain.ClusterTemplateStat{}, nil)
	templates.On("ListByTopic", mock.Anything, "poetry").Return([]*domain.Template{}, nil)
	stats.On("ListGlobal", mock.Anything).Return([]domain.ClusterTemplateStat{
		{TemplateID: "g1", UsageCount: 100, RewardSum: 95},
		{TemplateID: "g2", UsageCount: 5, RewardSum: 1},
	}, nil)
	templates.On("GetByIDs", mock.Anything, []string{"g1", "g2"}).
		Return([]*domain.Template{tpl("g1", "x", 0.6), tpl("g2", "y", 0.6)}, nil)

	policy := bandit.NewEpsilonUCB1(0.5, 0.3).WithRand(func() float64 { return 0.1 }, func(int) int { return 0 })
	sel, err := NewTemplateSelector(templates, stats, policy, nil).
		Select(context.Background(), &domain.Cluster{ID: "c1", Topic: "poetry"})

	require.NoError(t, err)
	assert.Equal(t, "g2", sel.Template.ID)
	assert.Equal(t, domain.SelectionGlobalEpsilonExplore, sel.Method)
}
