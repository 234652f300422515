package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/scoring"
)

func ratedTemplate(id string, efficacy float64, ratings int64) *domain.Template {
	t := tpl(id, "mathematics", 0)
	t.EfficacyScore = efficacy
	t.RatingCount = ratings
	t.RatingSum = efficacy * float64(ratings)
	t.RatingSumSquares = efficacy * efficacy * float64(ratings)
	return t
}

func TestScoringService_RecomputePagesThroughTemplates(t *testing.T) {
	templates := new(MockTemplateRepository)
	snapshots := new(MockSnapshotStore)

	templates.On("ListPage", mock.Anything, "", 2).
		Return([]*domain.Template{ratedTemplate("a", 4.5, 12), ratedTemplate("b", 2, 3)}, nil)
	templates.On("ListPage", mock.Anything, "b", 2).
		Return([]*domain.Template{ratedTemplate("c", 0, 0)}, nil)
	templates.On("UpdateComposite", mock.Anything, mock.Anything, mock.MatchedBy(func(b *domain.CompositeBreakdown) bool {
		return b.Score >= 0 && b.Score <= 1 && b.ComputedAt.Equal(testNow)
	}), mock.Anything).Return(nil)

	var written *RecomputeSnapshot
	snapshots.On("PutJSON", mock.Anything, "composite-scores/20260501T120000.000000000Z.json", mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(2).(*RecomputeSnapshot) }).
		Return(nil)

	s := NewScoringService(templates, scoring.DefaultWeights(), snapshots, nil, nil).
		WithClock(fixedClock).
		WithPageSize(2)

	result, err := s.Recompute(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, "composite-scores/20260501T120000.000000000Z.json", result.SnapshotKey)
	templates.AssertNumberOfCalls(t, "UpdateComposite", 3)

	require.NotNil(t, written)
	assert.Len(t, written.Templates, 3)
	assert.Equal(t, scoring.DefaultWeights(), written.Weights)
	assert.Greater(t, written.Templates["a"].Score, written.Templates["b"].Score)
}

func TestScoringService_RejectsInvalidWeights(t *testing.T) {
	templates := new(MockTemplateRepository)
	s := NewScoringService(templates, scoring.DefaultWeights(), nil, nil, nil)

	bad := scoring.Weights{Efficacy: 0.9, FollowUp: 0.9}
	_, err := s.Recompute(context.Background(), &bad)

	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
	templates.AssertNotCalled(t, "ListPage", mock.Anything, mock.Anything, mock.Anything)
}

func TestScoringService_OverrideWeightsApplied(t *testing.T) {
	templates := new(MockTemplateRepository)
	override := scoring.Weights{Efficacy: 1}

	templates.On("ListPage", mock.Anything, "", recomputePageSize).
		Return([]*domain.Template{ratedTemplate("a", 5, 20)}, nil)
	templates.On("UpdateComposite", mock.Anything, "a", mock.MatchedBy(func(b *domain.CompositeBreakdown) bool {
		return b.Weights[scoring.SignalEfficacy] == 1 && b.Weights[scoring.SignalFollowUp] == 0
	}), mock.Anything).Return(nil)

	s := NewScoringService(templates, scoring.DefaultWeights(), nil, nil, nil).WithClock(fixedClock)
	result, err := s.Recompute(context.Background(), &override)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Empty(t, result.SnapshotKey)
	templates.AssertExpectations(t)
}

func TestScoringService_SnapshotFailureIsNotFatal(t *testing.T) {
	templates := new(MockTemplateRepository)
	snapshots := new(MockSnapshotStore)

	templates.On("ListPage", mock.Anything, "", recomputePageSize).Return([]*domain.Template{ratedTemplate("a", 3, 4)}, nil)
	templates.On("UpdateComposite", mock.Anything, "a", mock.Anything, mock.Anything).Return(nil)
	snapshots.On("PutJSON", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket missing"))

	s := NewScoringService(templates, scoring.DefaultWeights(), snapshots, nil, nil).WithClock(fixedClock)
	result, err := s.Recompute(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Empty(t, result.SnapshotKey)
}

func TestScoringService_UpdateErrorAborts(t *testing.T) {
	templates := new(MockTemplateRepository)

	templates.On("ListPage", mock.Anything, "", recomputePageSize).
		Return([]*domain.Template{ratedTemplate("a", 3, 4), ratedTemplate("b", 3, 4)}, nil)
	templates.On("UpdateComposite", mock.Anything, "a", mock.Anything, mock.Anything).Return(errors.New("deadlock"))

	s := NewScoringService(templates, scoring.DefaultWeights(), nil, nil, nil)
	_, err := s.Recompute(context.Background(), nil)

	require.Error(t, err)
	templates.AssertNotCalled(t, "UpdateComposite", mock.Anything, "b", mock.Anything, mock.Anything)
}

func TestScoringService_RecomputeIsDeterministic(t *testing.T) {
	templates := new(MockTemplateRepository)
	var scores []float64

	templates.On("ListPage", mock.Anything, "", recomputePageSize).Return([]*domain.Template{ratedTemplate("a", 3.7, 9)}, nil)
	templates.On("UpdateComposite", mock.Anything, "a", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { scores = append(scores, args.Get(2).(*domain.CompositeBreakdown).Score) }).
		Return(nil)

	s := NewScoringService(templates, scoring.DefaultWeights(), nil, nil, nil).WithClock(fixedClock)
	for range 2 {
		_, err := s.Recompute(context.Background(), nil)
		require.NoError(t, err)
	}

	require.Len(t, scores, 2)
	assert.Equal(t, scores[0], scores[1])
}
