package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/cloo-solutions/tutorfit/internal/domain"
	"github.com/cloo-solutions/tutorfit/internal/metrics"
	"github.com/cloo-solutions/tutorfit/internal/render"
	"github.com/cloo-solutions/tutorfit/internal/scoring"
	"github.com/cloo-solutions/tutorfit/internal/telemetry"
)

// AssignInput is one incoming learner query.
type AssignInput struct {
	Query     string
	SessionID string
	UserID    string
}

// AssignResult is what the caller needs to shape its answer.
type AssignResult struct {
	AssignmentID    string
	ClusterID       string
	TemplateID      string
	EnhancementText string
	SelectionMethod domain.SelectionMethod
	IsNewCluster    bool
	Similarity      float64
	Topic           string
}

// PersonalizationService is the entry point used by transports.
type PersonalizationService struct {
	assignor *ClusterAssignor
	selector *TemplateSelector
	learning *LearningService
	scoring  *ScoringService
	tx       TxRunner
	metrics  *metrics.Metrics
	logger   *zap.Logger
	uuidGen  UUIDGenerator
	now      Clock
}

func NewPersonalizationService(
	assignor *ClusterAssignor,
	selector *TemplateSelector,
	learning *LearningService,
	scoringService *ScoringService,
	tx TxRunner,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PersonalizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonalizationService{
		assignor: assignor,
		selector: selector,
		learning: learning,
		scoring:  scoringService,
		tx:       tx,
		metrics:  m,
		logger:   logger,
		uuidGen:  &DefaultUUIDGenerator{},
		now:      utcNow,
	}
}

// WithUUIDGen replaces the id generator (for testing).
func (s *PersonalizationService) WithUUIDGen(gen UUIDGenerator) *PersonalizationService {
	s.uuidGen = gen
	return s
}

// WithClock replaces the clock (for testing).
func (s *PersonalizationService) WithClock(now Clock) *PersonalizationService {
	s.now = now
	return s
}

// AssignAndSelect routes the query to a cluster, picks a template and
// renders the enhancement text. Only an empty query is an error; every
// other failure degrades to a result without cluster or template.
func (s *PersonalizationService) AssignAndSelect(ctx context.Context, input AssignInput) (*AssignResult, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	ctx, span := telemetry.StartSpan(ctx, "PersonalizationService.AssignAndSelect", telemetry.SpanAttributes{
		Operation: "assign_and_select",
	})
	defer span.End()

	ca := s.assignor.Assign(ctx, query)
	result := &AssignResult{
		Topic:      ca.Topic,
		Similarity: ca.Similarity,
	}
	if ca.Cluster == nil {
		result.SelectionMethod = domain.SelectionUnclustered
		s.metrics.RecordSelection(string(result.SelectionMethod))
		return result, nil
	}

	result.ClusterID = ca.Cluster.ID
	result.IsNewCluster = ca.IsNew

	selection, err := s.selector.Select(ctx, ca.Cluster)
	if err != nil {
		s.logger.Warn("template selection degraded", zap.String("cluster_id", ca.Cluster.ID), zap.Error(err))
		selection = &Selection{Method: domain.SelectionDefault}
	}
	result.SelectionMethod = selection.Method
	if selection.Template != nil {
		result.TemplateID = selection.Template.ID
	}

	assignment := &domain.Assignment{
		ID:              s.uuidGen.NewString(),
		QueryText:       query,
		ClusterID:       ca.Cluster.ID,
		TemplateID:      result.TemplateID,
		SessionID:       input.SessionID,
		UserID:          input.UserID,
		Topic:           ca.Topic,
		Similarity:      domain.Clamp01(ca.Similarity),
		IsNewCluster:    ca.IsNew,
		SelectionMethod: selection.Method,
		CreatedAt:       s.now(),
	}

	err = domain.ValidateAssignment(assignment)
	if err == nil {
		err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Assignments().Create(ctx, assignment); err != nil {
				return err
			}
			if assignment.TemplateID == "" {
				return nil
			}
			if err := repos.ArmStats().RecordPull(ctx, assignment.ClusterID, assignment.TemplateID); err != nil {
				return err
			}
			return repos.Templates().IncrementUsage(ctx, assignment.TemplateID)
		})
	}
	if err != nil {
		// The pull was not recorded, so the template must not be served.
		s.logger.Warn("failed to persist assignment", zap.String("cluster_id", ca.Cluster.ID), zap.Error(err))
		s.metrics.RecordUpstreamError("database")
		span.SetError(err)
		result.TemplateID = ""
		result.SelectionMethod = domain.SelectionDefault
		result.EnhancementText = render.WithCluster(nil, ca.Cluster)
	} else {
		result.AssignmentID = assignment.ID
		result.EnhancementText = render.WithCluster(selection.Template, ca.Cluster)
	}

	s.metrics.RecordSelection(string(result.SelectionMethod))
	return result, nil
}

// SubmitFeedback accepts feedback for asynchronous learning.
func (s *PersonalizationService) SubmitFeedback(ctx context.Context, input FeedbackInput) error {
	_, err := s.learning.SubmitFeedback(ctx, input)
	return err
}

// RecomputeCompositeScores rescores all templates. A nil weights argument
// uses the configured weights.
func (s *PersonalizationService) RecomputeCompositeScores(ctx context.Context, weights *scoring.Weights) (*RecomputeResult, error) {
	return s.scoring.Recompute(ctx, weights)
}
